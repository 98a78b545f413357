// Package api is the read API (spec component 6): a thin net/http.ServeMux
// wrapping storage.Store reads in the JSON response shapes the original
// Axum router used, plus the Prometheus exposition endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Cordtus/chainpulse/internal/core/domain"
	"github.com/Cordtus/chainpulse/internal/infra/storage"
)

const apiVersion = "v1"

const (
	defaultLimit  = 100
	defaultMinAge = 15 * time.Minute
)

// Server mounts the read API and the Prometheus handler on one mux.
type Server struct {
	store  storage.Store
	server *http.Server
}

// New builds a Server listening on addr (":3000"-shaped), backed by store.
func New(addr string, store storage.Store) *Server {
	mux := http.NewServeMux()
	s := &Server{store: store, server: &http.Server{Addr: addr, Handler: mux}}

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/packets/by-user", s.handleByUser)
	mux.HandleFunc("/api/v1/packets/stuck", s.handleStuck)
	mux.HandleFunc("/api/v1/packets/", s.handlePacketDetail)
	mux.HandleFunc("/api/v1/channels/congestion", s.handleCongestion)

	return s
}

// Start blocks serving until Stop shuts the server down.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// packetInfo mirrors the original PacketInfo response shape: age_seconds
// and relay_attempts are derived at read time, not stored columns.
type packetInfo struct {
	ChainID       string  `json:"chain_id"`
	Sequence      uint64  `json:"sequence"`
	SrcChannel    string  `json:"src_channel"`
	DstChannel    string  `json:"dst_channel"`
	Sender        *string `json:"sender,omitempty"`
	Receiver      *string `json:"receiver,omitempty"`
	Amount        *string `json:"amount,omitempty"`
	Denom         *string `json:"denom,omitempty"`
	AgeSeconds    int64   `json:"age_seconds"`
	RelayAttempts int64   `json:"relay_attempts"`
	LastAttemptBy *string `json:"last_attempt_by,omitempty"`
	IBCVersion    string  `json:"ibc_version"`
	Effected      string  `json:"effected"`
}

func toPacketInfo(p domain.Packet) packetInfo {
	age := time.Since(p.CreatedAt)
	// relay_attempts is not tracked as a distinct counter; a terminal row
	// reflects exactly one successful (or frontrun-losing) attempt, a
	// pending row reflects zero observed so far.
	var attempts int64
	var lastBy *string
	if p.Effected != domain.EffectPending {
		attempts = 1
		if p.EffectedSigner != "" {
			s := p.EffectedSigner
			lastBy = &s
		}
	}
	return packetInfo{
		ChainID:       p.ChainID,
		Sequence:      p.Sequence,
		SrcChannel:    p.SrcChannel,
		DstChannel:    p.DstChannel,
		Sender:        p.Sender,
		Receiver:      p.Receiver,
		Amount:        p.Amount,
		Denom:         p.Denom,
		AgeSeconds:    int64(age.Seconds()),
		RelayAttempts: attempts,
		LastAttemptBy: lastBy,
		IBCVersion:    string(p.IBCVersion),
		Effected:      p.Effected.String(),
	}
}

func (s *Server) handleByUser(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addr := q.Get("address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	role := storage.RoleSender
	switch q.Get("role") {
	case "", "sender":
		role = storage.RoleSender
	case "receiver":
		role = storage.RoleReceiver
	default:
		writeError(w, http.StatusBadRequest, "role must be sender or receiver")
		return
	}

	limit := parseIntOr(q.Get("limit"), defaultLimit)

	packets, total, err := s.store.FindByUser(r.Context(), addr, role, limit, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	infos := make([]packetInfo, 0, len(packets))
	for _, p := range packets {
		infos = append(infos, toPacketInfo(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"packets":     infos,
		"total":       total,
		"api_version": apiVersion,
	})
}

func (s *Server) handleStuck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minAge := defaultMinAge
	if v := q.Get("min_age_seconds"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_age_seconds must be an integer")
			return
		}
		minAge = time.Duration(secs) * time.Second
	}
	limit := parseIntOr(q.Get("limit"), defaultLimit)

	packets, err := s.store.FindStuck(r.Context(), minAge, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	infos := make([]packetInfo, 0, len(packets))
	for _, p := range packets {
		infos = append(infos, toPacketInfo(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"packets":     infos,
		"total":       len(infos),
		"api_version": apiVersion,
	})
}

// handlePacketDetail serves GET /api/v1/packets/{chain}/{channel}/{sequence},
// the one path-parameterized route sharing the /api/v1/packets/ prefix with
// by-user and stuck — those are matched first by ServeMux since they're
// registered as exact paths, leaving this handler only the three-segment
// form.
func (s *Server) handlePacketDetail(w http.ResponseWriter, r *http.Request) {
	rest := r.URL.Path[len("/api/v1/packets/"):]
	parts := splitPath(rest)
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	chain, channel, seqStr := parts[0], parts[1], parts[2]

	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sequence must be an integer")
		return
	}

	p, err := s.store.Get(r.Context(), chain, channel, seq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "packet not found")
		return
	}
	writeJSON(w, http.StatusOK, toPacketInfo(*p))
}

func (s *Server) handleCongestion(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ChannelCongestion(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type channelCongestion struct {
		SrcChannel         string            `json:"src_channel"`
		DstChannel         string            `json:"dst_channel"`
		StuckCount         int               `json:"stuck_count"`
		OldestStuckAgeSecs *int64            `json:"oldest_stuck_age_seconds,omitempty"`
		TotalByDenom       map[string]string `json:"total_value"`
	}

	channels := make([]channelCongestion, 0, len(rows))
	for _, row := range rows {
		var age *int64
		if row.StuckCount > 0 {
			a := row.OldestStuckAgeSecs
			age = &a
		}
		channels = append(channels, channelCongestion{
			SrcChannel:         row.SrcChannel,
			DstChannel:         row.DstChannel,
			StuckCount:         row.StuckCount,
			OldestStuckAgeSecs: age,
			TotalByDenom:       row.TotalByDenom,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channels":    channels,
		"api_version": apiVersion,
	})
}

func splitPath(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			if i > start {
				parts = append(parts, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func parseIntOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
