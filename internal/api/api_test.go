package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Cordtus/chainpulse/internal/core/domain"
	"github.com/Cordtus/chainpulse/internal/infra/storage"
)

type fakeStore struct {
	byUser   []domain.Packet
	stuck    []domain.Packet
	get      *domain.Packet
	channels []domain.ChannelCongestion
}

var _ storage.Store = (*fakeStore)(nil)

func (s *fakeStore) InsertSend(context.Context, *domain.Packet) (bool, *domain.Packet, error) {
	return false, nil, nil
}
func (s *fakeStore) MarkEffected(context.Context, domain.PacketKey, string, string, string, time.Time) (*domain.Packet, error) {
	return nil, nil
}
func (s *fakeStore) MarkUneffected(context.Context, domain.PacketKey, string, string, string, time.Time) (*domain.Packet, error) {
	return nil, nil
}
func (s *fakeStore) Get(context.Context, string, string, uint64) (*domain.Packet, error) {
	return s.get, nil
}
func (s *fakeStore) FindByChannelSequence(context.Context, string, uint64) (*domain.Packet, error) {
	return nil, nil
}
func (s *fakeStore) FindByUser(context.Context, string, storage.Role, int, int) ([]domain.Packet, int, error) {
	return s.byUser, len(s.byUser), nil
}
func (s *fakeStore) FindStuck(context.Context, time.Duration, int) ([]domain.Packet, error) {
	return s.stuck, nil
}
func (s *fakeStore) ChannelCongestion(context.Context) ([]domain.ChannelCongestion, error) {
	return s.channels, nil
}
func (s *fakeStore) ReplayAll(context.Context, func(domain.Packet) error) error { return nil }
func (s *fakeStore) Close() error                                              { return nil }

func TestHandleByUserRequiresAddress(t *testing.T) {
	srv := New(":0", &fakeStore{})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/packets/by-user", nil)
	srv.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHandleByUserReturnsPackets(t *testing.T) {
	sender := "osmo1a"
	store := &fakeStore{byUser: []domain.Packet{
		{ChainID: "osmosis-1", SrcChannel: "channel-750", DstChannel: "channel-1", Sequence: 1, Sender: &sender, CreatedAt: time.Now().UTC()},
	}}
	srv := New(":0", store)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/packets/by-user?address=osmo1a", nil)
	srv.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp struct {
		Packets []packetInfo `json:"packets"`
		Total   int          `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Packets) != 1 || resp.Packets[0].ChainID != "osmosis-1" {
		t.Fatalf("unexpected packets: %+v", resp.Packets)
	}
}

func TestHandlePacketDetailNotFound(t *testing.T) {
	srv := New(":0", &fakeStore{})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/packets/osmosis-1/channel-750/1", nil)
	srv.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestHandlePacketDetailFound(t *testing.T) {
	p := &domain.Packet{ChainID: "osmosis-1", SrcChannel: "channel-750", DstChannel: "channel-1", Sequence: 1, CreatedAt: time.Now().UTC()}
	srv := New(":0", &fakeStore{get: p})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/packets/osmosis-1/channel-750/1", nil)
	srv.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestHandleCongestion(t *testing.T) {
	store := &fakeStore{channels: []domain.ChannelCongestion{
		{SrcChannel: "channel-750", DstChannel: "channel-1", StuckCount: 2, OldestStuckAgeSecs: 120, TotalByDenom: map[string]string{"uusdc": "500"}},
	}}
	srv := New(":0", store)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels/congestion", nil)
	srv.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}
