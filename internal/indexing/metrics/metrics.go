// Package metrics implements the metrics aggregator (spec component 4.7):
// the Prometheus counters/gauges the lifecycle engine feeds and the
// background refresher that keeps the stuck/congestion gauges current.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Cordtus/chainpulse/internal/core/domain"
	"github.com/Cordtus/chainpulse/internal/infra/storage"
)

// Metrics holds every Prometheus collector the aggregator registers. It
// satisfies lifecycle.Recorder structurally.
type Metrics struct {
	store storage.Store

	ibcEffectedPackets   *prometheus.CounterVec
	ibcUneffectedPackets *prometheus.CounterVec
	ibcFrontrunCounter   *prometheus.CounterVec
	ibcStuckPackets      *prometheus.GaugeVec
	ibcPacketAgeSeconds  *prometheus.GaugeVec

	chainpulseChains     prometheus.Gauge
	chainpulseTxs        *prometheus.CounterVec
	chainpulsePackets    *prometheus.CounterVec
	chainpulseReconnects *prometheus.CounterVec
	chainpulseTimeouts   *prometheus.CounterVec
	chainpulseErrors     *prometheus.CounterVec
	chainpulseUnknownMsg *prometheus.CounterVec
}

// New registers every collector against reg and returns the aggregator.
// store is used by Populate and the background Refresh loop; it may be
// nil in tests that only assert on the Recorder methods.
func New(reg prometheus.Registerer, store storage.Store) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		store: store,

		ibcEffectedPackets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ibc_effected_packets",
			Help: "The number of IBC packets that have been relayed and were effected",
		}, []string{"chain_id", "src_channel", "src_port", "dst_channel", "dst_port", "signer", "memo"}),

		ibcUneffectedPackets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ibc_uneffected_packets",
			Help: "The number of IBC packets that were relayed but not effected",
		}, []string{"chain_id", "src_channel", "src_port", "dst_channel", "dst_port", "signer", "memo"}),

		ibcFrontrunCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ibc_frontrun_counter",
			Help: "The number of times a signer gets frontrun by the original signer",
		}, []string{"chain_id", "src_channel", "src_port", "dst_channel", "dst_port", "signer", "frontrunned_by", "memo", "effected_memo"}),

		ibcStuckPackets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ibc_stuck_packets",
			Help: "The number of packets stuck on an IBC channel",
		}, []string{"src_chain", "dst_chain", "src_channel"}),

		ibcPacketAgeSeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ibc_packet_age_seconds",
			Help: "Age of the oldest unrelayed packet on a channel pair, in seconds",
		}, []string{"src_chain", "dst_chain", "channel"}),

		chainpulseChains: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chainpulse_chains",
			Help: "The number of chains being monitored",
		}),

		chainpulseTxs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainpulse_txs",
			Help: "The number of txs processed",
		}, []string{"chain_id"}),

		chainpulsePackets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainpulse_packets",
			Help: "The number of packets processed",
		}, []string{"chain_id"}),

		chainpulseReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainpulse_reconnects",
			Help: "The number of times we had to reconnect to the WebSocket",
		}, []string{"chain_id"}),

		chainpulseTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainpulse_timeouts",
			Help: "The number of times the WebSocket connection timed out",
		}, []string{"chain_id"}),

		chainpulseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainpulse_errors",
			Help: "The number of times an error was encountered",
		}, []string{"chain_id"}),

		chainpulseUnknownMsg: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainpulse_unknown_msgs",
			Help: "The number of messages with an unrecognized type_url",
		}, []string{"chain_id", "type_url"}),
	}
}

// IncPackets implements lifecycle.Recorder.
func (m *Metrics) IncPackets(chainID string) { m.chainpulsePackets.WithLabelValues(chainID).Inc() }

// IncEffected implements lifecycle.Recorder.
func (m *Metrics) IncEffected(chainID, srcChannel, srcPort, dstChannel, dstPort, signer, memo string) {
	m.ibcEffectedPackets.WithLabelValues(chainID, srcChannel, srcPort, dstChannel, dstPort, signer, memo).Inc()
}

// IncUneffected implements lifecycle.Recorder.
func (m *Metrics) IncUneffected(chainID, srcChannel, srcPort, dstChannel, dstPort, signer, memo string) {
	m.ibcUneffectedPackets.WithLabelValues(chainID, srcChannel, srcPort, dstChannel, dstPort, signer, memo).Inc()
}

// IncFrontrun implements lifecycle.Recorder.
func (m *Metrics) IncFrontrun(chainID, srcChannel, srcPort, dstChannel, dstPort, signer, frontrunnedBy, memo, effectedMemo string) {
	m.ibcFrontrunCounter.WithLabelValues(chainID, srcChannel, srcPort, dstChannel, dstPort, signer, frontrunnedBy, memo, effectedMemo).Inc()
}

// ObservePacketAge implements lifecycle.Recorder: it sets the gauge to the
// age of the packet just resolved, labeled (chainID, dstChannel,
// srcChannel). Refresh writes the oldest-pending age into the same gauge
// under different label values (the source channel in both src_chain and
// channel), so it does not overwrite the series set here.
func (m *Metrics) ObservePacketAge(chainID, srcChannel, dstChannel string, ageSeconds float64) {
	m.ibcPacketAgeSeconds.WithLabelValues(chainID, dstChannel, srcChannel).Set(ageSeconds)
}

// IncUnknownMsg implements lifecycle.Recorder.
func (m *Metrics) IncUnknownMsg(chainID, typeURL string) {
	m.chainpulseUnknownMsg.WithLabelValues(chainID, typeURL).Inc()
}

// IncErrors implements lifecycle.Recorder.
func (m *Metrics) IncErrors(chainID string) { m.chainpulseErrors.WithLabelValues(chainID).Inc() }

// IncTxs is called once per transaction processed, independent of the
// lifecycle.Recorder interface (the engine doesn't see tx boundaries).
func (m *Metrics) IncTxs(chainID string) { m.chainpulseTxs.WithLabelValues(chainID).Inc() }

// IncReconnects is called by a chain collector on every websocket reconnect.
func (m *Metrics) IncReconnects(chainID string) { m.chainpulseReconnects.WithLabelValues(chainID).Inc() }

// IncTimeouts is called by a chain collector when its read deadline fires.
func (m *Metrics) IncTimeouts(chainID string) { m.chainpulseTimeouts.WithLabelValues(chainID).Inc() }

// SetChainCount sets the number of chains currently being monitored.
func (m *Metrics) SetChainCount(n int) { m.chainpulseChains.Set(float64(n)) }

const refreshInterval = 30 * time.Second

// Refresh periodically recomputes the stuck-packet and packet-age gauges
// from storage, since those reflect the current state of pending rows
// rather than a transition the lifecycle engine observed. Blocks until ctx
// is canceled.
func (m *Metrics) Refresh(ctx context.Context) {
	if m.store == nil {
		return
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	m.refreshOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refreshOnce(ctx)
		}
	}
}

func (m *Metrics) refreshOnce(ctx context.Context) {
	congestion, err := m.store.ChannelCongestion(ctx)
	if err != nil {
		slog.Error("metrics: failed to refresh channel congestion", "error", err)
		return
	}

	for _, c := range congestion {
		m.ibcStuckPackets.WithLabelValues(c.SrcChannel, c.DstChannel, c.SrcChannel).Set(float64(c.StuckCount))
		m.ibcPacketAgeSeconds.WithLabelValues(c.SrcChannel, c.DstChannel, c.SrcChannel).Set(float64(c.OldestStuckAgeSecs))
	}
}

// Populate replays every persisted packet into the counters on startup, so
// a restarted collector's metrics reflect history instead of resetting to
// zero (spec §4.7's populate_on_start).
func (m *Metrics) Populate(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	return m.store.ReplayAll(ctx, func(p domain.Packet) error {
		switch p.Effected {
		case domain.EffectDelivered:
			m.IncEffected(p.ChainID, p.SrcChannel, p.SrcPort, p.DstChannel, p.DstPort, p.EffectedSigner, p.EffectedMemo)
		case domain.EffectUneffected:
			m.IncUneffected(p.ChainID, p.SrcChannel, p.SrcPort, p.DstChannel, p.DstPort, p.EffectedSigner, p.EffectedMemo)
		}
		m.chainpulsePackets.WithLabelValues(p.ChainID).Inc()
		return nil
	})
}
