package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Cordtus/chainpulse/internal/core/domain"
	"github.com/Cordtus/chainpulse/internal/infra/storage"
)

func TestIncEffectedIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, nil)

	m.IncEffected("osmosis-1", "channel-750", "transfer", "channel-1", "transfer", "relayerA", "")

	got := testutil.ToFloat64(m.ibcEffectedPackets.WithLabelValues("osmosis-1", "channel-750", "transfer", "channel-1", "transfer", "relayerA", ""))
	if got != 1 {
		t.Fatalf("ibc_effected_packets = %v, want 1", got)
	}
}

func TestIncFrontrunCarriesBothSignersAndMemos(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, nil)

	m.IncFrontrun("osmosis-1", "channel-750", "transfer", "channel-1", "transfer", "relayerB", "relayerA", "loser memo", "winner memo")

	got := testutil.ToFloat64(m.ibcFrontrunCounter.WithLabelValues("osmosis-1", "channel-750", "transfer", "channel-1", "transfer", "relayerB", "relayerA", "loser memo", "winner memo"))
	if got != 1 {
		t.Fatalf("ibc_frontrun_counter = %v, want 1", got)
	}
}

type fakeStore struct {
	packets []domain.Packet
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
func (s *fakeStore) Get(context.Context, string, string, uint64) (*domain.Packet, error) { return nil, nil }
func (s *fakeStore) FindByChannelSequence(context.Context, string, uint64) (*domain.Packet, error) {
	return nil, nil
}
func (s *fakeStore) FindByUser(context.Context, string, storage.Role, int, int) ([]domain.Packet, int, error) {
	return nil, 0, nil
}
func (s *fakeStore) FindStuck(context.Context, time.Duration, int) ([]domain.Packet, error) {
	return nil, nil
}
func (s *fakeStore) ChannelCongestion(context.Context) ([]domain.ChannelCongestion, error) {
	return nil, nil
}
func (s *fakeStore) ReplayAll(ctx context.Context, fn func(domain.Packet) error) error {
	for _, p := range s.packets {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}
func (s *fakeStore) Close() error { return nil }

func TestPopulateReplaysTerminalPackets(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := &fakeStore{packets: []domain.Packet{
		{ChainID: "osmosis-1", SrcChannel: "channel-750", DstChannel: "channel-1", Effected: domain.EffectDelivered, EffectedSigner: "relayerA"},
		{ChainID: "osmosis-1", SrcChannel: "channel-750", DstChannel: "channel-1", Effected: domain.EffectPending},
	}}
	m := New(reg, store)

	if err := m.Populate(context.Background()); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	got := testutil.ToFloat64(m.ibcEffectedPackets.WithLabelValues("osmosis-1", "channel-750", "", "channel-1", "", "relayerA", ""))
	if got != 1 {
		t.Fatalf("ibc_effected_packets after populate = %v, want 1", got)
	}
}
