package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Cordtus/chainpulse/internal/core/domain"
	"github.com/Cordtus/chainpulse/internal/infra/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(context.Background(), filepath.Join(dir, "chainpulse.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func samplePacket() *domain.Packet {
	sender, receiver, denom, amount := "osmo1a", "noble1b", "uusdc", "30371228"
	return &domain.Packet{
		ChainID:     "osmosis-1",
		SrcPort:     "transfer",
		SrcChannel:  "channel-750",
		DstPort:     "transfer",
		DstChannel:  "channel-1",
		Sequence:    892193,
		MsgTypeURL:  "/ibc.core.channel.v1.MsgRecvPacket",
		DataHash:    "abc123",
		Signer:      "osmo1relayer",
		Effected:    domain.EffectPending,
		IBCVersion:  domain.IBCVersionV1,
		CreatedAt:   time.Now().UTC(),
		Sender:      &sender,
		Receiver:    &receiver,
		Denom:       &denom,
		Amount:      &amount,
	}
}

func TestInsertSendThenGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := samplePacket()

	inserted, existing, err := s.InsertSend(ctx, p)
	if err != nil {
		t.Fatalf("InsertSend: %v", err)
	}
	if !inserted || existing != nil {
		t.Fatalf("InsertSend = (%v, %v), want (true, nil)", inserted, existing)
	}

	got, err := s.Get(ctx, p.ChainID, p.SrcChannel, p.Sequence)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Effected != domain.EffectPending {
		t.Fatalf("Effected = %v, want pending", got.Effected)
	}
	if !got.HasTransferPayload() || *got.Denom != "uusdc" {
		t.Fatalf("transfer payload not round-tripped: %+v", got)
	}
}

func TestInsertSendIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := samplePacket()

	if _, _, err := s.InsertSend(ctx, p); err != nil {
		t.Fatalf("first InsertSend: %v", err)
	}

	inserted, existing, err := s.InsertSend(ctx, p)
	if err != nil {
		t.Fatalf("second InsertSend: %v", err)
	}
	if inserted {
		t.Fatal("second InsertSend reported inserted=true")
	}
	if existing == nil {
		t.Fatal("second InsertSend returned nil existing row")
	}
}

func TestMarkEffectedThenFrontrunLoses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := samplePacket()
	key := p.Key()

	if _, _, err := s.InsertSend(ctx, p); err != nil {
		t.Fatalf("InsertSend: %v", err)
	}

	if _, err := s.MarkEffected(ctx, key, "relayer-a", "relay memo a", "TXHASH_A", time.Now()); err != nil {
		t.Fatalf("MarkEffected: %v", err)
	}

	existing, err := s.MarkUneffected(ctx, key, "relayer-b", "relay memo b", "TXHASH_B", time.Now())
	if !errors.Is(err, storage.ErrWouldFrontrun) {
		t.Fatalf("MarkUneffected err = %v, want ErrWouldFrontrun", err)
	}
	if existing == nil || existing.EffectedSigner != "relayer-a" {
		t.Fatalf("existing = %+v, want winner relayer-a", existing)
	}

	got, err := s.Get(ctx, p.ChainID, p.SrcChannel, p.Sequence)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Effected != domain.EffectDelivered {
		t.Fatalf("Effected = %v, want delivered (frontrun loser must not overwrite)", got.Effected)
	}
}

func TestFindStuckOrdersOldestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := samplePacket()
	older.Sequence = 1
	older.CreatedAt = time.Now().Add(-2 * time.Hour).UTC()

	newer := samplePacket()
	newer.Sequence = 2
	newer.CreatedAt = time.Now().Add(-90 * time.Minute).UTC()

	if _, _, err := s.InsertSend(ctx, older); err != nil {
		t.Fatalf("InsertSend older: %v", err)
	}
	if _, _, err := s.InsertSend(ctx, newer); err != nil {
		t.Fatalf("InsertSend newer: %v", err)
	}

	stuck, err := s.FindStuck(ctx, time.Hour, 10)
	if err != nil {
		t.Fatalf("FindStuck: %v", err)
	}
	if len(stuck) != 2 {
		t.Fatalf("len(stuck) = %d, want 2", len(stuck))
	}
	if stuck[0].Sequence != 1 || stuck[1].Sequence != 2 {
		t.Fatalf("stuck order = %v, %v, want 1, 2", stuck[0].Sequence, stuck[1].Sequence)
	}
}

func TestChannelCongestionSumsAmountsByDenom(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := samplePacket()
	a.Sequence = 1
	b := samplePacket()
	b.Sequence = 2

	if _, _, err := s.InsertSend(ctx, a); err != nil {
		t.Fatalf("InsertSend a: %v", err)
	}
	if _, _, err := s.InsertSend(ctx, b); err != nil {
		t.Fatalf("InsertSend b: %v", err)
	}

	congestion, err := s.ChannelCongestion(ctx)
	if err != nil {
		t.Fatalf("ChannelCongestion: %v", err)
	}
	if len(congestion) != 1 {
		t.Fatalf("len(congestion) = %d, want 1", len(congestion))
	}
	c := congestion[0]
	if c.StuckCount != 2 {
		t.Fatalf("StuckCount = %d, want 2", c.StuckCount)
	}
	if c.TotalByDenom["uusdc"] != "60742456" {
		t.Fatalf("TotalByDenom[uusdc] = %q, want 60742456", c.TotalByDenom["uusdc"])
	}
}

func TestFindByUserFiltersByRole(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := samplePacket()

	if _, _, err := s.InsertSend(ctx, p); err != nil {
		t.Fatalf("InsertSend: %v", err)
	}

	byReceiver, total, err := s.FindByUser(ctx, "noble1b", storage.RoleReceiver, 10, 0)
	if err != nil {
		t.Fatalf("FindByUser receiver: %v", err)
	}
	if total != 1 || len(byReceiver) != 1 {
		t.Fatalf("FindByUser receiver = (%d results, total %d), want (1, 1)", len(byReceiver), total)
	}

	bySender, total, err := s.FindByUser(ctx, "osmo1a", storage.RoleSender, 10, 0)
	if err != nil {
		t.Fatalf("FindByUser sender: %v", err)
	}
	if total != 1 || len(bySender) != 1 {
		t.Fatalf("FindByUser sender = (%d results, total %d), want (1, 1)", len(bySender), total)
	}
}

func TestReplayAllVisitsEveryRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := samplePacket()
	if _, _, err := s.InsertSend(ctx, p); err != nil {
		t.Fatalf("InsertSend: %v", err)
	}

	var seen int
	err := s.ReplayAll(ctx, func(domain.Packet) error {
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	if seen != 1 {
		t.Fatalf("seen = %d, want 1", seen)
	}
}
