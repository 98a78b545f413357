// Package lifecycle implements the packet lifecycle engine (spec component
// 4.6): it consumes normalized blocks from every chain collector and drives
// the insert_send / mark_effected / mark_uneffected state machine, funneling
// every storage mutation through one serialized write path.
package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/Cordtus/chainpulse/internal/core/domain"
	"github.com/Cordtus/chainpulse/internal/ibc/event"
	"github.com/Cordtus/chainpulse/internal/ibc/msg"
	"github.com/Cordtus/chainpulse/internal/ibc/transfer"
	"github.com/Cordtus/chainpulse/internal/infra/chain"
	"github.com/Cordtus/chainpulse/internal/infra/storage"
)

// Engine drives packet lifecycle transitions from normalized blocks.
type Engine struct {
	store   storage.Store
	metrics Recorder
	funnel  *writeFunnel
}

// New constructs an Engine. metrics may be nil, in which case observations
// are recorded nowhere (useful in tests that only assert on storage state).
func New(store storage.Store, metrics Recorder) *Engine {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Engine{store: store, metrics: metrics, funnel: newWriteFunnel()}
}

// Close stops the write funnel, waiting for in-flight jobs to drain.
func (e *Engine) Close() {
	e.funnel.close()
}

// ProcessBlock walks every tx in a normalized block and applies its
// lifecycle transitions, messages before events per tx (spec §4.6).
func (e *Engine) ProcessBlock(ctx context.Context, block chain.NormalizedBlock) error {
	for _, tx := range block.Txs {
		if err := e.processTx(ctx, block.ChainID, block.Time, tx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) processTx(ctx context.Context, chainID string, blockTime time.Time, tx chain.NormalizedTx) error {
	for _, m := range tx.Messages {
		if err := e.processMessage(ctx, chainID, blockTime, tx, m); err != nil {
			return err
		}
	}
	for _, raw := range tx.Events {
		if err := e.processEvent(ctx, chainID, blockTime, raw); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) processMessage(ctx context.Context, chainID string, blockTime time.Time, tx chain.NormalizedTx, m chain.RawMsg) error {
	d, err := msg.Decode(m.TypeURL, m.Value)
	if err != nil {
		e.metrics.IncErrors(chainID)
		slog.Debug("undecodable ibc message", "chain", chainID, "type_url", m.TypeURL, "error", err)
		return nil
	}

	switch d.Kind {
	case msg.KindUnknown:
		e.metrics.IncUnknownMsg(chainID, m.TypeURL)
		return nil
	case msg.KindChannelHandshake, msg.KindTransfer:
		// Known but not lifecycle-relevant on their own: MsgTransfer's row
		// is inserted from the paired send_packet event, not the message
		// itself (the sequence isn't known until the core IBC module
		// assigns it).
		return nil
	}

	if !msg.IsRelevant(d.Kind) || d.Packet == nil {
		return nil
	}

	e.metrics.IncPackets(chainID)
	return e.resolveTerminal(ctx, chainID, blockTime, tx, d)
}

// resolveTerminal looks up (or synthesizes, per spec §4.6's "the
// source-side send_packet may live on a chain ChainPulse does not
// monitor") the row a recv/ack/timeout message refers to, then transitions
// it to its terminal state.
//
// The lookup is by (src_channel, sequence) alone, not chain_id: a collector
// watching the destination chain has no way to learn the true source
// chain_id from the bare message (that requires resolving the channel's
// counterparty client, out of scope here). When no row exists, one is
// created using the observing collector's own chain_id as a practical
// fallback — this is a deliberate, documented simplification, not an
// oversight.
func (e *Engine) resolveTerminal(ctx context.Context, observerChainID string, blockTime time.Time, tx chain.NormalizedTx, d msg.Decoded) error {
	p := d.Packet
	succeeded := txHasTerminalEvent(tx, p.SourceChannel, p.Sequence)

	var key domain.PacketKey
	var createdAt time.Time
	err := e.funnel.submit(ctx, func() error {
		row, ferr := e.store.FindByChannelSequence(ctx, p.SourceChannel, p.Sequence)
		if ferr != nil {
			return ferr
		}
		if row == nil {
			fresh := &domain.Packet{
				ChainID:    observerChainID,
				SrcPort:    p.SourcePort,
				SrcChannel: p.SourceChannel,
				DstPort:    p.DestinationPort,
				DstChannel: p.DestinationChannel,
				Sequence:   p.Sequence,
				MsgTypeURL: d.TypeURL,
				DataHash:   p.DataHash,
				Signer:     d.Signer,
				Effected:   domain.EffectPending,
				IBCVersion: domain.IBCVersionV1,
				CreatedAt:  blockTime,
			}
			if d.Transfer != nil {
				applyTransfer(fresh, d.Transfer)
			}
			if _, _, ierr := e.store.InsertSend(ctx, fresh); ierr != nil {
				return ierr
			}
			row = fresh
		}
		key, createdAt = row.Key(), row.CreatedAt
		return nil
	})
	if err != nil {
		return err
	}

	return e.settleTerminal(ctx, observerChainID, key, createdAt, d.Signer, tx.Memo, tx.Hash, blockTime, p, succeeded)
}

func (e *Engine) settleTerminal(ctx context.Context, chainID string, key domain.PacketKey, createdAt time.Time, signer, memo, txHash string, when time.Time, p *msg.Packet, succeeded bool) error {
	var (
		existing *domain.Packet
		markErr  error
	)
	err := e.funnel.submit(ctx, func() error {
		if succeeded {
			existing, markErr = e.store.MarkEffected(ctx, key, signer, memo, txHash, when)
		} else {
			existing, markErr = e.store.MarkUneffected(ctx, key, signer, memo, txHash, when)
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch {
	case errors.Is(markErr, storage.ErrWouldFrontrun):
		// The row was already terminal: attribute the frontrun to this
		// (losing) observation, labeling both sides per the metric's
		// label set (spec §4.7).
		winnerSigner, winnerMemo := "", ""
		if existing != nil {
			winnerSigner, winnerMemo = existing.EffectedSigner, existing.EffectedMemo
		}
		e.metrics.IncUneffected(chainID, p.SourceChannel, p.SourcePort, p.DestinationChannel, p.DestinationPort, signer, memo)
		e.metrics.IncFrontrun(chainID, p.SourceChannel, p.SourcePort, p.DestinationChannel, p.DestinationPort, signer, winnerSigner, memo, winnerMemo)
	case markErr != nil:
		return markErr
	case succeeded:
		e.metrics.IncEffected(chainID, p.SourceChannel, p.SourcePort, p.DestinationChannel, p.DestinationPort, signer, memo)
		if !createdAt.IsZero() {
			e.metrics.ObservePacketAge(chainID, p.SourceChannel, p.DestinationChannel, when.Sub(createdAt).Seconds())
		}
	default:
		e.metrics.IncUneffected(chainID, p.SourceChannel, p.SourcePort, p.DestinationChannel, p.DestinationPort, signer, memo)
	}
	return nil
}

func (e *Engine) processEvent(ctx context.Context, chainID string, blockTime time.Time, raw chain.RawEvent) error {
	d, ok := event.Decode(raw)
	if !ok || d.Kind != event.KindSendPacket {
		return nil
	}

	p := &domain.Packet{
		ChainID:    chainID,
		SrcPort:    d.Identifying.SrcPort,
		SrcChannel: d.Identifying.SrcChannel,
		DstPort:    d.Identifying.DstPort,
		DstChannel: d.Identifying.DstChannel,
		Sequence:   d.Identifying.Sequence,
		DataHash:   dataHash(d.Data),
		Effected:   domain.EffectPending,
		IBCVersion: domain.IBCVersionV1,
		CreatedAt:  blockTime,
	}
	if d.TimeoutTimestamp != 0 {
		ts := d.TimeoutTimestamp
		p.TimeoutTimestamp = &ts
	}
	if d.TimeoutHeight != (domain.Height{}) {
		h := d.TimeoutHeight
		p.TimeoutHeight = &h
	}
	if d.Transfer != nil {
		applyTransfer(p, d.Transfer)
	}

	e.metrics.IncPackets(chainID)
	return e.funnel.submit(ctx, func() error {
		_, _, err := e.store.InsertSend(ctx, p)
		return err
	})
}

func applyTransfer(p *domain.Packet, t *transfer.Payload) {
	sender, receiver, denom, amount := t.Sender, t.Receiver, t.Denom, t.Amount
	if sender == "" || receiver == "" || denom == "" || amount == "" {
		return
	}
	p.Sender, p.Receiver, p.Denom, p.Amount = &sender, &receiver, &denom, &amount
}

// txHasTerminalEvent reports whether tx's events include a terminal
// lifecycle event (recv_packet/write_acknowledgement/acknowledge_packet/
// timeout_packet) matching the given packet identity, which the engine
// treats as the message having succeeded.
func txHasTerminalEvent(tx chain.NormalizedTx, srcChannel string, sequence uint64) bool {
	for _, raw := range tx.Events {
		d, ok := event.Decode(raw)
		if !ok {
			continue
		}
		switch d.Kind {
		case event.KindRecvPacket, event.KindWriteAcknowledgement, event.KindAcknowledgePacket, event.KindTimeoutPacket:
		default:
			continue
		}
		if d.Identifying.SrcChannel == srcChannel && d.Identifying.Sequence == sequence {
			return true
		}
	}
	return false
}

func dataHash(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
