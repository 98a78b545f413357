// Package storage defines the storage contract (spec component 4.5): the
// operations the lifecycle engine, metrics aggregator replay, and read API
// need, independent of the backing engine. SQLite (package sqlite) is the
// one implementation shipped; the contract is written so another engine
// could satisfy it.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Cordtus/chainpulse/internal/core/domain"
)

// ErrWouldFrontrun is returned by MarkEffected/MarkUneffected when the row
// is already in a terminal state; the caller uses the returned existing
// row to attribute the frontrun.
var ErrWouldFrontrun = errors.New("storage: packet already in a terminal state")

// Role selects which transfer-payload column find_by_user filters on.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Store is the storage contract consumed by the lifecycle engine and the
// read API. A single writer goroutine calls the mutating methods; readers
// (API handlers, metrics replay) may call the read methods concurrently.
type Store interface {
	// InsertSend inserts a packet in the pending state. Idempotent on the
	// identifying triple: the first write for a given key wins, later
	// calls are no-ops that return the existing row.
	InsertSend(ctx context.Context, p *domain.Packet) (inserted bool, existing *domain.Packet, err error)

	// MarkEffected sets effected=delivered, but only if the row is
	// currently pending. If the row is already terminal, it returns
	// ErrWouldFrontrun along with the existing row so the caller can
	// attribute a frontrun to the loser.
	MarkEffected(ctx context.Context, key domain.PacketKey, signer, memo, txHash string, when time.Time) (existing *domain.Packet, err error)

	// MarkUneffected sets effected=uneffected, but only if the row is
	// currently pending; otherwise it returns ErrWouldFrontrun along with
	// the existing (already terminal) row.
	MarkUneffected(ctx context.Context, key domain.PacketKey, signer, memo, txHash string, when time.Time) (existing *domain.Packet, err error)

	// Get returns the row for an identifying triple, or nil if not found.
	Get(ctx context.Context, chainID, channel string, sequence uint64) (*domain.Packet, error)

	// FindByChannelSequence looks up a row by (src_channel, sequence) alone,
	// ignoring chain_id. The lifecycle engine uses this when processing a
	// destination-chain message: the collector observing MsgRecvPacket has
	// no way to learn the true source chain_id without a channel-to-client
	// resolution this collector doesn't perform, so it locates any existing
	// row by the packet's own identifying fields instead.
	FindByChannelSequence(ctx context.Context, srcChannel string, sequence uint64) (*domain.Packet, error)

	// FindByUser returns packets where the sender or receiver column
	// matches addr, newest first.
	FindByUser(ctx context.Context, addr string, role Role, limit, offset int) ([]domain.Packet, int, error)

	// FindStuck returns pending rows older than minAge, oldest first.
	FindStuck(ctx context.Context, minAge time.Duration, limit int) ([]domain.Packet, error)

	// ChannelCongestion aggregates pending packet counts and amounts by
	// denom for every (src_channel, dst_channel) pair.
	ChannelCongestion(ctx context.Context) ([]domain.ChannelCongestion, error)

	// ReplayAll streams every persisted row to fn, used by the metrics
	// aggregator's populate_on_start replay.
	ReplayAll(ctx context.Context, fn func(domain.Packet) error) error

	Close() error
}
