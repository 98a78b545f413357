package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Cordtus/chainpulse/internal/core/domain"
	"github.com/Cordtus/chainpulse/internal/infra/storage"
)

// packetRow mirrors the packets table, scanned with sqlx struct tags.
type packetRow struct {
	ID                          int64          `db:"id"`
	ChainID                     string         `db:"chain_id"`
	SrcPort                     string         `db:"src_port"`
	SrcChannel                  string         `db:"src_channel"`
	DstPort                     string         `db:"dst_port"`
	DstChannel                  string         `db:"dst_channel"`
	Sequence                    int64          `db:"sequence"`
	MsgTypeURL                  string         `db:"msg_type_url"`
	DataHash                    string         `db:"data_hash"`
	Signer                      string         `db:"signer"`
	Effected                    int            `db:"effected"`
	EffectedSigner              sql.NullString `db:"effected_signer"`
	EffectedTx                  sql.NullString `db:"effected_tx"`
	EffectedMemo                sql.NullString `db:"effected_memo"`
	Sender                      sql.NullString `db:"sender"`
	Receiver                    sql.NullString `db:"receiver"`
	Denom                       sql.NullString `db:"denom"`
	Amount                      sql.NullString `db:"amount"`
	IBCVersion                  string         `db:"ibc_version"`
	TimeoutTimestamp             sql.NullInt64 `db:"timeout_timestamp"`
	TimeoutHeightRevisionNumber  sql.NullInt64 `db:"timeout_height_revision_number"`
	TimeoutHeightRevisionHeight  sql.NullInt64 `db:"timeout_height_revision_height"`
	CreatedAt                   string         `db:"created_at"`
	EffectedAt                  sql.NullString `db:"effected_at"`
}

func (r packetRow) toDomain() domain.Packet {
	p := domain.Packet{
		ChainID:     r.ChainID,
		SrcPort:     r.SrcPort,
		SrcChannel:  r.SrcChannel,
		DstPort:     r.DstPort,
		DstChannel:  r.DstChannel,
		Sequence:    uint64(r.Sequence),
		MsgTypeURL:  r.MsgTypeURL,
		DataHash:    r.DataHash,
		Signer:      r.Signer,
		Effected:    domain.EffectState(r.Effected),
		IBCVersion:  domain.IBCVersion(r.IBCVersion),
	}

	if t, err := time.Parse(sqliteTimeLayout, r.CreatedAt); err == nil {
		p.CreatedAt = t
	}
	if r.EffectedAt.Valid {
		if t, err := time.Parse(sqliteTimeLayout, r.EffectedAt.String); err == nil {
			p.EffectedAt = &t
		}
	}
	if r.EffectedSigner.Valid {
		p.EffectedSigner = r.EffectedSigner.String
	}
	if r.EffectedTx.Valid {
		p.EffectedTxHash = r.EffectedTx.String
	}
	if r.EffectedMemo.Valid {
		p.EffectedMemo = r.EffectedMemo.String
	}
	if r.TimeoutTimestamp.Valid {
		v := uint64(r.TimeoutTimestamp.Int64)
		p.TimeoutTimestamp = &v
	}
	if r.TimeoutHeightRevisionNumber.Valid || r.TimeoutHeightRevisionHeight.Valid {
		p.TimeoutHeight = &domain.Height{
			RevisionNumber: uint64(r.TimeoutHeightRevisionNumber.Int64),
			RevisionHeight: uint64(r.TimeoutHeightRevisionHeight.Int64),
		}
	}
	if r.Sender.Valid && r.Receiver.Valid && r.Denom.Valid && r.Amount.Valid {
		sender, receiver, denom, amount := r.Sender.String, r.Receiver.String, r.Denom.String, r.Amount.String
		p.Sender, p.Receiver, p.Denom, p.Amount = &sender, &receiver, &denom, &amount
	}

	return p
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

const writeRetryAttempts = 3
const writeRetryDelay = 100 * time.Millisecond

// Store implements storage.Store against the SQLite writer/reader pair.
type Store struct {
	db *DB
}

// NewStore wraps an opened DB as a storage.Store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) InsertSend(ctx context.Context, p *domain.Packet) (bool, *domain.Packet, error) {
	existing, err := s.getTx(ctx, s.db.Writer, p.ChainID, p.SrcChannel, p.Sequence)
	if err != nil {
		return false, nil, err
	}
	if existing != nil {
		return false, existing, nil
	}

	const q = `
		INSERT INTO packets
			(chain_id, src_port, src_channel, dst_port, dst_channel, sequence,
			 msg_type_url, data_hash, signer, effected, ibc_version,
			 sender, receiver, denom, amount,
			 timeout_timestamp, timeout_height_revision_number, timeout_height_revision_height,
			 created_at)
		VALUES
			(:chain_id, :src_port, :src_channel, :dst_port, :dst_channel, :sequence,
			 :msg_type_url, :data_hash, :signer, :effected, :ibc_version,
			 :sender, :receiver, :denom, :amount,
			 :timeout_timestamp, :timeout_height_revision_number, :timeout_height_revision_height,
			 :created_at)
		ON CONFLICT (chain_id, src_channel, sequence) DO NOTHING
	`

	args := map[string]any{
		"chain_id":     p.ChainID,
		"src_port":     p.SrcPort,
		"src_channel":  p.SrcChannel,
		"dst_port":     p.DstPort,
		"dst_channel":  p.DstChannel,
		"sequence":     p.Sequence,
		"msg_type_url": p.MsgTypeURL,
		"data_hash":    p.DataHash,
		"signer":       p.Signer,
		"effected":     int(domain.EffectPending),
		"ibc_version":  string(p.IBCVersion),
		"sender":       nullableStr(p.Sender),
		"receiver":     nullableStr(p.Receiver),
		"denom":        nullableStr(p.Denom),
		"amount":       nullableStr(p.Amount),
		"created_at":   p.CreatedAt.UTC().Format(sqliteTimeLayout),
	}
	if p.TimeoutTimestamp != nil {
		args["timeout_timestamp"] = *p.TimeoutTimestamp
	} else {
		args["timeout_timestamp"] = nil
	}
	if p.TimeoutHeight != nil {
		args["timeout_height_revision_number"] = p.TimeoutHeight.RevisionNumber
		args["timeout_height_revision_height"] = p.TimeoutHeight.RevisionHeight
	} else {
		args["timeout_height_revision_number"] = nil
		args["timeout_height_revision_height"] = nil
	}

	err = retryableWrite(ctx, writeRetryAttempts, writeRetryDelay, func() error {
		_, err := s.db.Writer.NamedExecContext(ctx, q, args)
		return err
	})
	if err != nil {
		return false, nil, fmt.Errorf("sqlite: insert send: %w", err)
	}
	return true, nil, nil
}

func (s *Store) MarkEffected(ctx context.Context, key domain.PacketKey, signer, memo, txHash string, when time.Time) (*domain.Packet, error) {
	return s.markTerminal(ctx, key, domain.EffectDelivered, signer, memo, txHash, when)
}

func (s *Store) MarkUneffected(ctx context.Context, key domain.PacketKey, signer, memo, txHash string, when time.Time) (*domain.Packet, error) {
	return s.markTerminal(ctx, key, domain.EffectUneffected, signer, memo, txHash, when)
}

func (s *Store) markTerminal(ctx context.Context, key domain.PacketKey, target domain.EffectState, signer, memo, txHash string, when time.Time) (*domain.Packet, error) {
	existing, err := s.getTx(ctx, s.db.Writer, key.ChainID, key.SrcChannel, key.Sequence)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("sqlite: mark terminal: %w", sql.ErrNoRows)
	}
	if existing.Effected != domain.EffectPending {
		return existing, storage.ErrWouldFrontrun
	}

	const q = `
		UPDATE packets
		SET effected = ?, effected_signer = ?, effected_tx = ?, effected_memo = ?, effected_at = ?
		WHERE chain_id = ? AND src_channel = ? AND sequence = ? AND effected = 0
	`
	err = retryableWrite(ctx, writeRetryAttempts, writeRetryDelay, func() error {
		_, err := s.db.Writer.ExecContext(ctx, q,
			int(target), signer, txHash, memo, when.UTC().Format(sqliteTimeLayout),
			key.ChainID, key.SrcChannel, key.Sequence,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: mark terminal: %w", err)
	}
	return nil, nil
}

func (s *Store) Get(ctx context.Context, chainID, channel string, sequence uint64) (*domain.Packet, error) {
	return s.getTx(ctx, s.db.Reader, chainID, channel, sequence)
}

func (s *Store) getTx(ctx context.Context, q sqlxQueryer, chainID, channel string, sequence uint64) (*domain.Packet, error) {
	var row packetRow
	err := getContext(ctx, q, &row,
		`SELECT * FROM packets WHERE chain_id = ? AND src_channel = ? AND sequence = ? LIMIT 1`,
		chainID, channel, sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get: %w", err)
	}
	p := row.toDomain()
	return &p, nil
}

func (s *Store) FindByChannelSequence(ctx context.Context, srcChannel string, sequence uint64) (*domain.Packet, error) {
	var row packetRow
	err := getContext(ctx, s.db.Writer, &row,
		`SELECT * FROM packets WHERE src_channel = ? AND sequence = ? LIMIT 1`,
		srcChannel, sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find by channel sequence: %w", err)
	}
	p := row.toDomain()
	return &p, nil
}

func (s *Store) FindByUser(ctx context.Context, addr string, role storage.Role, limit, offset int) ([]domain.Packet, int, error) {
	col := "sender"
	if role == storage.RoleReceiver {
		col = "receiver"
	}

	var rows []packetRow
	q := fmt.Sprintf(`SELECT * FROM packets WHERE %s = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, col)
	if err := selectContext(ctx, s.db.Reader, &rows, q, addr, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("sqlite: find by user: %w", err)
	}

	var total int
	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM packets WHERE %s = ?`, col)
	if err := s.db.Reader.GetContext(ctx, &total, countQ, addr); err != nil {
		return nil, 0, fmt.Errorf("sqlite: count by user: %w", err)
	}

	return toDomainSlice(rows), total, nil
}

func (s *Store) FindStuck(ctx context.Context, minAge time.Duration, limit int) ([]domain.Packet, error) {
	threshold := time.Now().Add(-minAge).UTC().Format(sqliteTimeLayout)

	var rows []packetRow
	const q = `
		SELECT * FROM packets
		WHERE effected = 0 AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	if err := selectContext(ctx, s.db.Reader, &rows, q, threshold, limit); err != nil {
		return nil, fmt.Errorf("sqlite: find stuck: %w", err)
	}
	return toDomainSlice(rows), nil
}

func (s *Store) ChannelCongestion(ctx context.Context) ([]domain.ChannelCongestion, error) {
	type aggRow struct {
		SrcChannel string `db:"src_channel"`
		DstChannel string `db:"dst_channel"`
		Count      int    `db:"cnt"`
		OldestAge  int64  `db:"oldest_age_secs"`
	}
	var aggs []aggRow
	const q = `
		SELECT
			src_channel, dst_channel,
			COUNT(*) AS cnt,
			CAST(MAX(strftime('%s','now') - strftime('%s', created_at)) AS INTEGER) AS oldest_age_secs
		FROM packets
		WHERE effected = 0
		GROUP BY src_channel, dst_channel
	`
	if err := selectContext(ctx, s.db.Reader, &aggs, q); err != nil {
		return nil, fmt.Errorf("sqlite: channel congestion: %w", err)
	}

	out := make([]domain.ChannelCongestion, 0, len(aggs))
	for _, a := range aggs {
		totals, err := s.denomTotals(ctx, a.SrcChannel, a.DstChannel)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ChannelCongestion{
			SrcChannel:         a.SrcChannel,
			DstChannel:         a.DstChannel,
			StuckCount:         a.Count,
			OldestStuckAgeSecs: a.OldestAge,
			TotalByDenom:       totals,
		})
	}
	return out, nil
}

func (s *Store) denomTotals(ctx context.Context, srcChannel, dstChannel string) (map[string]string, error) {
	type denomAmount struct {
		Denom  string `db:"denom"`
		Amount string `db:"amount"`
	}
	var rows []denomAmount
	const q = `
		SELECT denom, amount FROM packets
		WHERE effected = 0 AND src_channel = ? AND dst_channel = ?
		AND denom IS NOT NULL AND amount IS NOT NULL
	`
	if err := selectContext(ctx, s.db.Reader, &rows, q, srcChannel, dstChannel); err != nil {
		return nil, fmt.Errorf("sqlite: denom totals: %w", err)
	}

	// Amounts exceed 64-bit range (spec §3), so totals are tracked with
	// big.Int rather than summed as machine integers.
	totals := map[string]*bigIntAccum{}
	for _, r := range rows {
		acc, ok := totals[r.Denom]
		if !ok {
			acc = newBigIntAccum()
			totals[r.Denom] = acc
		}
		acc.addString(r.Amount)
	}

	out := make(map[string]string, len(totals))
	for denom, acc := range totals {
		out[denom] = acc.String()
	}
	return out, nil
}

func (s *Store) ReplayAll(ctx context.Context, fn func(domain.Packet) error) error {
	var rows []packetRow
	if err := selectContext(ctx, s.db.Reader, &rows, `SELECT * FROM packets`); err != nil {
		return fmt.Errorf("sqlite: replay all: %w", err)
	}
	for _, r := range rows {
		if err := fn(r.toDomain()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toDomainSlice(rows []packetRow) []domain.Packet {
	out := make([]domain.Packet, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

func nullableStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
