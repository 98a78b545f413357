// Package sqlite is the one shipped implementation of the storage
// contract (storage.Store), backed by modernc.org/sqlite (pure Go, no
// cgo) and github.com/jmoiron/sqlx for struct scanning.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB holds the two handles the single-writer discipline (spec §4.5, §5)
// requires: one writer with a max of one open connection, and a
// higher-concurrency read-only pool for the read API and metrics replay.
type DB struct {
	Writer *sqlx.DB
	Reader *sqlx.DB
}

// Open opens both handles against the same on-disk file, runs migrations
// against the writer, and enables WAL journaling.
func Open(ctx context.Context, path string) (*DB, error) {
	writerDSN := fmt.Sprintf("file:%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", path)
	writer, err := sqlx.Open("sqlite", writerDSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)

	if err := writer.PingContext(ctx); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("sqlite: ping writer: %w", err)
	}

	if err := migrate(writer.DB); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	readerDSN := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL&_busy_timeout=5000", path)
	reader, err := sqlx.Open("sqlite", readerDSN)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("sqlite: open reader: %w", err)
	}
	reader.SetMaxOpenConns(8)

	if err := reader.PingContext(ctx); err != nil {
		_ = writer.Close()
		_ = reader.Close()
		return nil, fmt.Errorf("sqlite: ping reader: %w", err)
	}

	return &DB{Writer: writer, Reader: reader}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Close closes both handles.
func (d *DB) Close() error {
	werr := d.Writer.Close()
	rerr := d.Reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Health pings the writer handle.
func (d *DB) Health(ctx context.Context) error {
	return d.Writer.PingContext(ctx)
}

// retryableWrite retries fn up to attempts times with delay between
// attempts, matching the bounded-retry storage error handling in the
// error handling design (3 attempts, 100ms between).
func retryableWrite(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
