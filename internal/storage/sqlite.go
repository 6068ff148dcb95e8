// Package storage is the SQLite content store: repositories, documents,
// the full-text search index and search analytics.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// Options tunes the store.
type Options struct {
	// RebuildBatchSize is the number of documents copied per shadow batch.
	RebuildBatchSize int
	Logger           *slog.Logger
}

// Store is the SQLite-backed content store.
type Store struct {
	db        *sql.DB
	path      string
	logger    *slog.Logger
	batchSize int
	now       func() time.Time

	rebuildMu sync.Mutex
	active    atomic.Value // string: live FTS5 table
	docLocks  keyedMutex
}

// Open opens (creating if needed) the store at path and applies the schema.
// Use ":memory:" for a private in-memory store.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := opts.RebuildBatchSize
	if batch <= 0 {
		batch = 500
	}

	dsn := memoryPath + "?_pragma=foreign_keys(1)&_txlock=immediate"
	if path != memoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == memoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:        db,
		path:      path,
		logger:    logger,
		batchSize: batch,
		now:       func() time.Time { return time.Now().UTC() },
	}

	if err := s.pingWithRetry(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	if _, err := s.loadActive(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// pingWithRetry verifies the database is usable, retrying with exponential
// backoff while the file is locked by another process.
func (s *Store) pingWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single round trip to the database.
func (s *Store) Health(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return storeErr("health", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// inTx runs fn in a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(op+": begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(op+": commit", err)
	}
	return nil
}

func unixTime(t time.Time) int64 {
	return t.UTC().Unix()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return unixTime(*t)
}

func floatArg(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
