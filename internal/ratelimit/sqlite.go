package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rate_limits (
	identity      TEXT    NOT NULL,
	window_start  INTEGER NOT NULL,
	count         INTEGER NOT NULL DEFAULT 1,
	blocked_until INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (identity, window_start)
);
CREATE INDEX IF NOT EXISTS idx_rate_limits_identity ON rate_limits (identity);
`

// Busy-retry budget for lock contention. SQLite rejects concurrent writers
// with SQLITE_BUSY; contention is expected to be transient and brief, so we
// back off starting at 1ms, doubling per attempt, capped per sleep.
const (
	sqliteBusyRetries  = 20
	sqliteBackoffBase  = time.Millisecond
	sqliteBackoffCap   = 250 * time.Millisecond
	sqliteJanitorEvery = time.Minute
)

// SQLiteStore is an embedded CounterStore over a single rate_limits table.
// It suits single-node deployments that need counts to survive restarts
// without running a separate service. Increments are single-statement
// upserts, so the database engine is the arbiter of ordering; writers that
// lose the lock race retry with bounded exponential backoff and surface
// ErrContended once the budget is spent.
type SQLiteStore struct {
	db *sql.DB

	// Longest TTL observed on Increment, in seconds. The janitor uses it
	// as the retention horizon for stale window rows.
	retention atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// NewSQLiteStore opens (or creates) the database at path and prepares the
// schema. Path ":memory:" keeps all state on one shared connection so
// concurrent logical callers see the same database; file-backed databases
// use WAL with short-lived implicit transactions.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{
		db:   db,
		done: make(chan struct{}),
	}
	s.retention.Store(int64(time.Hour / time.Second))
	go s.janitor()
	return s, nil
}

func (s *SQLiteStore) Increment(ctx context.Context, identity string, windowStart int64, ttl time.Duration) (int64, error) {
	if secs := int64(ttl / time.Second); secs > s.retention.Load() {
		s.retention.Store(secs)
	}

	var count int64
	err := s.withBusyRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`INSERT INTO rate_limits (identity, window_start, count, blocked_until)
			 VALUES (?, ?, 1, 0)
			 ON CONFLICT (identity, window_start) DO UPDATE SET count = count + 1
			 RETURNING count`,
			identity, windowStart)
		return row.Scan(&count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteStore) GetBlock(ctx context.Context, identity string) (time.Time, bool, error) {
	var until int64
	err := s.withBusyRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT blocked_until FROM rate_limits
			 WHERE identity = ? AND blocked_until > ?
			 ORDER BY blocked_until DESC LIMIT 1`,
			identity, time.Now().Unix())
		return row.Scan(&until)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(until, 0), true, nil
}

func (s *SQLiteStore) SetBlock(ctx context.Context, identity string, until time.Time, _ time.Duration) error {
	return s.withBusyRetry(ctx, func() error {
		// The identity was just counted, so its latest window row exists
		// in the common case.
		res, err := s.db.ExecContext(ctx,
			`UPDATE rate_limits SET blocked_until = ?
			 WHERE identity = ? AND window_start =
			   (SELECT MAX(window_start) FROM rate_limits WHERE identity = ?)`,
			until.Unix(), identity, identity)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO rate_limits (identity, window_start, count, blocked_until)
			 VALUES (?, ?, 0, ?)
			 ON CONFLICT (identity, window_start) DO UPDATE SET blocked_until = excluded.blocked_until`,
			identity, until.Unix(), until.Unix())
		return err
	})
}

func (s *SQLiteStore) ClearBlock(ctx context.Context, identity string) error {
	return s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE rate_limits SET blocked_until = 0 WHERE identity = ? AND blocked_until != 0`,
			identity)
		return err
	})
}

// Close stops the janitor and closes the database.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.db.Close()
}

// withBusyRetry runs op, retrying SQLITE_BUSY/SQLITE_LOCKED failures with
// bounded exponential backoff. The sleep yields to the scheduler, so other
// goroutines keep running. Once the budget is exhausted the caller gets
// ErrContended, which the engine turns into a short conservative rejection.
func (s *SQLiteStore) withBusyRetry(ctx context.Context, op func() error) error {
	backoff := retry.WithMaxRetries(sqliteBusyRetries,
		retry.WithCappedDuration(sqliteBackoffCap,
			retry.NewExponential(sqliteBackoffBase)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := op(); err != nil {
			if isBusy(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil && isBusy(err) {
		return fmt.Errorf("%w: %v", ErrContended, err)
	}
	return err
}

// isBusy reports whether err is SQLite lock contention rather than a real
// failure.
func isBusy(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "table is locked")
}

// janitor periodically drops window rows past the retention horizon whose
// block markers have also expired. Expiry is otherwise lazy: reads ignore
// stale rows, so the purge only reclaims space.
func (s *SQLiteStore) janitor() {
	ticker := time.NewTicker(sqliteJanitorEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now().Unix()
			cutoff := now - s.retention.Load()
			_, _ = s.db.Exec(
				`DELETE FROM rate_limits WHERE window_start < ? AND blocked_until < ?`,
				cutoff, now)
		}
	}
}
