package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rate_limits (
	identity      TEXT    NOT NULL,
	window_start  BIGINT  NOT NULL,
	count         BIGINT  NOT NULL DEFAULT 1,
	blocked_until BIGINT  NOT NULL DEFAULT 0,
	PRIMARY KEY (identity, window_start)
);
CREATE INDEX IF NOT EXISTS idx_rate_limits_identity ON rate_limits (identity);
`

// PostgresStore is a CounterStore over a shared Postgres table, for fleets
// that already run Postgres and don't want a Redis dependency. MVCC row
// locking serializes concurrent upserts without the busy-retry loop the
// SQLite store needs.
type PostgresStore struct {
	pool *pgxpool.Pool

	retention atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// NewPostgresStore connects to the database and prepares the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &PostgresStore{
		pool: pool,
		done: make(chan struct{}),
	}
	s.retention.Store(int64(time.Hour / time.Second))
	go s.janitor()
	return s, nil
}

func (s *PostgresStore) Increment(ctx context.Context, identity string, windowStart int64, ttl time.Duration) (int64, error) {
	if secs := int64(ttl / time.Second); secs > s.retention.Load() {
		s.retention.Store(secs)
	}

	var count int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO rate_limits (identity, window_start, count, blocked_until)
		 VALUES ($1, $2, 1, 0)
		 ON CONFLICT (identity, window_start) DO UPDATE SET count = rate_limits.count + 1
		 RETURNING count`,
		identity, windowStart).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres increment: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) GetBlock(ctx context.Context, identity string) (time.Time, bool, error) {
	var until int64
	err := s.pool.QueryRow(ctx,
		`SELECT blocked_until FROM rate_limits
		 WHERE identity = $1 AND blocked_until > $2
		 ORDER BY blocked_until DESC LIMIT 1`,
		identity, time.Now().Unix()).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("postgres get block: %w", err)
	}
	return time.Unix(until, 0), true, nil
}

func (s *PostgresStore) SetBlock(ctx context.Context, identity string, until time.Time, _ time.Duration) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rate_limits SET blocked_until = $1
		 WHERE identity = $2 AND window_start =
		   (SELECT MAX(window_start) FROM rate_limits WHERE identity = $2)`,
		until.Unix(), identity)
	if err != nil {
		return fmt.Errorf("postgres set block: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rate_limits (identity, window_start, count, blocked_until)
		 VALUES ($1, $2, 0, $2)
		 ON CONFLICT (identity, window_start) DO UPDATE SET blocked_until = EXCLUDED.blocked_until`,
		identity, until.Unix())
	if err != nil {
		return fmt.Errorf("postgres set block insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearBlock(ctx context.Context, identity string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE rate_limits SET blocked_until = 0 WHERE identity = $1 AND blocked_until != 0`,
		identity)
	if err != nil {
		return fmt.Errorf("postgres clear block: %w", err)
	}
	return nil
}

// Close stops the janitor and releases the pool.
func (s *PostgresStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.pool.Close()
	return nil
}

func (s *PostgresStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			now := time.Now().Unix()
			_, _ = s.pool.Exec(ctx,
				`DELETE FROM rate_limits WHERE window_start < $1 AND blocked_until < $2`,
				now-s.retention.Load(), now)
			cancel()
		}
	}
}
