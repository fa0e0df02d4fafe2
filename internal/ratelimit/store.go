package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrContended is returned by the SQLite store once its busy-retry budget is
// exhausted. The engine maps it to a short conservative rejection rather than
// failing open, since sustained local contention means the limiter itself is
// overloaded.
var ErrContended = errors.New("counter store contended")

// CounterStore is the persistence seam for per-window request counts and
// per-identity block markers. Implementations must make Increment atomic for
// concurrent callers of the same (identity, windowStart) key; the store is
// the sole arbiter of increment ordering.
//
// Any other error returned by a store method is an infrastructure failure,
// never an admission decision.
type CounterStore interface {
	// Increment adds one to the counter for (identity, windowStart),
	// creating it at 1 if absent, and (re)arms its expiry to ttl from now.
	// Returns the post-increment count.
	Increment(ctx context.Context, identity string, windowStart int64, ttl time.Duration) (int64, error)

	// GetBlock returns the identity's block deadline and true when an
	// unexpired block marker exists.
	GetBlock(ctx context.Context, identity string) (time.Time, bool, error)

	// SetBlock records a block marker expiring from the store after ttl.
	SetBlock(ctx context.Context, identity string, until time.Time, ttl time.Duration) error

	// ClearBlock removes the identity's block marker. Best-effort: stores
	// may also expire markers lazily.
	ClearBlock(ctx context.Context, identity string) error

	// Close releases backend resources and stops any background janitors.
	Close() error
}
