// Package ratelimit provides fixed-window rate limiting for HTTP requests.
// Requests are metered per API key against a pluggable counter store (memory,
// Redis, SQLite, or Postgres). Two enforcement modes are supported: "block"
// rejects over-limit callers for a full window, "slowdown" admits them with
// an exponentially growing artificial delay. The package includes HTTP
// middleware that translates decisions into 429 responses, Retry-After
// headers, and informational rate limit headers.
package ratelimit

import (
	"fmt"
	"time"
)

// Mode selects the over-limit enforcement behavior.
type Mode string

const (
	// ModeBlock rejects every request for a full window once the quota is
	// exceeded.
	ModeBlock Mode = "block"
	// ModeSlowdown admits over-limit requests but delays them; no block
	// state is ever persisted.
	ModeSlowdown Mode = "slowdown"
)

// Slowdown defaults, applied when the corresponding Config field is zero.
const (
	DefaultSlowdownBase   = 500 * time.Millisecond
	DefaultSlowdownGrowth = 1.5
	DefaultSlowdownCap    = 10 * time.Second
)

// Config holds the limiter policy. Validation happens at construction so an
// invalid mode can never surface during request handling.
type Config struct {
	Window      time.Duration // Fixed window length
	MaxRequests int           // Admitted requests per window per identity
	Mode        Mode

	// Slowdown-mode delay curve: min(Cap, Base * Growth^(over-1)) where
	// over is how far past the limit the current request landed.
	SlowdownBase   time.Duration
	SlowdownGrowth float64
	SlowdownCap    time.Duration
}

func (c *Config) validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	// Window ids are unix seconds, so fractional windows would silently
	// round; reject them here instead.
	if c.Window%time.Second != 0 {
		return fmt.Errorf("window must be a whole number of seconds, got %s", c.Window)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive, got %d", c.MaxRequests)
	}
	switch c.Mode {
	case ModeBlock, ModeSlowdown:
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	if c.SlowdownGrowth != 0 && c.SlowdownGrowth < 1 {
		return fmt.Errorf("slowdown growth must be at least 1, got %g", c.SlowdownGrowth)
	}
	return nil
}

// Decision is the outcome of checking one request against the limiter. At
// most one of RetryAfter and Slowdown is set: RetryAfter accompanies a
// rejection under block mode, Slowdown accompanies an admitted-but-delayed
// request under slowdown mode.
type Decision struct {
	Allowed    bool
	Remaining  int           // Quota left in the current window, 0 once over limit
	RetryAfter time.Duration // How long the caller should wait before retrying
	Slowdown   time.Duration // Artificial delay to apply before responding
}
