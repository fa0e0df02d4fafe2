package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"adgate/internal/clock"
)

// expiryGrace pads counter TTLs past the window length so a record never
// vanishes while its window is still current.
const expiryGrace = 5 * time.Second

// contendedRetryAfter is the conservative rejection window handed out when
// the embedded store cannot win its lock within the retry budget.
const contendedRetryAfter = time.Second

// Engine turns a per-request counter into admission decisions. It holds no
// mutable state of its own; everything shared lives in the CounterStore, so
// one Engine is safe for any number of concurrent requests.
type Engine struct {
	store CounterStore
	clk   clock.Clock

	window time.Duration
	max    int
	mode   Mode

	slowBase   time.Duration
	slowGrowth float64
	slowCap    time.Duration
}

// NewEngine validates cfg and builds an engine over the given store. A nil
// clk defaults to the system clock.
func NewEngine(cfg Config, store CounterStore, clk clock.Clock) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("ratelimit config: %w", err)
	}
	if store == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	if clk == nil {
		clk = clock.NewSystem()
	}

	e := &Engine{
		store:      store,
		clk:        clk,
		window:     cfg.Window,
		max:        cfg.MaxRequests,
		mode:       cfg.Mode,
		slowBase:   cfg.SlowdownBase,
		slowGrowth: cfg.SlowdownGrowth,
		slowCap:    cfg.SlowdownCap,
	}
	if e.slowBase <= 0 {
		e.slowBase = DefaultSlowdownBase
	}
	if e.slowGrowth == 0 {
		e.slowGrowth = DefaultSlowdownGrowth
	}
	if e.slowCap <= 0 {
		e.slowCap = DefaultSlowdownCap
	}
	return e, nil
}

// Window returns the configured window length.
func (e *Engine) Window() time.Duration { return e.window }

// MaxRequests returns the configured per-window quota.
func (e *Engine) MaxRequests() int { return e.max }

// Check charges one request to identity's current window and decides whether
// to admit it. Over-limit conditions are reported in the Decision, never as
// an error; a non-nil error always means the store failed and the caller
// must apply its own fail-open or fail-closed policy.
func (e *Engine) Check(ctx context.Context, identity string) (Decision, error) {
	now := e.clk.Now()

	// A live historical block wins over anything the current window says.
	until, blocked, err := e.store.GetBlock(ctx, identity)
	if err != nil {
		return Decision{}, fmt.Errorf("get block for %q: %w", identity, err)
	}
	if blocked {
		if until.After(now) {
			return Decision{Allowed: false, Remaining: 0, RetryAfter: until.Sub(now)}, nil
		}
		// Marker outlived its deadline; drop it so the window counter
		// governs again. Failure here is harmless, the marker is dead
		// either way.
		_ = e.store.ClearBlock(ctx, identity)
	}

	ws := WindowStart(now, e.window)
	count, err := e.store.Increment(ctx, identity, ws, e.window+expiryGrace)
	if err != nil {
		if errors.Is(err, ErrContended) {
			return Decision{Allowed: false, Remaining: 0, RetryAfter: contendedRetryAfter}, nil
		}
		return Decision{}, fmt.Errorf("increment %q: %w", identity, err)
	}

	if count <= int64(e.max) {
		return Decision{Allowed: true, Remaining: e.max - int(count)}, nil
	}

	if e.mode == ModeSlowdown {
		return Decision{Allowed: true, Remaining: 0, Slowdown: e.slowdownFor(count)}, nil
	}

	// Block mode: persist the marker on every over-limit hit so the
	// deadline is refreshed even if an earlier write was lost, and hand
	// back a full window as the retry hint.
	until = now.Add(e.window)
	if err := e.store.SetBlock(ctx, identity, until, e.window+expiryGrace); err != nil {
		return Decision{}, fmt.Errorf("set block for %q: %w", identity, err)
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfter: e.window}, nil
}

// slowdownFor computes the delay for the count-th request in the window. The
// first over-limit request (count == max+1) gets exactly the base delay.
func (e *Engine) slowdownFor(count int64) time.Duration {
	over := count - int64(e.max)
	delay := time.Duration(float64(e.slowBase) * math.Pow(e.slowGrowth, float64(over-1)))
	if delay > e.slowCap || delay < 0 {
		return e.slowCap
	}
	return delay
}
