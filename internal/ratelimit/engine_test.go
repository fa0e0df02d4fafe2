package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adgate/internal/clock"
)

func newTestEngine(t *testing.T, cfg Config, clk clock.Clock) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(time.Minute)
	t.Cleanup(func() { store.Close() })

	engine, err := NewEngine(cfg, store, clk)
	require.NoError(t, err)
	return engine, store
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"invalid mode", Config{Window: time.Minute, MaxRequests: 10, Mode: "throttle"}},
		{"empty mode", Config{Window: time.Minute, MaxRequests: 10}},
		{"zero window", Config{MaxRequests: 10, Mode: ModeBlock}},
		{"sub-second window", Config{Window: 500 * time.Millisecond, MaxRequests: 10, Mode: ModeBlock}},
		{"fractional window", Config{Window: 90*time.Second + 500*time.Millisecond, MaxRequests: 10, Mode: ModeBlock}},
		{"zero max requests", Config{Window: time.Minute, Mode: ModeBlock}},
		{"growth below one", Config{Window: time.Minute, MaxRequests: 10, Mode: ModeSlowdown, SlowdownGrowth: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg, store, nil)
			assert.Error(t, err)
		})
	}

	_, err := NewEngine(Config{Window: time.Minute, MaxRequests: 10, Mode: ModeBlock}, nil, nil)
	assert.Error(t, err)
}

func TestEngine_ThresholdExactness(t *testing.T) {
	clk := clock.NewManual(time.Unix(10000, 0))
	engine, _ := newTestEngine(t, Config{Window: time.Minute, MaxRequests: 5, Mode: ModeBlock}, clk)

	// The first N requests are all admitted; the N-th leaves zero quota.
	for i := 1; i <= 5; i++ {
		d, err := engine.Check(context.Background(), "key-a")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 5-i, d.Remaining, "request %d", i)
		assert.Zero(t, d.RetryAfter)
		assert.Zero(t, d.Slowdown)
	}

	// The (N+1)-th is the first to trip over-limit behavior.
	d, err := engine.Check(context.Background(), "key-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, time.Minute, d.RetryAfter)
}

func TestEngine_BlockDuration(t *testing.T) {
	clk := clock.NewManual(time.Unix(20000, 0))
	engine, _ := newTestEngine(t, Config{Window: 10 * time.Second, MaxRequests: 1, Mode: ModeBlock}, clk)

	_, err := engine.Check(context.Background(), "key-b")
	require.NoError(t, err)

	d, err := engine.Check(context.Background(), "key-b")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, 10*time.Second, d.RetryAfter)

	// RetryAfter shrinks toward zero as the clock advances.
	prev := d.RetryAfter
	for i := 0; i < 3; i++ {
		clk.Advance(2 * time.Second)
		d, err = engine.Check(context.Background(), "key-b")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Less(t, d.RetryAfter, prev)
		prev = d.RetryAfter
	}

	// Once the marker expires the identity starts fresh.
	clk.Advance(5 * time.Second)
	d, err = engine.Check(context.Background(), "key-b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestEngine_BlockScenario(t *testing.T) {
	// window=2s, max=3: calls 1-3 at t=0 allowed with remaining 2,1,0;
	// call 4 at t=0.1 blocked with retry_after ~2s; call 5 at t=2.2 allowed.
	start := time.Unix(30000, 0)
	clk := clock.NewManual(start)
	engine, _ := newTestEngine(t, Config{Window: 2 * time.Second, MaxRequests: 3, Mode: ModeBlock}, clk)

	for want := 2; want >= 0; want-- {
		d, err := engine.Check(context.Background(), "K")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, want, d.Remaining)
	}

	clk.Advance(100 * time.Millisecond)
	d, err := engine.Check(context.Background(), "K")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 2*time.Second, d.RetryAfter)

	clk.Set(start.Add(2200 * time.Millisecond))
	d, err = engine.Check(context.Background(), "K")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestEngine_SlowdownCurve(t *testing.T) {
	// window=60s, max=3: calls 1-3 clean, call 4 delayed 0.5s, call 5 0.75s.
	clk := clock.NewManual(time.Unix(40000, 0))
	engine, _ := newTestEngine(t, Config{Window: time.Minute, MaxRequests: 3, Mode: ModeSlowdown}, clk)

	for i := 0; i < 3; i++ {
		d, err := engine.Check(context.Background(), "key-c")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Zero(t, d.Slowdown)
	}

	expected := []time.Duration{
		500 * time.Millisecond,
		750 * time.Millisecond,
		1125 * time.Millisecond,
	}
	for _, want := range expected {
		d, err := engine.Check(context.Background(), "key-c")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "slowdown mode never blocks")
		assert.Equal(t, 0, d.Remaining)
		assert.Zero(t, d.RetryAfter)
		assert.InDelta(t, want.Seconds(), d.Slowdown.Seconds(), 0.001)
	}
}

func TestEngine_SlowdownCapped(t *testing.T) {
	clk := clock.NewManual(time.Unix(50000, 0))
	engine, _ := newTestEngine(t, Config{Window: time.Minute, MaxRequests: 1, Mode: ModeSlowdown}, clk)

	var last Decision
	for i := 0; i < 20; i++ {
		d, err := engine.Check(context.Background(), "key-d")
		require.NoError(t, err)
		assert.LessOrEqual(t, d.Slowdown, DefaultSlowdownCap)
		last = d
	}
	assert.Equal(t, DefaultSlowdownCap, last.Slowdown)
}

func TestEngine_IdentityIsolation(t *testing.T) {
	clk := clock.NewManual(time.Unix(60000, 0))
	engine, _ := newTestEngine(t, Config{Window: time.Minute, MaxRequests: 2, Mode: ModeBlock}, clk)

	// Exhaust and block the first identity.
	for i := 0; i < 3; i++ {
		_, err := engine.Check(context.Background(), "noisy")
		require.NoError(t, err)
	}

	// A second identity is unaffected.
	d, err := engine.Check(context.Background(), "quiet")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestEngine_WindowRollover(t *testing.T) {
	start := time.Unix(70000, 0)
	clk := clock.NewManual(start)
	engine, _ := newTestEngine(t, Config{Window: 2 * time.Second, MaxRequests: 2, Mode: ModeBlock}, clk)

	for i := 0; i < 2; i++ {
		d, err := engine.Check(context.Background(), "key-e")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	// Crossing into a new window resets the count once any block expired.
	clk.Advance(4 * time.Second)
	d, err := engine.Check(context.Background(), "key-e")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestEngine_SlowdownResetsOnRollover(t *testing.T) {
	start := time.Unix(80000, 0)
	clk := clock.NewManual(start)
	engine, _ := newTestEngine(t, Config{Window: 2 * time.Second, MaxRequests: 1, Mode: ModeSlowdown}, clk)

	_, err := engine.Check(context.Background(), "key-f")
	require.NoError(t, err)
	d, err := engine.Check(context.Background(), "key-f")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d.Slowdown)

	clk.Advance(2 * time.Second)
	d, err = engine.Check(context.Background(), "key-f")
	require.NoError(t, err)
	assert.Zero(t, d.Slowdown)
	assert.Equal(t, 0, d.Remaining)
}

func TestEngine_ConcurrentQuotaExact(t *testing.T) {
	clk := clock.NewManual(time.Unix(90000, 0))
	engine, _ := newTestEngine(t, Config{Window: time.Minute, MaxRequests: 100, Mode: ModeBlock}, clk)

	const (
		goroutines = 20
		perWorker  = 50
	)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				d, err := engine.Check(context.Background(), "hot-key")
				assert.NoError(t, err)
				if d.Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// The store arbitrates ordering, so exactly the quota is admitted no
	// matter how the goroutines interleave.
	assert.Equal(t, int64(100), allowed.Load())
}

// failingStore simulates an unreachable backend.
type failingStore struct {
	err error
}

func (f *failingStore) Increment(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, f.err
}
func (f *failingStore) GetBlock(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, f.err
}
func (f *failingStore) SetBlock(context.Context, string, time.Time, time.Duration) error {
	return f.err
}
func (f *failingStore) ClearBlock(context.Context, string) error { return f.err }
func (f *failingStore) Close() error                             { return nil }

func TestEngine_InfrastructureErrorPropagates(t *testing.T) {
	infraErr := errors.New("connection refused")
	engine, err := NewEngine(
		Config{Window: time.Minute, MaxRequests: 5, Mode: ModeBlock},
		&failingStore{err: infraErr}, nil)
	require.NoError(t, err)

	_, err = engine.Check(context.Background(), "key-g")
	require.Error(t, err)
	assert.ErrorIs(t, err, infraErr)
}

// contendedStore reports block state fine but cannot win the write lock.
type contendedStore struct {
	MemoryStore
}

func (c *contendedStore) Increment(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, ErrContended
}

func TestEngine_ContentionFailsClosed(t *testing.T) {
	store := &contendedStore{}
	engine, err := NewEngine(
		Config{Window: time.Minute, MaxRequests: 5, Mode: ModeBlock}, store, nil)
	require.NoError(t, err)

	// Exhausted retry budget becomes a short rejection, not an error.
	d, err := engine.Check(context.Background(), "key-h")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)
}
