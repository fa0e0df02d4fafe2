package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memCounter struct {
	count     int64
	expiresAt time.Time
}

type memBlock struct {
	until     time.Time
	expiresAt time.Time
}

// MemoryStore is an in-process CounterStore backed by mutex-guarded maps.
// It serves single-node deployments and tests; counts are lost on restart
// and never shared across instances. A background goroutine evicts expired
// entries so long-lived processes don't accumulate stale windows.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]map[int64]*memCounter
	blocks   map[string]*memBlock

	done   chan struct{}
	closed bool
}

// NewMemoryStore creates a memory store and starts its eviction goroutine.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	m := &MemoryStore{
		counters: make(map[string]map[int64]*memCounter),
		blocks:   make(map[string]*memBlock),
		done:     make(chan struct{}),
	}
	go m.cleanup(cleanupInterval)
	return m
}

func (m *MemoryStore) Increment(_ context.Context, identity string, windowStart int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	windows, ok := m.counters[identity]
	if !ok {
		windows = make(map[int64]*memCounter)
		m.counters[identity] = windows
	}

	c, ok := windows[windowStart]
	if !ok || time.Now().After(c.expiresAt) {
		c = &memCounter{}
		windows[windowStart] = c
	}
	c.count++
	c.expiresAt = time.Now().Add(ttl)
	return c.count, nil
}

func (m *MemoryStore) GetBlock(_ context.Context, identity string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[identity]
	if !ok {
		return time.Time{}, false, nil
	}
	if time.Now().After(b.expiresAt) {
		delete(m.blocks, identity)
		return time.Time{}, false, nil
	}
	return b.until, true, nil
}

func (m *MemoryStore) SetBlock(_ context.Context, identity string, until time.Time, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[identity] = &memBlock{until: until, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) ClearBlock(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, identity)
	return nil
}

// Close stops the eviction goroutine.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *MemoryStore) evictExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for identity, windows := range m.counters {
		for ws, c := range windows {
			if now.After(c.expiresAt) {
				delete(windows, ws)
			}
		}
		if len(windows) == 0 {
			delete(m.counters, identity)
		}
	}
	for identity, b := range m.blocks {
		if now.After(b.expiresAt) {
			delete(m.blocks, identity)
		}
	}
}
