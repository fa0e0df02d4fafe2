package clock

import (
	"sync"
	"time"
)

// Manual is a hand-advanced Clock for tests. Time only moves when Advance or
// Set is called; pending After waiters fire once their deadline is reached.
// Safe for concurrent use.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	pending []pendingTimer
}

type pendingTimer struct {
	deadline time.Time
	ch       chan time.Time
}

// NewManual returns a Manual clock frozen at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.pending = append(m.pending, pendingTimer{deadline: m.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d and fires any timers that came due.
func (m *Manual) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: negative advance")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	m.fireDue()
}

// Set jumps the clock to t. Panics if t is earlier than the current time.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Before(m.now) {
		panic("clock: cannot move backwards")
	}
	m.now = t
	m.fireDue()
}

// fireDue delivers to every waiter whose deadline has passed. Caller holds mu.
func (m *Manual) fireDue() {
	keep := m.pending[:0]
	for _, p := range m.pending {
		if p.deadline.After(m.now) {
			keep = append(keep, p)
			continue
		}
		p.ch <- m.now
	}
	m.pending = keep
}
