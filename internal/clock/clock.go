// Package clock abstracts wall-clock time so the rate limiter can be tested
// against a controllable time source. Production code uses System; tests use
// Manual to step through window boundaries deterministically.
package clock

import "time"

// Clock is the time source used by the limiter engine and middleware.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// System delegates to the standard time package.
type System struct{}

// NewSystem returns a wall-clock backed Clock.
func NewSystem() *System {
	return &System{}
}

func (*System) Now() time.Time {
	return time.Now()
}

func (*System) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
