package clock

import (
	"sync"
	"time"
)

// Clock is the time source used for token timestamps
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// NewSystemClock creates a clock backed by time.Now
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now implements Clock
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// FixtureClock is a controllable clock for hermetic tests
type FixtureClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixtureClock creates a clock frozen at the given instant
func NewFixtureClock(now time.Time) *FixtureClock {
	return &FixtureClock{now: now}
}

// Now implements Clock
func (c *FixtureClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *FixtureClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *FixtureClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
