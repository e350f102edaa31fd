// Package fixed provides a settable clock for tests.
package fixed

import (
	"sync"
	"time"
)

// Clock reports a stored instant until it is moved.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// New returns a Clock stopped at now.
func New(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the stored instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
