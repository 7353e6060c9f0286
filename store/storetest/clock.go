package storetest

import (
	"sync"
	"time"
)

// Epoch is the fixed starting time used by the suite. It carries no
// sub-millisecond component so every backend round-trips it exactly.
var Epoch = time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)

// Clock is a manually advanced time source for lock.WithClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock reading t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

// Now returns the current reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
