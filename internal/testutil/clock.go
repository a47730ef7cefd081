package testutil

import (
	"sync"
	"time"
)

// ManualClock is a tokens.Clock whose time only moves when a test calls
// Advance. Timers created through After fire deterministically during
// Advance, which lets lifecycle tests travel through a token's lifetime
// instead of sleeping through it.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
	cond    *sync.Cond
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

// NewManualClock creates a clock starting at the given instant.
func NewManualClock(start time.Time) *ManualClock {
	c := &ManualClock{now: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Now returns the clock's current instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that fires once the clock has been advanced
// past d. A non-positive d fires immediately.
func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	at := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}

	c.waiters = append(c.waiters, waiter{at: at, ch: ch})
	c.cond.Broadcast()
	return ch
}

// Advance moves the clock forward and fires every timer whose deadline
// has been reached.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)

	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}

// BlockUntil waits until at least n timers are pending. Tests use it to
// make sure a scheduler has parked before advancing the clock.
func (c *ManualClock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.cond.Wait()
	}
}
