package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a deterministic clock for poll-loop tests. Sleep advances the
// clock by the requested duration instead of blocking, so a loop that sleeps
// between ticks runs to its deadline instantly and single-threaded.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Elapsed reports how far the clock has moved past since.
func (c *FakeClock) Elapsed(since time.Time) time.Duration {
	return c.Now().Sub(since)
}
