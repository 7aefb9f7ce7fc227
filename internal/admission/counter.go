// Package admission throttles new connections per source address and
// globally before any handshake work is spent on them.
package admission

import (
	"sync"
	"time"
)

// Counter is an approximate sliding-window counter: every Add increments
// immediately and schedules a matching decrement one window later.
type Counter struct {
	window time.Duration

	mu      sync.Mutex
	counts  map[string]int
	timers  map[*time.Timer]struct{}
	stopped bool
}

// NewCounter creates a Counter whose increments decay after window.
//
// Precondition: window > 0.
func NewCounter(window time.Duration) *Counter {
	return &Counter{
		window: window,
		counts: make(map[string]int),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Add increments key and returns the new count.
func (c *Counter) Add(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return c.counts[key]
	}
	c.counts[key]++
	n := c.counts[key]

	var t *time.Timer
	t = time.AfterFunc(c.window, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.timers, t)
		if c.counts[key]--; c.counts[key] <= 0 {
			delete(c.counts, key)
		}
	})
	c.timers[t] = struct{}{}
	return n
}

// Count returns the current count for key.
func (c *Counter) Count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// Stop cancels every pending decrement. Counts are frozen afterwards.
func (c *Counter) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for t := range c.timers {
		t.Stop()
	}
	c.timers = map[*time.Timer]struct{}{}
}
