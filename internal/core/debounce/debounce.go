// Package debounce coalesces bursts of change notifications into a
// single downstream refresh per feed after a quiet period.
package debounce

import (
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Coordinator keeps at most one pending timer per feed key. Each
// Schedule call restarts that key's timer, so only the trailing edge of
// a burst fires.
type Coordinator struct {
	mu      sync.Mutex
	closed  bool
	pending map[string]*entry
}

type entry struct {
	timer *time.Timer
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{pending: make(map[string]*entry)}
}

// Schedule arranges for action to run after delay, cancelling any timer
// already pending for feedKey. Scheduling on a closed coordinator is a
// no-op so late events cannot fire into a torn-down consumer.
func (c *Coordinator) Schedule(feedKey string, delay time.Duration, action func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if prev, ok := c.pending[feedKey]; ok {
		prev.timer.Stop()
	}

	e := &entry{}
	e.timer = time.AfterFunc(delay, func() {
		if c.claim(feedKey, e) {
			action()
		}
	})
	c.pending[feedKey] = e
}

// claim removes the entry for feedKey if it is still the one that
// fired. Returns false when the timer was superseded or cancelled.
func (c *Coordinator) claim(feedKey string, e *entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.pending[feedKey]
	if !ok || current != e || c.closed {
		return false
	}
	delete(c.pending, feedKey)
	return true
}

// Cancel drops the pending timer for feedKey, if any.
func (c *Coordinator) Cancel(feedKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.pending[feedKey]; ok {
		e.timer.Stop()
		delete(c.pending, feedKey)
	}
}

// CancelMatching drops all pending timers whose feed key matches the
// glob pattern, e.g. "conversation:*" when switching conversations.
func (c *Coordinator) CancelMatching(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.pending {
		if ok, err := doublestar.Match(pattern, key); err == nil && ok {
			e.timer.Stop()
			delete(c.pending, key)
		}
	}
}

// Pending returns how many feed keys have an unfired timer.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close cancels every pending timer and rejects future schedules.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for key, e := range c.pending {
		e.timer.Stop()
		delete(c.pending, key)
	}
}
