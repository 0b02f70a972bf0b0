package notify

import (
	"sync"
	"time"
)

// Buffer collects notifications and emits coalesced drain signals so a
// consumer can refresh once per burst instead of once per notice.
type Buffer struct {
	mu      sync.Mutex
	pending []Notification
	signal  chan struct{}
}

// NewBuffer constructs a buffer for async notification delivery.
func NewBuffer() *Buffer {
	return &Buffer{
		pending: make([]Notification, 0),
		signal:  make(chan struct{}, 1),
	}
}

// Push appends a notification and emits a non-blocking drain signal.
func (b *Buffer) Push(n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	b.mu.Lock()
	b.pending = append(b.pending, n)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Drain returns all buffered notifications and clears the buffer.
func (b *Buffer) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}

	out := make([]Notification, len(b.pending))
	copy(out, b.pending)
	b.pending = b.pending[:0]
	return out
}

// Signal returns the channel that fires when notifications are ready.
func (b *Buffer) Signal() <-chan struct{} {
	return b.signal
}
