// Package sendqueue surfaces locally-authored messages in the stream
// immediately, then reconciles them against the server's canonical
// record or marks them failed for user retry.
package sendqueue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/campusclub/livefeed/internal/core/eventbus"
	"github.com/campusclub/livefeed/internal/core/feed"
)

// Status of a pending send.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// DefaultReconcileWindow bounds how far a canonical record's timestamp
// may differ from the local send for the two to be matched.
const DefaultReconcileWindow = 90 * time.Second

// PendingSend is one optimistic item. The temp id is local only; the
// real id is unknown until the server assigns one.
type PendingSend struct {
	TempID    string
	RealID    string
	Author    string
	Content   string
	Status    Status
	CreatedAt time.Time
}

// Sender performs the actual remote send.
type Sender interface {
	Send(ctx context.Context, author, content string) error
}

// Queue tracks optimistic sends for one conversation.
type Queue struct {
	mu      sync.Mutex
	sender  Sender
	author  string
	window  time.Duration
	items   []PendingSend
	bus     *eventbus.EventBus
	log     zerolog.Logger
	nowFunc func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithReconcileWindow overrides the match window.
func WithReconcileWindow(d time.Duration) Option {
	return func(q *Queue) { q.window = d }
}

// WithBus publishes send.resolved events to the given bus.
func WithBus(bus *eventbus.EventBus) Option {
	return func(q *Queue) { q.bus = bus }
}

// New creates a queue sending as the given author.
func New(sender Sender, author string, log zerolog.Logger, opts ...Option) *Queue {
	q := &Queue{
		sender:  sender,
		author:  author,
		window:  DefaultReconcileWindow,
		log:     log,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Send surfaces a pending item immediately and dispatches the remote
// send. On failure the item is marked failed but kept with its content
// so the user can retry without retyping.
func (q *Queue) Send(ctx context.Context, content string) PendingSend {
	item := PendingSend{
		TempID:    uuid.NewString(),
		Author:    q.author,
		Content:   content,
		Status:    StatusPending,
		CreatedAt: q.nowFunc(),
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	if err := q.sender.Send(ctx, q.author, content); err != nil {
		q.log.Warn().Err(err).Str("temp_id", item.TempID).Msg("send failed")
		q.resolve(item.TempID, "", StatusFailed)
		item.Status = StatusFailed
		return item
	}

	return item
}

// Reconcile matches a canonical record delivered by the change feed
// against a pending send. Matching is by author, content, and time
// window since the temp item cannot know the server-side id. Returns
// whether a pending item was confirmed.
func (q *Queue) Reconcile(record feed.Record) bool {
	q.mu.Lock()
	var matched *PendingSend
	for i := range q.items {
		item := &q.items[i]
		if item.Status != StatusPending {
			continue
		}
		if item.Author != record.Author {
			continue
		}
		if strings.TrimSpace(item.Content) != strings.TrimSpace(record.Body) {
			continue
		}
		if absDuration(record.CreatedAt.Sub(item.CreatedAt)) > q.window {
			continue
		}
		matched = item
		break
	}
	if matched == nil {
		q.mu.Unlock()
		return false
	}
	matched.Status = StatusConfirmed
	matched.RealID = record.ID
	tempID := matched.TempID
	q.mu.Unlock()

	if q.bus != nil {
		q.bus.PublishSendResolved(eventbus.SendResolvedPayload{
			TempID: tempID,
			RealID: record.ID,
			Status: string(StatusConfirmed),
		})
	}
	return true
}

// Retry re-dispatches a failed item, reusing its content. Returns the
// refreshed item, or false when the temp id is unknown or not failed.
func (q *Queue) Retry(ctx context.Context, tempID string) (PendingSend, bool) {
	q.mu.Lock()
	var content string
	found := false
	for i := range q.items {
		if q.items[i].TempID == tempID && q.items[i].Status == StatusFailed {
			content = q.items[i].Content
			q.items = append(q.items[:i], q.items[i+1:]...)
			found = true
			break
		}
	}
	q.mu.Unlock()

	if !found {
		return PendingSend{}, false
	}
	return q.Send(ctx, content), true
}

// Dismiss drops a failed item once the user has given up on it.
func (q *Queue) Dismiss(tempID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].TempID == tempID && q.items[i].Status == StatusFailed {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// Unresolved returns items still shown alongside canonical records:
// pending sends and failed sends awaiting user action. Confirmed items
// are dropped in favor of the canonical record.
func (q *Queue) Unresolved() []PendingSend {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]PendingSend, 0, len(q.items))
	for _, item := range q.items {
		if item.Status == StatusConfirmed {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (q *Queue) resolve(tempID, realID string, status Status) {
	q.mu.Lock()
	for i := range q.items {
		if q.items[i].TempID == tempID {
			q.items[i].Status = status
			q.items[i].RealID = realID
			break
		}
	}
	q.mu.Unlock()

	if q.bus != nil {
		q.bus.PublishSendResolved(eventbus.SendResolvedPayload{
			TempID: tempID,
			RealID: realID,
			Status: string(status),
		})
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
