// Package aggregate builds the cross-source dashboard feed: bounded
// per-source history queries merged newest-first, filtered by the
// persistent read/dismissed marks and the user's enablement flags.
package aggregate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/campusclub/livefeed/internal/core/eventbus"
	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/markset"
)

// Defaults for feed bounds.
const (
	DefaultFeedBound      = 200
	DefaultPerSourceLimit = 50
)

// Source is one independent historical feed contributor (ratings,
// direct messages, chat messages, club events, club messages).
type Source interface {
	Name() feed.Source
	Fetch(ctx context.Context, userID string, limit int) ([]feed.Record, error)
}

// Aggregator owns the merged cross-source view. It never mutates the
// records it aggregates.
type Aggregator struct {
	sources   []Source
	marks     *markset.Set
	prefs     *Prefs
	bound     int
	perSource int
	bus       *eventbus.EventBus
	log       zerolog.Logger

	mu      sync.Mutex
	visible []feed.Record
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithBound overrides the total feed size bound.
func WithBound(n int) Option {
	return func(a *Aggregator) { a.bound = n }
}

// WithPerSourceLimit overrides the per-source query limit.
func WithPerSourceLimit(n int) Option {
	return func(a *Aggregator) { a.perSource = n }
}

// WithBus publishes feed.refreshed events to the given bus.
func WithBus(bus *eventbus.EventBus) Option {
	return func(a *Aggregator) { a.bus = bus }
}

// New creates an aggregator over the given sources.
func New(sources []Source, marks *markset.Set, prefs *Prefs, log zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		sources:   sources,
		marks:     marks,
		prefs:     prefs,
		bound:     DefaultFeedBound,
		perSource: DefaultPerSourceLimit,
		log:       log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildFeed queries every enabled source, filters marked records,
// merges by created_at descending, and bounds the result. A failing
// source is logged and skipped; partial results are expected.
func (a *Aggregator) BuildFeed(ctx context.Context, userID string) ([]feed.Record, error) {
	paused, err := a.prefs.Paused(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("reading pause flag, assuming unpaused")
	}
	if paused {
		a.setVisible(nil)
		return []feed.Record{}, nil
	}

	merged := make([]feed.Record, 0, a.bound)
	for _, src := range a.sources {
		enabled, err := a.prefs.SourceEnabled(ctx, src.Name())
		if err != nil {
			a.log.Warn().Err(err).Str("source", string(src.Name())).Msg("reading source flag, assuming enabled")
			enabled = true
		}
		if !enabled {
			continue
		}

		rows, err := src.Fetch(ctx, userID, a.perSource)
		if err != nil {
			// Isolated to this source: the rest of the feed still builds.
			a.log.Warn().Err(err).Str("source", string(src.Name())).Msg("source fetch failed")
			continue
		}
		merged = append(merged, rows...)
	}

	filtered, err := a.filterMarked(ctx, merged)
	if err != nil {
		return nil, err
	}

	feed.SortDescending(filtered)
	if len(filtered) > a.bound {
		filtered = filtered[:a.bound]
	}

	a.setVisible(filtered)
	if a.bus != nil {
		a.bus.PublishFeedRefreshed(eventbus.FeedRefreshedPayload{UserID: userID, Count: len(filtered)})
	}

	out := make([]feed.Record, len(filtered))
	copy(out, filtered)
	return out, nil
}

// Visible returns the feed as of the last build, minus optimistic
// removals since.
func (a *Aggregator) Visible() []feed.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]feed.Record, len(a.visible))
	copy(out, a.visible)
	return out
}

// MarkAsRead removes the item from the visible feed immediately and
// persists the mark. A persistence failure is logged, never rolled
// back; the item may reappear on a later full refresh at worst.
func (a *Aggregator) MarkAsRead(ctx context.Context, id string) {
	a.removeVisible(id)
	if err := a.marks.Add(ctx, markset.KeyRead, id); err != nil {
		a.log.Warn().Err(err).Str("id", id).Msg("persisting read mark failed")
	}
}

// Dismiss removes the item from the visible feed immediately and
// persists the dismissal. Same failure semantics as MarkAsRead.
func (a *Aggregator) Dismiss(ctx context.Context, id string) {
	a.removeVisible(id)
	if err := a.marks.Add(ctx, markset.KeyDismissed, id); err != nil {
		a.log.Warn().Err(err).Str("id", id).Msg("persisting dismissal failed")
	}
}

// Unread returns how many of the visible items carry no read mark.
func (a *Aggregator) Unread(ctx context.Context) (int, error) {
	a.mu.Lock()
	ids := make([]string, 0, len(a.visible))
	for _, r := range a.visible {
		ids = append(ids, r.ID)
	}
	a.mu.Unlock()

	return a.marks.Missing(ctx, markset.KeyRead, ids)
}

func (a *Aggregator) filterMarked(ctx context.Context, records []feed.Record) ([]feed.Record, error) {
	out := make([]feed.Record, 0, len(records))
	for _, r := range records {
		dismissed, err := a.marks.Has(ctx, markset.KeyDismissed, r.ID)
		if err != nil {
			return nil, err
		}
		if dismissed {
			continue
		}
		read, err := a.marks.Has(ctx, markset.KeyRead, r.ID)
		if err != nil {
			return nil, err
		}
		if read {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (a *Aggregator) setVisible(records []feed.Record) {
	a.mu.Lock()
	a.visible = records
	a.mu.Unlock()
}

func (a *Aggregator) removeVisible(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.visible {
		if r.ID == id {
			a.visible = append(a.visible[:i], a.visible[i+1:]...)
			return
		}
	}
}
