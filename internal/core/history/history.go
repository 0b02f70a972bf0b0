// Package history maintains the ordered in-memory record window for a
// single conversation feed: initial load, backward pagination, live
// tail ingestion, and scroll-anchor math for the consuming view.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/campusclub/livefeed/internal/core/feed"
)

// DefaultPageSize is used when Options.PageSize is unset.
const DefaultPageSize = 30

// ErrClosed is returned by loads issued against a torn-down store.
var ErrClosed = errors.New("history store is closed")

// Options configure one history store.
type Options struct {
	FeedID    string // logical conversation id, used as the filter value
	Table     string
	FilterKey string
	PageSize  int
}

// Store exclusively owns the loaded record window for one feed. Records
// are kept in ascending created_at order for display.
type Store struct {
	mu       sync.Mutex
	querier  feed.Querier
	opts     Options
	records  []feed.Record
	known    map[string]struct{}
	hasMore  bool
	inFlight bool
	gen      uint64
	closed   bool
	log      zerolog.Logger
}

// New creates a store for one feed. The window is empty until
// LoadInitial runs.
func New(querier feed.Querier, opts Options, log zerolog.Logger) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Store{
		querier: querier,
		opts:    opts,
		known:   make(map[string]struct{}),
		hasMore: true,
		log:     log.With().Str("feed", opts.FeedID).Logger(),
	}
}

// LoadInitial fetches the newest page and replaces the window with it
// in ascending order. hasMoreOlder is true only when a full page came
// back.
func (s *Store) LoadInitial(ctx context.Context) ([]feed.Record, error) {
	gen, err := s.begin()
	if err != nil {
		return nil, err
	}

	rows, qErr := s.querier.Query(ctx, feed.Query{
		Table:  s.opts.Table,
		Filter: map[string]string{s.opts.FilterKey: s.opts.FeedID},
		Limit:  s.opts.PageSize,
		Newest: true,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false

	if s.closed || s.gen != gen {
		// The feed was torn down while the query was in flight; the
		// response must not touch the window.
		s.log.Debug().Msg("discarding stale initial load")
		return nil, nil
	}
	if qErr != nil {
		return nil, &feed.TransientError{Op: "load initial", Err: qErr}
	}

	feed.SortAscending(rows)
	s.records = rows
	s.known = make(map[string]struct{}, len(rows))
	for _, r := range rows {
		s.known[r.ID] = struct{}{}
	}
	s.hasMore = len(rows) == s.opts.PageSize

	return s.snapshotLocked(), nil
}

// LoadOlder fetches the page strictly older than the current oldest
// record and prepends it. It is a no-op returning an empty slice when a
// load is already in flight, the history is exhausted, or the window is
// still empty.
func (s *Store) LoadOlder(ctx context.Context) ([]feed.Record, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.inFlight || !s.hasMore || len(s.records) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	s.inFlight = true
	gen := s.gen
	cursor := feed.CursorBefore(s.records[0])
	s.mu.Unlock()

	rows, qErr := s.querier.Query(ctx, feed.Query{
		Table:  s.opts.Table,
		Filter: map[string]string{s.opts.FilterKey: s.opts.FeedID},
		Limit:  s.opts.PageSize,
		Cursor: &cursor,
		Newest: true,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false

	if s.closed || s.gen != gen {
		s.log.Debug().Msg("discarding stale older page")
		return nil, nil
	}
	if qErr != nil {
		return nil, &feed.TransientError{Op: "load older", Err: qErr}
	}

	// A short page means history is exhausted for the rest of this
	// feed session.
	if len(rows) < s.opts.PageSize {
		s.hasMore = false
	}

	feed.SortAscending(rows)
	fresh := make([]feed.Record, 0, len(rows))
	for _, r := range rows {
		if _, ok := s.known[r.ID]; ok {
			continue
		}
		s.known[r.ID] = struct{}{}
		fresh = append(fresh, r)
	}
	s.records = append(fresh, s.records...)

	prepended := make([]feed.Record, len(fresh))
	copy(prepended, fresh)
	return prepended, nil
}

// IngestLive merges a live-tail record into the window. Records whose
// id is already present are dropped, which absorbs reconnect
// redelivery. Returns whether the window changed.
func (s *Store) IngestLive(record feed.Record) bool {
	if err := record.Validate(); err != nil {
		s.log.Warn().Err(err).Str("id", record.ID).Msg("rejecting live record")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, ok := s.known[record.ID]; ok {
		return false
	}
	s.known[record.ID] = struct{}{}

	// Live events usually extend the tail, but cross-channel arrival
	// order is not guaranteed; insert at the sorted position.
	i := sort.Search(len(s.records), func(i int) bool {
		return record.Less(s.records[i])
	})
	s.records = append(s.records, feed.Record{})
	copy(s.records[i+1:], s.records[i:])
	s.records[i] = record

	return true
}

// Records returns a copy of the current window, oldest first.
func (s *Store) Records() []feed.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the current window size.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// HasMoreOlder reports whether another LoadOlder may return records.
func (s *Store) HasMoreOlder() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Close tears the store down. In-flight query results are discarded on
// arrival and further loads fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.gen++
}

func (s *Store) begin() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.inFlight {
		return 0, fmt.Errorf("load already in flight for feed %q", s.opts.FeedID)
	}
	s.inFlight = true
	return s.gen, nil
}

func (s *Store) snapshotLocked() []feed.Record {
	out := make([]feed.Record, len(s.records))
	copy(out, s.records)
	return out
}
