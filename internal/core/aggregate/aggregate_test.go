package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/markset"
)

// memStorage is an in-memory markset.Storage for tests.
type memStorage struct {
	data map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string]string)}
}

func (m *memStorage) GetString(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStorage) SetString(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

// stubSource serves a fixed record list or a scripted error.
type stubSource struct {
	name    feed.Source
	records []feed.Record
	err     error
	fetches atomic.Int32
}

func (s *stubSource) Name() feed.Source { return s.name }

func (s *stubSource) Fetch(_ context.Context, _ string, limit int) ([]feed.Record, error) {
	s.fetches.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.records) > limit {
		return s.records[:limit], nil
	}
	return s.records, nil
}

func srcRecord(id string, source feed.Source, at time.Time) feed.Record {
	return feed.Record{ID: id, Source: source, CreatedAt: at}
}

func newFixture(t *testing.T, sources []Source, opts ...Option) (*Aggregator, *memStorage) {
	t.Helper()
	storage := newMemStorage()
	marks := markset.New(storage)
	prefs := NewPrefs(storage)
	return New(sources, marks, prefs, zerolog.Nop(), opts...), storage
}

func TestAggregator_MergesDescendingAcrossSources(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ratings := &stubSource{name: feed.SourceRating, records: []feed.Record{
		srcRecord("r1", feed.SourceRating, base.Add(-2*time.Minute)),
	}}
	dms := &stubSource{name: feed.SourceDirectMessage, records: []feed.Record{
		srcRecord("d1", feed.SourceDirectMessage, base),
		srcRecord("d2", feed.SourceDirectMessage, base.Add(-5*time.Minute)),
	}}

	agg, _ := newFixture(t, []Source{ratings, dms})

	got, err := agg.BuildFeed(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, "r1", got[1].ID)
	assert.Equal(t, "d2", got[2].ID)
}

func TestAggregator_PartialFailure(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	broken := &stubSource{name: feed.SourceRating, err: errors.New("table offline")}
	working := &stubSource{name: feed.SourceClubEvent, records: []feed.Record{
		srcRecord("e1", feed.SourceClubEvent, base),
	}}

	agg, _ := newFixture(t, []Source{broken, working})

	got, err := agg.BuildFeed(context.Background(), "u1")
	require.NoError(t, err, "one failing source never aborts the build")
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
}

func TestAggregator_GlobalPauseSkipsAllQueries(t *testing.T) {
	src := &stubSource{name: feed.SourceRating, records: []feed.Record{
		srcRecord("r1", feed.SourceRating, time.Now()),
	}}
	agg, storage := newFixture(t, []Source{src})

	prefs := NewPrefs(storage)
	require.NoError(t, prefs.SetPaused(context.Background(), true))

	got, err := agg.BuildFeed(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(0), src.fetches.Load(), "paused build issues zero source queries")
}

func TestAggregator_DisabledSourceSkipped(t *testing.T) {
	base := time.Now()
	ratings := &stubSource{name: feed.SourceRating, records: []feed.Record{
		srcRecord("r1", feed.SourceRating, base),
	}}
	dms := &stubSource{name: feed.SourceDirectMessage, records: []feed.Record{
		srcRecord("d1", feed.SourceDirectMessage, base),
	}}
	agg, storage := newFixture(t, []Source{ratings, dms})

	prefs := NewPrefs(storage)
	require.NoError(t, prefs.SetSourceEnabled(context.Background(), feed.SourceRating, false))

	got, err := agg.BuildFeed(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, int32(0), ratings.fetches.Load())
}

func TestAggregator_FiltersDismissedAndRead(t *testing.T) {
	base := time.Now()
	src := &stubSource{name: feed.SourceRating, records: []feed.Record{
		srcRecord("r1", feed.SourceRating, base),
		srcRecord("r2", feed.SourceRating, base.Add(-time.Minute)),
		srcRecord("r3", feed.SourceRating, base.Add(-2*time.Minute)),
	}}
	agg, storage := newFixture(t, []Source{src})

	ctx := context.Background()
	marks := markset.New(storage)
	require.NoError(t, marks.Add(ctx, markset.KeyDismissed, "r1"))
	require.NoError(t, marks.Add(ctx, markset.KeyRead, "r3"))

	got, err := agg.BuildFeed(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ID)
}

func TestAggregator_BoundsTotalSize(t *testing.T) {
	base := time.Now()
	records := make([]feed.Record, 0, 30)
	for i := 0; i < 30; i++ {
		records = append(records, srcRecord(fmt.Sprintf("r%02d", i), feed.SourceRating,
			base.Add(-time.Duration(i)*time.Second)))
	}
	src := &stubSource{name: feed.SourceRating, records: records}

	agg, _ := newFixture(t, []Source{src}, WithBound(10), WithPerSourceLimit(50))

	got, err := agg.BuildFeed(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Equal(t, "r00", got[0].ID, "newest survive the truncation")
}

func TestAggregator_DismissIsOptimisticAndSticky(t *testing.T) {
	base := time.Now()
	src := &stubSource{name: feed.SourceClubMessage, records: []feed.Record{
		srcRecord("c1", feed.SourceClubMessage, base),
		srcRecord("c2", feed.SourceClubMessage, base.Add(-time.Minute)),
	}}
	agg, _ := newFixture(t, []Source{src})

	ctx := context.Background()
	_, err := agg.BuildFeed(ctx, "u1")
	require.NoError(t, err)

	agg.Dismiss(ctx, "c1")
	assert.Equal(t, []string{"c2"}, visibleIDs(agg), "removal is synchronous")

	// The dismissal survives a full rebuild.
	got, err := agg.BuildFeed(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].ID)
}

func visibleIDs(a *Aggregator) []string {
	out := []string{}
	for _, r := range a.Visible() {
		out = append(out, r.ID)
	}
	return out
}

func TestAggregator_Unread(t *testing.T) {
	base := time.Now()
	src := &stubSource{name: feed.SourceRating, records: []feed.Record{
		srcRecord("r1", feed.SourceRating, base),
		srcRecord("r2", feed.SourceRating, base.Add(-time.Minute)),
	}}
	agg, _ := newFixture(t, []Source{src})

	ctx := context.Background()
	_, err := agg.BuildFeed(ctx, "u1")
	require.NoError(t, err)

	unread, err := agg.Unread(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)
}
