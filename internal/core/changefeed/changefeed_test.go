package changefeed

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/logging"
	"github.com/campusclub/livefeed/internal/core/retry"
)

// fakeHandle is a controllable TransportHandle.
type fakeHandle struct {
	mu     sync.Mutex
	err    error
	done   chan struct{}
	closed bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{done: make(chan struct{})}
}

func (f *fakeHandle) Done() <-chan struct{} { return f.done }

func (f *fakeHandle) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeHandle) Close() error {
	f.fail(nil)
	return nil
}

func (f *fakeHandle) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.err = err
	close(f.done)
}

// fakeTransport scripts subscribe outcomes and records live handles.
type fakeTransport struct {
	mu       sync.Mutex
	failures int // initial consecutive subscribe errors
	attempts int
	handles  []*fakeHandle
}

func (f *fakeTransport) Subscribe(_ context.Context, _ string, _ Spec, _ Handler) (TransportHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return nil, errors.New("connection refused")
	}
	h := newFakeHandle()
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeTransport) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeTransport) lastHandle() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func testSpec() Spec {
	return Spec{Event: EventInsert, Table: "messages", FilterKey: "to_user", FilterValue: "u1"}
}

func noopHandler(Event) {}

func TestManager_OpenReachesOpenStatus(t *testing.T) {
	transport := &fakeTransport{}
	m := NewManager(transport, zerolog.Nop(), WithRetryPolicy(testPolicy()))
	defer m.CloseAll()

	h, err := m.Open(context.Background(), "conv:c1", testSpec(), noopHandler)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.Status() == StatusOpen },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"conv:c1"}, m.OpenChannels())
}

func TestManager_ReopenSameNameClosesPrior(t *testing.T) {
	transport := &fakeTransport{}
	m := NewManager(transport, zerolog.Nop(), WithRetryPolicy(testPolicy()))
	defer m.CloseAll()

	first, err := m.Open(context.Background(), "conv:c1", testSpec(), noopHandler)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return first.Status() == StatusOpen },
		time.Second, 5*time.Millisecond)

	second, err := m.Open(context.Background(), "conv:c1", testSpec(), noopHandler)
	require.NoError(t, err)

	// The prior subscription is fully closed before the new one opens.
	<-first.Done()
	assert.Equal(t, StatusClosed, first.Status())
	assert.NoError(t, first.Err())

	require.Eventually(t, func() bool { return second.Status() == StatusOpen },
		time.Second, 5*time.Millisecond)
	assert.Len(t, m.OpenChannels(), 1)
}

func TestManager_ReconnectsAfterTransientFailure(t *testing.T) {
	transport := &fakeTransport{failures: 2}
	m := NewManager(transport, zerolog.Nop(), WithRetryPolicy(testPolicy()))
	defer m.CloseAll()

	h, err := m.Open(context.Background(), "conv:c1", testSpec(), noopHandler)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.Status() == StatusOpen },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, transport.attemptCount())
}

func TestManager_ExhaustionSurfacesChannelError(t *testing.T) {
	transport := &fakeTransport{failures: 100}

	var (
		mu       sync.Mutex
		failedCh string
		failErr  error
	)
	m := NewManager(transport, zerolog.Nop(),
		WithRetryPolicy(testPolicy()),
		WithFailureHandler(func(channel string, err error) {
			mu.Lock()
			failedCh, failErr = channel, err
			mu.Unlock()
		}),
	)

	h, err := m.Open(context.Background(), "conv:c1", testSpec(), noopHandler)
	require.NoError(t, err)

	<-h.Done()
	assert.Equal(t, StatusClosed, h.Status())

	var chErr *ChannelError
	require.ErrorAs(t, h.Err(), &chErr)
	assert.Equal(t, "conv:c1", chErr.Channel)
	assert.ErrorIs(t, h.Err(), retry.ErrExhausted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "conv:c1", failedCh)
	assert.Error(t, failErr)

	// The channel name is released after the terminal failure.
	assert.Empty(t, m.OpenChannels())
}

func TestManager_CloseMatching(t *testing.T) {
	transport := &fakeTransport{}
	m := NewManager(transport, zerolog.Nop(), WithRetryPolicy(testPolicy()))
	defer m.CloseAll()

	club1, err := m.Open(context.Background(), "club:42", testSpec(), noopHandler)
	require.NoError(t, err)
	club2, err := m.Open(context.Background(), "club:43", testSpec(), noopHandler)
	require.NoError(t, err)
	conv, err := m.Open(context.Background(), "conv:c1", testSpec(), noopHandler)
	require.NoError(t, err)

	for _, h := range []*Handle{club1, club2, conv} {
		require.Eventually(t, func() bool { return h.Status() == StatusOpen },
			time.Second, 5*time.Millisecond)
	}

	m.CloseMatching("club:*")

	<-club1.Done()
	<-club2.Done()
	assert.Equal(t, StatusOpen, conv.Status())
	assert.Equal(t, []string{"conv:c1"}, m.OpenChannels())
}

func TestManager_EventsDeliveredToHandler(t *testing.T) {
	transport := &fakeTransport{}
	var (
		mu   sync.Mutex
		seen []string
	)
	m := NewManager(transport, zerolog.Nop(), WithRetryPolicy(testPolicy()))
	defer m.CloseAll()

	handler := func(e Event) {
		mu.Lock()
		seen = append(seen, e.Record.ID)
		mu.Unlock()
	}

	h, err := m.Open(context.Background(), "conv:c1", testSpec(), handler)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Status() == StatusOpen },
		time.Second, 5*time.Millisecond)

	// The transport delivers straight to the handler it was given.
	handler(Event{Type: EventInsert, Table: "messages", Record: feed.Record{ID: "m1"}})
	handler(Event{Type: EventInsert, Table: "messages", Record: feed.Record{ID: "m1"}})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"m1", "m1"}, seen, "redelivery reaches the handler; dedup is downstream")
}

func TestManager_LogsCarryChannelName(t *testing.T) {
	transport := &fakeTransport{failures: 100}

	var buf bytes.Buffer
	logger := zerolog.New(zerolog.SyncWriter(&buf)).Hook(logging.ContextHook{})
	m := NewManager(transport, logger, WithRetryPolicy(testPolicy()))

	h, err := m.Open(context.Background(), "conv:c1", testSpec(), noopHandler)
	require.NoError(t, err)
	<-h.Done()

	out := buf.String()
	assert.Contains(t, out, `"channel":"conv:c1"`)
	assert.Contains(t, out, "reconnect attempts exhausted")
}
