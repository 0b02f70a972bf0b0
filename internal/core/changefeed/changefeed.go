// Package changefeed manages named, filtered subscriptions to the
// remote change-notification stream. It guarantees at most one live
// subscription per channel name and reconnects with bounded backoff.
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/logging"
	"github.com/campusclub/livefeed/internal/core/retry"
	"github.com/campusclub/livefeed/pkg/kv"
)

// EventType is the kind of table change carried by an event.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// Event is one change notification. The same logical change may be
// delivered more than once after a reconnect; consumers deduplicate by
// record id.
type Event struct {
	Type   EventType
	Table  string
	Record feed.Record
}

// Handler consumes events for one channel. It is invoked from the
// subscription's read goroutine in server commit order.
type Handler func(Event)

// Spec describes what a channel listens for: insert/update events on a
// logical table, filtered by an exact-match column predicate.
type Spec struct {
	Event       EventType
	Table       string
	FilterKey   string
	FilterValue string
}

// Status of a subscription lifecycle.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusRetrying   Status = "retrying"
	StatusClosed     Status = "closed"
)

// ChannelError is the terminal error surfaced after reconnect attempts
// are exhausted. Historical queries keep working; only live updates are
// unavailable.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %q: live updates unavailable: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// TransportHandle is one live network subscription.
type TransportHandle interface {
	// Done is closed when the subscription terminates for any reason.
	Done() <-chan struct{}
	// Err reports why the subscription terminated, nil on clean close.
	Err() error
	Close() error
}

// Transport is the change-feed service collaborator.
type Transport interface {
	Subscribe(ctx context.Context, channel string, spec Spec, handler Handler) (TransportHandle, error)
}

// Manager owns all channels for one client. Open replaces any existing
// subscription with the same name so duplicate delivery cannot happen.
type Manager struct {
	mu        sync.Mutex
	transport Transport
	policy    retry.Policy
	channels  *kv.Store[string, *Handle]
	onFailed  func(channel string, err error)
	log       zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetryPolicy overrides the reconnect backoff tuning.
func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithFailureHandler registers a callback invoked when a channel gives
// up reconnecting. The callback runs on the channel's goroutine.
func WithFailureHandler(fn func(channel string, err error)) Option {
	return func(m *Manager) { m.onFailed = fn }
}

// NewManager creates a Manager over the given transport.
func NewManager(transport Transport, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		transport: transport,
		policy:    retry.DefaultPolicy(),
		channels:  kv.New[string, *Handle](),
		log:       log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open subscribes to a channel. If a subscription with the same name is
// already live, it is closed first. The returned handle must be closed
// by the owning feed on teardown.
func (m *Manager) Open(ctx context.Context, channel string, spec Spec, handler Handler) (*Handle, error) {
	if channel == "" {
		return nil, errors.New("channel name is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}

	// Close any prior subscription before registering the new one. The
	// wait happens outside the lock since teardown re-enters release.
	for {
		m.mu.Lock()
		prev, ok := m.channels.Get(channel)
		if !ok {
			break
		}
		m.mu.Unlock()
		prev.closeAndWait()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{
		manager: m,
		channel: channel,
		status:  StatusConnecting,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.channels.Set(channel, h)
	m.mu.Unlock()

	go h.run(runCtx, spec, handler)
	return h, nil
}

// CloseMatching closes every open channel whose name matches the glob
// pattern, e.g. "club:*" when leaving a club view.
func (m *Manager) CloseMatching(pattern string) {
	for _, name := range m.channels.Keys() {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			if h, found := m.channels.Get(name); found {
				_ = h.Close()
			}
		}
	}
}

// CloseAll tears down every subscription. Called on client shutdown.
func (m *Manager) CloseAll() {
	for _, name := range m.channels.Keys() {
		if h, ok := m.channels.Get(name); ok {
			_ = h.Close()
		}
	}
}

// OpenChannels returns the names of channels that are not yet closed.
func (m *Manager) OpenChannels() []string {
	return m.channels.Keys()
}

func (m *Manager) release(channel string, h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.channels.Get(channel); ok && current == h {
		m.channels.Delete(channel)
	}
}

// Handle is an owned, explicitly released subscription resource.
type Handle struct {
	manager *Manager
	channel string

	mu     sync.Mutex
	status Status
	err    error

	cancel context.CancelFunc
	done   chan struct{}
}

// Channel returns the channel name this handle owns.
func (h *Handle) Channel() string { return h.channel }

// Status returns the current lifecycle state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Err returns the terminal error, if the subscription failed for good.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed once the subscription has fully stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Close stops the subscription and releases the channel name.
func (h *Handle) Close() error {
	h.cancel()
	<-h.done
	return nil
}

func (h *Handle) closeAndWait() {
	h.cancel()
	<-h.done
}

func (h *Handle) setStatus(s Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

// stableSession is how long a subscription must stay open before a
// drop is treated as a fresh outage with a full retry budget rather
// than another consecutive failure.
const stableSession = 30 * time.Second

// errResubscribe signals that a stable subscription dropped and the
// reconnect loop should restart with a fresh attempt budget.
var errResubscribe = errors.New("stable subscription dropped")

// run drives the subscribe/deliver/reconnect loop until the handle is
// closed or consecutive attempts are exhausted.
func (h *Handle) run(ctx context.Context, spec Spec, handler Handler) {
	defer close(h.done)
	defer h.manager.release(h.channel, h)

	// Tag the context so every event in this loop carries the channel
	// name via logging.ContextHook.
	ctx = logging.WithChannel(ctx, h.channel)
	log := h.manager.log

	attempt := func(ctx context.Context) error {
		h.setStatus(StatusConnecting)

		sub, err := h.manager.transport.Subscribe(ctx, h.channel, spec, handler)
		if err != nil {
			h.setStatus(StatusRetrying)
			log.Warn().Ctx(ctx).Err(err).Msg("subscribe failed")
			return err
		}

		h.setStatus(StatusOpen)
		log.Debug().Ctx(ctx).Msg("channel open")
		openedAt := time.Now()

		select {
		case <-ctx.Done():
			_ = sub.Close()
			<-sub.Done()
			return nil
		case <-sub.Done():
			subErr := sub.Err()
			if subErr == nil {
				return nil
			}
			h.setStatus(StatusRetrying)
			log.Warn().Ctx(ctx).Err(subErr).Msg("subscription dropped")
			if time.Since(openedAt) >= stableSession {
				return fmt.Errorf("%w: %w", errResubscribe, subErr)
			}
			return subErr
		}
	}

	consecutive := func(err error) bool { return !errors.Is(err, errResubscribe) }

	for {
		err := retry.Do(ctx, h.manager.policy, consecutive, attempt)
		if ctx.Err() != nil || err == nil {
			h.terminate(nil)
			return
		}
		if errors.Is(err, errResubscribe) {
			continue
		}

		// Consecutive attempts exhausted: give up instead of retrying
		// silently forever.
		chErr := &ChannelError{Channel: h.channel, Err: err}
		log.Error().Ctx(ctx).Err(err).Msg("reconnect attempts exhausted")
		h.terminate(chErr)
		if h.manager.onFailed != nil {
			h.manager.onFailed(h.channel, chErr)
		}
		return
	}
}

func (h *Handle) terminate(err error) {
	h.mu.Lock()
	h.status = StatusClosed
	h.err = err
	h.mu.Unlock()
}
