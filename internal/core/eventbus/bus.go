package eventbus

import (
	"context"
	"sync"
)

const defaultBuffer = 64

type envelope struct {
	event   Event
	payload any
}

// EventBus is an asynchronous typed publish/subscribe bus. Publishing
// never blocks: events are dropped (and the OnDrop hooks fired) when
// the buffer is full.
type EventBus struct {
	ch    chan envelope
	hooks hooks

	mu   sync.RWMutex
	subs map[Event][]func(any)

	startOnce sync.Once
	done      chan struct{}
}

// New creates an event bus with the default buffer size.
func New() *EventBus {
	return &EventBus{
		ch:   make(chan envelope, defaultBuffer),
		subs: make(map[Event][]func(any)),
		done: make(chan struct{}),
	}
}

// Start launches the dispatch loop. It returns immediately; dispatch
// stops when ctx is cancelled. Calling Start more than once is a no-op.
func (bus *EventBus) Start(ctx context.Context) {
	bus.startOnce.Do(func() {
		go bus.dispatch(ctx)
	})
}

// Done is closed when the dispatch loop has stopped.
func (bus *EventBus) Done() <-chan struct{} { return bus.done }

func (bus *EventBus) dispatch(ctx context.Context) {
	defer close(bus.done)
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-bus.ch:
			bus.deliver(env)
		}
	}
}

func (bus *EventBus) deliver(env envelope) {
	bus.mu.RLock()
	handlers := make([]func(any), len(bus.subs[env.event]))
	copy(handlers, bus.subs[env.event])
	bus.mu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					bus.runOnPanic(env.event, env.payload, r)
				}
			}()
			fn(env.payload)
		}()
	}
}

func (bus *EventBus) subscribe(event Event, fn func(any)) {
	bus.mu.Lock()
	bus.subs[event] = append(bus.subs[event], fn)
	bus.mu.Unlock()
	bus.runOnSubscribe(event)
}

// SubscribeChannelStateChanged registers a handler for channel
// lifecycle transitions.
func (bus *EventBus) SubscribeChannelStateChanged(fn func(ChannelStateChangedPayload)) {
	bus.subscribe(EventChannelStateChanged, func(p any) {
		if payload, ok := p.(ChannelStateChangedPayload); ok {
			fn(payload)
		}
	})
}

// PublishChannelStateChanged emits a channel lifecycle transition.
func (bus *EventBus) PublishChannelStateChanged(p ChannelStateChangedPayload) {
	bus.send(EventChannelStateChanged, p)
}

// SubscribeRecordIngested registers a handler for live record arrivals.
func (bus *EventBus) SubscribeRecordIngested(fn func(RecordIngestedPayload)) {
	bus.subscribe(EventRecordIngested, func(p any) {
		if payload, ok := p.(RecordIngestedPayload); ok {
			fn(payload)
		}
	})
}

// PublishRecordIngested emits a live record arrival.
func (bus *EventBus) PublishRecordIngested(p RecordIngestedPayload) {
	bus.send(EventRecordIngested, p)
}

// SubscribeFeedRefreshed registers a handler for aggregated feed
// rebuilds.
func (bus *EventBus) SubscribeFeedRefreshed(fn func(FeedRefreshedPayload)) {
	bus.subscribe(EventFeedRefreshed, func(p any) {
		if payload, ok := p.(FeedRefreshedPayload); ok {
			fn(payload)
		}
	})
}

// PublishFeedRefreshed emits an aggregated feed rebuild.
func (bus *EventBus) PublishFeedRefreshed(p FeedRefreshedPayload) {
	bus.send(EventFeedRefreshed, p)
}

// SubscribeSendResolved registers a handler for pending send outcomes.
func (bus *EventBus) SubscribeSendResolved(fn func(SendResolvedPayload)) {
	bus.subscribe(EventSendResolved, func(p any) {
		if payload, ok := p.(SendResolvedPayload); ok {
			fn(payload)
		}
	})
}

// PublishSendResolved emits a pending send outcome.
func (bus *EventBus) PublishSendResolved(p SendResolvedPayload) {
	bus.send(EventSendResolved, p)
}

// SubscribeNotificationPublished registers a handler for user-facing
// notices.
func (bus *EventBus) SubscribeNotificationPublished(fn func(NotificationPublishedPayload)) {
	bus.subscribe(EventNotificationPublished, func(p any) {
		if payload, ok := p.(NotificationPublishedPayload); ok {
			fn(payload)
		}
	})
}

// PublishNotificationPublished emits a user-facing notice.
func (bus *EventBus) PublishNotificationPublished(p NotificationPublishedPayload) {
	bus.send(EventNotificationPublished, p)
}
