package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/campusclub/livefeed/internal/core/notify"
)

// RegisterDebugLogger registers bus hooks that log all event activity
// at debug level. OnDrop surfaces buffer-full conditions as warnings
// and OnPanic reports subscriber panics.
func RegisterDebugLogger(bus *EventBus, logger zerolog.Logger) {
	bus.OnPublish(func(event Event, _ any) {
		logger.Debug().Str("event", string(event)).Msg("event fired")
	})

	bus.OnDrop(func(event Event, _ any) {
		logger.Warn().Str("event", string(event)).Msg("event dropped: buffer full")
	})

	bus.OnPanic(func(event Event, _ any, recovered any) {
		logger.Error().
			Str("event", string(event)).
			Str("panic", fmt.Sprint(recovered)).
			Msg("subscriber panicked")
	})
}

// NotificationRouter maps domain events to user-facing notifications.
type NotificationRouter struct {
	bus *EventBus
}

// NewNotificationRouter constructs a router for event-to-notification
// mappings.
func NewNotificationRouter(bus *EventBus) *NotificationRouter {
	return &NotificationRouter{bus: bus}
}

// Register subscribes all supported event mappings.
func (r *NotificationRouter) Register() {
	if r == nil || r.bus == nil {
		return
	}

	r.bus.SubscribeChannelStateChanged(func(p ChannelStateChangedPayload) {
		if p.Err == nil {
			return
		}
		r.notifyf(notify.LevelWarning, "live updates unavailable on %s; data may be stale", p.Channel)
	})

	r.bus.SubscribeSendResolved(func(p SendResolvedPayload) {
		if p.Status != "failed" {
			return
		}
		r.notifyf(notify.LevelError, "message %s failed to send", p.TempID)
	})
}

func (r *NotificationRouter) notifyf(level notify.Level, format string, args ...any) {
	r.bus.PublishNotificationPublished(NotificationPublishedPayload{
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}
