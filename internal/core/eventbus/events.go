// Package eventbus provides a typed publish/subscribe event bus for
// cross-component communication within the sync client.
package eventbus

import (
	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/notify"
)

// Event names a bus topic.
type Event string

// All event topics.
const (
	// Keep list sorted A-Z
	EventChannelStateChanged   Event = "channel.state-changed"
	EventFeedRefreshed         Event = "feed.refreshed"
	EventNotificationPublished Event = "notification.published"
	EventRecordIngested        Event = "record.ingested"
	EventSendResolved          Event = "send.resolved"
)

// ChannelStateChangedPayload is emitted when a change-feed channel
// transitions between lifecycle states, including terminal failure.
type ChannelStateChangedPayload struct {
	Channel string
	Status  string
	Err     error
}

// FeedRefreshedPayload is emitted after the aggregated feed rebuilds.
type FeedRefreshedPayload struct {
	UserID string
	Count  int
}

// NotificationPublishedPayload is emitted when a user-facing notice is
// raised.
type NotificationPublishedPayload struct {
	Level   notify.Level
	Message string
}

// RecordIngestedPayload is emitted when a live record enters a window.
type RecordIngestedPayload struct {
	FeedKey string
	Record  feed.Record
}

// SendResolvedPayload is emitted when a pending send is confirmed or
// fails.
type SendResolvedPayload struct {
	TempID string
	RealID string
	Status string
}
