// Package notify defines the in-app notification model surfaced to the
// consuming view for channel failures and feed activity.
package notify

import "time"

// Level represents the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a single user-facing notice.
type Notification struct {
	Level     Level
	Message   string
	CreatedAt time.Time
}
