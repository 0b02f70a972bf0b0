package logging

import "context"

type contextKey string

const (
	userIDKey  contextKey = "user_id"
	channelKey contextKey = "channel"
)

// WithUserID adds the acting user's id to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithChannel adds a change-feed channel name to the context.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey, channel)
}

// GetUserID retrieves the user id from the context.
// Returns empty string if not present.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// GetChannel retrieves the channel name from the context.
// Returns empty string if not present.
func GetChannel(ctx context.Context) string {
	if name, ok := ctx.Value(channelKey).(string); ok {
		return name
	}
	return ""
}
