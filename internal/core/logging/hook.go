package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook extracts user_id and channel from context and adds them
// to log events.
type ContextHook struct{}

// Run adds contextual fields to the zerolog event.
func (h ContextHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == context.Background() || ctx == nil {
		return
	}

	if userID := GetUserID(ctx); userID != "" {
		e.Str("user_id", userID)
	}

	if channel := GetChannel(ctx); channel != "" {
		e.Str("channel", channel)
	}
}
