package aggregate

import (
	"context"
	"fmt"

	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/markset"
)

const (
	pausedKey      = "pref:notifications-paused"
	sourcePrefKey  = "pref:source:"
	prefTrueValue  = "true"
	prefFalseValue = "false"
)

// Prefs reads the boolean enablement flags the aggregator honors: one
// global pause flag plus one flag per source category. Missing flags
// default to enabled.
type Prefs struct {
	storage markset.Storage
}

// NewPrefs creates a preference reader over durable local storage.
func NewPrefs(storage markset.Storage) *Prefs {
	return &Prefs{storage: storage}
}

// Paused reports whether the global notifications pause is set.
func (p *Prefs) Paused(ctx context.Context) (bool, error) {
	return p.flag(ctx, pausedKey, false)
}

// SetPaused sets the global pause flag.
func (p *Prefs) SetPaused(ctx context.Context, paused bool) error {
	return p.setFlag(ctx, pausedKey, paused)
}

// SourceEnabled reports whether a source category is enabled.
func (p *Prefs) SourceEnabled(ctx context.Context, source feed.Source) (bool, error) {
	return p.flag(ctx, sourcePrefKey+string(source), true)
}

// SetSourceEnabled toggles a source category.
func (p *Prefs) SetSourceEnabled(ctx context.Context, source feed.Source, enabled bool) error {
	return p.setFlag(ctx, sourcePrefKey+string(source), enabled)
}

func (p *Prefs) flag(ctx context.Context, key string, missing bool) (bool, error) {
	raw, ok, err := p.storage.GetString(ctx, key)
	if err != nil {
		return missing, fmt.Errorf("read pref %q: %w", key, err)
	}
	if !ok {
		return missing, nil
	}
	return raw == prefTrueValue, nil
}

func (p *Prefs) setFlag(ctx context.Context, key string, value bool) error {
	raw := prefFalseValue
	if value {
		raw = prefTrueValue
	}
	if err := p.storage.SetString(ctx, key, raw); err != nil {
		return fmt.Errorf("write pref %q: %w", key, err)
	}
	return nil
}
