// Package config handles configuration loading and validation for the
// sync client.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Debounce DebounceConfig `yaml:"debounce"`
	Backoff  BackoffConfig  `yaml:"backoff"`
	DataDir  string         `yaml:"-"` // set by caller, not from config file
}

// RemoteConfig points at the hosted backend.
type RemoteConfig struct {
	RestURL     string `yaml:"rest_url"`
	RealtimeURL string `yaml:"realtime_url"`
	APIKeyEnv   string `yaml:"api_key_env"` // env var holding the API key
}

// APIKey resolves the API key from the configured environment variable.
func (r RemoteConfig) APIKey() string {
	if r.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(r.APIKeyEnv)
}

// FeedsConfig tunes window and bound sizes.
type FeedsConfig struct {
	PageSize       int `yaml:"page_size"`
	FeedBound      int `yaml:"feed_bound"`
	PerSourceLimit int `yaml:"per_source_limit"`
}

// DebounceConfig sets the quiet periods per feed class. Conversation
// streams refresh fast so typing feels live; the aggregate dashboard
// refreshes slower to avoid refresh storms.
type DebounceConfig struct {
	Conversation time.Duration `yaml:"conversation"`
	Dashboard    time.Duration `yaml:"dashboard"`
}

// BackoffConfig tunes change-feed reconnects.
type BackoffConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Remote: RemoteConfig{
			APIKeyEnv: "LIVEFEED_API_KEY",
		},
		Feeds: FeedsConfig{
			PageSize:       30,
			FeedBound:      200,
			PerSourceLimit: 50,
		},
		Debounce: DebounceConfig{
			Conversation: 500 * time.Millisecond,
			Dashboard:    time.Second,
		},
		Backoff: BackoffConfig{
			MaxAttempts: 5,
			BaseDelay:   500 * time.Millisecond,
			Multiplier:  2,
			MaxDelay:    30 * time.Second,
		},
	}
}

// Load reads configuration from the given path and sets the data
// directory. If configPath is empty or doesn't exist, returns defaults
// with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Feeds.PageSize == 0 {
		c.Feeds.PageSize = defaults.Feeds.PageSize
	}
	if c.Feeds.FeedBound == 0 {
		c.Feeds.FeedBound = defaults.Feeds.FeedBound
	}
	if c.Feeds.PerSourceLimit == 0 {
		c.Feeds.PerSourceLimit = defaults.Feeds.PerSourceLimit
	}
	if c.Debounce.Conversation == 0 {
		c.Debounce.Conversation = defaults.Debounce.Conversation
	}
	if c.Debounce.Dashboard == 0 {
		c.Debounce.Dashboard = defaults.Debounce.Dashboard
	}
	if c.Backoff.MaxAttempts == 0 {
		c.Backoff.MaxAttempts = defaults.Backoff.MaxAttempts
	}
	if c.Backoff.BaseDelay == 0 {
		c.Backoff.BaseDelay = defaults.Backoff.BaseDelay
	}
	if c.Backoff.Multiplier == 0 {
		c.Backoff.Multiplier = defaults.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay == 0 {
		c.Backoff.MaxDelay = defaults.Backoff.MaxDelay
	}
	if c.Remote.APIKeyEnv == "" {
		c.Remote.APIKeyEnv = defaults.Remote.APIKeyEnv
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Feeds.PageSize < 1 {
		return fmt.Errorf("feeds.page_size must be at least 1")
	}

	if c.Feeds.FeedBound < c.Feeds.PerSourceLimit {
		return fmt.Errorf("feeds.feed_bound must be at least feeds.per_source_limit")
	}

	if c.Backoff.MaxAttempts < 1 {
		return fmt.Errorf("backoff.max_attempts must be at least 1")
	}

	if c.Backoff.Multiplier < 1 {
		return fmt.Errorf("backoff.multiplier must be at least 1")
	}

	if c.Debounce.Conversation < 0 || c.Debounce.Dashboard < 0 {
		return fmt.Errorf("debounce delays cannot be negative")
	}

	return nil
}
