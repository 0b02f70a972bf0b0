// Package client wires the sync core together: storage, remote
// collaborators, change feeds, and the aggregated dashboard. Commands
// consume App instead of cherry-picking raw dependencies.
package client

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/campusclub/livefeed/internal/core/aggregate"
	"github.com/campusclub/livefeed/internal/core/changefeed"
	"github.com/campusclub/livefeed/internal/core/config"
	"github.com/campusclub/livefeed/internal/core/debounce"
	"github.com/campusclub/livefeed/internal/core/eventbus"
	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/markset"
	"github.com/campusclub/livefeed/internal/core/notify"
	"github.com/campusclub/livefeed/internal/core/retry"
	"github.com/campusclub/livefeed/internal/data/db"
	"github.com/campusclub/livefeed/internal/data/remote"
	"github.com/campusclub/livefeed/internal/data/stores"
)

// App is the central entry point for all livefeed operations.
type App struct {
	Config    *config.Config
	DB        *db.DB
	KV        *stores.LocalKVStore
	Marks     *markset.Set
	Prefs     *aggregate.Prefs
	Bus       *eventbus.EventBus
	Notices   *notify.Buffer
	Channels  *changefeed.Manager
	Debounce  *debounce.Coordinator
	Dashboard *aggregate.Aggregator
	Rest      *remote.RESTClient

	log zerolog.Logger
}

// NewApp constructs the full dependency graph from config. The event
// bus is not started; call Start before opening feeds.
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	database, err := openDatabase(cfg.DataDir, log)
	if err != nil {
		return nil, err
	}

	kvStore := stores.NewLocalKVStore(database)
	if err := kvStore.MigrateFromJSON(ctx, cfg.DataDir); err != nil {
		log.Warn().Err(err).Msg("legacy marks migration failed, continuing without it")
	}

	marks := markset.New(kvStore)
	prefs := aggregate.NewPrefs(kvStore)

	bus := eventbus.New()
	eventbus.RegisterDebugLogger(bus, log)
	eventbus.NewNotificationRouter(bus).Register()

	notices := notify.NewBuffer()
	bus.SubscribeNotificationPublished(func(p eventbus.NotificationPublishedPayload) {
		notices.Push(notify.Notification{Level: p.Level, Message: p.Message})
	})

	rest := remote.NewRESTClient(remote.RESTOptions{
		BaseURL: cfg.Remote.RestURL,
		APIKey:  cfg.Remote.APIKey(),
	})
	transport := remote.NewRealtimeTransport(remote.RealtimeOptions{
		URL:    cfg.Remote.RealtimeURL,
		APIKey: cfg.Remote.APIKey(),
	})

	policy := retry.Policy{
		MaxAttempts: cfg.Backoff.MaxAttempts,
		BaseDelay:   cfg.Backoff.BaseDelay,
		Multiplier:  cfg.Backoff.Multiplier,
		MaxDelay:    cfg.Backoff.MaxDelay,
	}
	channels := changefeed.NewManager(transport, log,
		changefeed.WithRetryPolicy(policy),
		changefeed.WithFailureHandler(func(channel string, err error) {
			bus.PublishChannelStateChanged(eventbus.ChannelStateChangedPayload{
				Channel: channel,
				Status:  string(changefeed.StatusClosed),
				Err:     err,
			})
		}),
	)

	dashboard := aggregate.New(dashboardSources(rest), marks, prefs, log,
		aggregate.WithBound(cfg.Feeds.FeedBound),
		aggregate.WithPerSourceLimit(cfg.Feeds.PerSourceLimit),
		aggregate.WithBus(bus),
	)

	return &App{
		Config:    cfg,
		DB:        database,
		KV:        kvStore,
		Marks:     marks,
		Prefs:     prefs,
		Bus:       bus,
		Notices:   notices,
		Channels:  channels,
		Debounce:  debounce.NewCoordinator(),
		Dashboard: dashboard,
		Rest:      rest,
		log:       log,
	}, nil
}

// Start runs the event bus until ctx is canceled.
func (a *App) Start(ctx context.Context) {
	a.Bus.Start(ctx)
}

// Close tears down live subscriptions, pending timers, and the
// database. Safe to call once at shutdown.
func (a *App) Close() error {
	a.Channels.CloseAll()
	a.Debounce.Close()
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// openDatabase opens the local database, recovering once from a
// corrupted file by moving it aside and starting fresh. Local state is
// a cache of the backend, so losing it costs a resync, not data.
func openDatabase(dataDir string, log zerolog.Logger) (*db.DB, error) {
	database, err := db.Open(dataDir, db.DefaultOpenOptions())
	if err == nil {
		return database, nil
	}
	if stores.IsBusyError(err) {
		// Lock contention is not corruption; don't move the file aside.
		return nil, fmt.Errorf("local database is locked by another livefeed process: %w", err)
	}
	if !stores.IsCorruptionError(err) {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	log.Warn().Err(err).Msg("local database corrupted, recovering")
	if recErr := stores.RecoverFromCorruption(dataDir); recErr != nil {
		return nil, fmt.Errorf("failed to recover corrupted database: %w", recErr)
	}

	database, err = db.Open(dataDir, db.DefaultOpenOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to reopen database after recovery: %w", err)
	}
	return database, nil
}

// dashboardSources builds one query-backed source per table.
func dashboardSources(querier feed.Querier) []aggregate.Source {
	sources := make([]aggregate.Source, 0, len(sourceTables))
	for _, st := range sourceTables {
		sources = append(sources, newQuerySource(st.name, st.table, querier))
	}
	return sources
}
