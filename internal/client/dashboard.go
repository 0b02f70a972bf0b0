package client

import (
	"context"
	"fmt"

	"github.com/campusclub/livefeed/internal/core/changefeed"
	"github.com/campusclub/livefeed/internal/core/eventbus"
)

const dashboardFeedKey = "dashboard"

// OpenDashboard builds the aggregated feed and subscribes to live
// inserts on every source table. Bursts of activity coalesce into one
// debounced rebuild; onRefresh fires after each rebuild completes.
func (a *App) OpenDashboard(ctx context.Context, userID string, onRefresh func()) error {
	if _, err := a.Dashboard.BuildFeed(ctx, userID); err != nil {
		return fmt.Errorf("failed to build dashboard feed: %w", err)
	}

	delay := a.Config.Debounce.Dashboard
	rebuild := func() {
		if _, err := a.Dashboard.BuildFeed(ctx, userID); err != nil {
			a.log.Warn().Err(err).Msg("dashboard rebuild failed")
		}
		if onRefresh != nil {
			onRefresh()
		}
	}

	for _, st := range sourceTables {
		table := st.table
		channel := "dashboard:" + table

		handler := func(ev changefeed.Event) {
			a.Bus.PublishRecordIngested(eventbus.RecordIngestedPayload{
				FeedKey: channel,
				Record:  ev.Record,
			})
			a.Debounce.Schedule(dashboardFeedKey, delay, rebuild)
		}

		_, err := a.Channels.Open(ctx, channel, changefeed.Spec{
			Event:       changefeed.EventInsert,
			Table:       table,
			FilterKey:   "user_id",
			FilterValue: userID,
		}, handler)
		if err != nil {
			a.CloseDashboard()
			return fmt.Errorf("failed to open channel %s: %w", channel, err)
		}
	}

	return nil
}

// CloseDashboard tears down the dashboard channels and any pending
// rebuild.
func (a *App) CloseDashboard() {
	a.Debounce.Cancel(dashboardFeedKey)
	a.Channels.CloseMatching("dashboard:*")
}
