package client

import (
	"context"

	"github.com/campusclub/livefeed/internal/core/feed"
)

// sourceTables maps each record source to its backing table.
var sourceTables = []struct {
	name  feed.Source
	table string
}{
	{feed.SourceRating, "ratings"},
	{feed.SourceDirectMessage, "direct_messages"},
	{feed.SourceChatMessage, "chat_messages"},
	{feed.SourceClubEvent, "club_events"},
	{feed.SourceClubMessage, "club_messages"},
}

// querySource adapts one backend table to the aggregator's Source
// interface. Each fetch is a bounded newest-first read scoped to the
// requesting user.
type querySource struct {
	name    feed.Source
	table   string
	querier feed.Querier
}

func newQuerySource(name feed.Source, table string, querier feed.Querier) *querySource {
	return &querySource{name: name, table: table, querier: querier}
}

func (s *querySource) Name() feed.Source {
	return s.name
}

func (s *querySource) Fetch(ctx context.Context, userID string, limit int) ([]feed.Record, error) {
	records, err := s.querier.Query(ctx, feed.Query{
		Table:  s.table,
		Filter: map[string]string{"user_id": userID},
		Limit:  limit,
		Newest: true,
	})
	if err != nil {
		return nil, err
	}

	// The server may omit the source tag on some tables; stamp it so
	// downstream filtering and display stay uniform.
	for i := range records {
		if records[i].Source == "" {
			records[i].Source = s.name
		}
	}
	return records, nil
}
