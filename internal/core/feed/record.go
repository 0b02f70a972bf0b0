// Package feed defines the record model shared by every synchronized
// stream: conversations, the dashboard feed, and club activity.
package feed

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Source identifies which backing table a record came from.
type Source string

// Known record sources.
const (
	SourceRating        Source = "rating"
	SourceDirectMessage Source = "direct_message"
	SourceChatMessage   Source = "chat_message"
	SourceClubEvent     Source = "club_event"
	SourceClubMessage   Source = "club_message"
)

// Validation errors for Record.
var (
	ErrEmptyID       = errors.New("record id is required")
	ErrUnknownSource = errors.New("unknown record source")
	ErrZeroTimestamp = errors.New("record created_at is required")
)

// Record is a single item in a synchronized stream. The Source tag
// determines how the payload fields are interpreted.
type Record struct {
	ID             string            `json:"id"`
	Source         Source            `json:"source"`
	CreatedAt      time.Time         `json:"created_at"`
	Author         string            `json:"author,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Title          string            `json:"title,omitempty"`
	Body           string            `json:"body,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
}

// Validate checks that the record meets the minimum constraints for
// ingestion into a stream.
func (r *Record) Validate() error {
	if r.ID == "" {
		return ErrEmptyID
	}
	if r.CreatedAt.IsZero() {
		return ErrZeroTimestamp
	}
	switch r.Source {
	case SourceRating, SourceDirectMessage, SourceChatMessage, SourceClubEvent, SourceClubMessage:
		return nil
	default:
		return ErrUnknownSource
	}
}

// Less reports whether r sorts before other in ascending created_at
// order. Ties are broken by ID so ordering is deterministic.
func (r Record) Less(other Record) bool {
	if !r.CreatedAt.Equal(other.CreatedAt) {
		return r.CreatedAt.Before(other.CreatedAt)
	}
	return r.ID < other.ID
}

// SortAscending orders records oldest-first (conversation history view).
func SortAscending(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Less(records[j])
	})
}

// SortDescending orders records newest-first (aggregated feed view).
func SortDescending(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[j].Less(records[i])
	})
}

// Direction indicates which way a paginated query walks through history.
type Direction string

const (
	DirectionOlder Direction = "older"
	DirectionNewer Direction = "newer"
)

// Cursor is an opaque pagination token anchored to the boundary record
// of the currently loaded window.
type Cursor struct {
	BoundaryTime time.Time `json:"boundary_time"`
	BoundaryID   string    `json:"boundary_id"`
	Direction    Direction `json:"direction"`
}

// CursorBefore returns a cursor for records strictly older than r.
func CursorBefore(r Record) Cursor {
	return Cursor{
		BoundaryTime: r.CreatedAt,
		BoundaryID:   r.ID,
		Direction:    DirectionOlder,
	}
}

// Query describes one bounded historical read against a logical table.
type Query struct {
	Table   string
	Filter  map[string]string
	Limit   int
	Cursor  *Cursor
	Newest  bool // newest-first when true, oldest-first otherwise
}

// Querier is the historical query collaborator. Implementations provide
// eventual consistency only; no transactional guarantees exist across
// separate calls.
type Querier interface {
	Query(ctx context.Context, q Query) ([]Record, error)
}

// RPCCaller executes one-off remote side effects such as view-count
// increments.
type RPCCaller interface {
	Call(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// TransientError wraps a query or RPC failure that callers are expected
// to retry at the next natural refresh rather than surface as fatal.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
