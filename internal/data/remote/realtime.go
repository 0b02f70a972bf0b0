package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/campusclub/livefeed/internal/core/changefeed"
	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/logging"
)

const (
	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
	// The server sends a heartbeat at least this often; a silent socket
	// past the deadline means the connection is dead.
	readDeadline = 60 * time.Second
)

// RealtimeOptions configures a RealtimeTransport.
type RealtimeOptions struct {
	URL    string
	APIKey string
}

// RealtimeTransport opens one websocket connection per channel. It
// implements changefeed.Transport; reconnect policy lives in the
// changefeed manager, not here.
type RealtimeTransport struct {
	url    string
	apiKey string
	log    zerolog.Logger
}

func NewRealtimeTransport(opts RealtimeOptions) *RealtimeTransport {
	return &RealtimeTransport{
		url:    strings.TrimSpace(opts.URL),
		apiKey: opts.APIKey,
		log:    logging.Component("realtime"),
	}
}

type subscribeFrame struct {
	Action      string `json:"action"`
	Channel     string `json:"channel"`
	Event       string `json:"event"`
	Table       string `json:"table"`
	FilterKey   string `json:"filter_key,omitempty"`
	FilterValue string `json:"filter_value,omitempty"`
}

type serverFrame struct {
	Type    string          `json:"type"` // "subscribed", "event", "error"
	Event   string          `json:"event,omitempty"`
	Table   string          `json:"table,omitempty"`
	Record  json.RawMessage `json:"record,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Subscribe dials the realtime endpoint, registers the channel, and
// starts a read loop that feeds events to handler. The returned handle's
// Done channel closes when the subscription terminates for any reason.
func (t *RealtimeTransport) Subscribe(ctx context.Context, channel string, spec changefeed.Spec, handler changefeed.Handler) (changefeed.TransportHandle, error) {
	headers := make(map[string][]string)
	if t.apiKey != "" {
		headers["Authorization"] = []string{"Bearer " + t.apiKey}
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, t.url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial realtime endpoint: status=%d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}

	sub := &subscription{
		channel: channel,
		conn:    conn,
		done:    make(chan struct{}),
		log:     t.log.With().Str("channel", channel).Logger(),
	}

	frame := subscribeFrame{
		Action:      "subscribe",
		Channel:     channel,
		Event:       string(spec.Event),
		Table:       spec.Table,
		FilterKey:   spec.FilterKey,
		FilterValue: spec.FilterValue,
	}
	if err := sub.write(frame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	// Wait for the ack before handing the subscription back; a rejected
	// channel should fail Subscribe, not surface later through Done.
	if err := sub.awaitAck(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go sub.readLoop(handler)

	return sub, nil
}

// subscription is one live channel over its own websocket connection.
type subscription struct {
	channel string
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	err       error
	done      chan struct{}
	closeOnce sync.Once

	log zerolog.Logger
}

func (s *subscription) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (s *subscription) awaitAck() error {
	_ = s.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read subscribe ack for %s: %w", s.channel, err)
	}

	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("failed to decode subscribe ack for %s: %w", s.channel, err)
	}
	switch frame.Type {
	case "subscribed":
		return nil
	case "error":
		return fmt.Errorf("server rejected channel %s: %s", s.channel, frame.Message)
	default:
		return fmt.Errorf("unexpected ack frame %q for %s", frame.Type, s.channel)
	}
}

func (s *subscription) readLoop(handler changefeed.Handler) {
	defer s.terminate(nil)

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.terminate(nil)
			} else {
				s.terminate(fmt.Errorf("connection lost on %s: %w", s.channel, err))
			}
			return
		}

		var frame serverFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}

		switch frame.Type {
		case "event":
			var record feed.Record
			if err := json.Unmarshal(frame.Record, &record); err != nil {
				s.log.Warn().Err(err).Msg("discarding event with malformed record")
				continue
			}
			handler(changefeed.Event{
				Type:   changefeed.EventType(frame.Event),
				Table:  frame.Table,
				Record: record,
			})
		case "heartbeat":
			// Deadline already refreshed by the read itself.
		case "error":
			s.terminate(fmt.Errorf("server closed channel %s: %s", s.channel, frame.Message))
			return
		default:
			s.log.Debug().Str("type", frame.Type).Msg("ignoring unknown frame")
		}
	}
}

func (s *subscription) terminate(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		_ = s.conn.Close()
		close(s.done)
	})
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	// Best effort: tell the server we are leaving, then tear down.
	_ = s.write(map[string]string{"action": "unsubscribe", "channel": s.channel})
	s.terminate(nil)
	return nil
}
