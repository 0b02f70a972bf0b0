package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusclub/livefeed/internal/core/changefeed"
	"github.com/campusclub/livefeed/internal/core/feed"
)

var testUpgrader = websocket.Upgrader{}

// newRealtimeServer runs serve on each upgraded connection and returns a
// transport pointed at it.
func newRealtimeServer(t *testing.T, serve func(conn *websocket.Conn)) *RealtimeTransport {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		serve(conn)
	}))
	t.Cleanup(srv.Close)

	return NewRealtimeTransport(RealtimeOptions{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey: "secret",
	})
}

func readSubscribe(t *testing.T, conn *websocket.Conn) subscribeFrame {
	t.Helper()

	var frame subscribeFrame
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame serverFrame) {
	t.Helper()

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestRealtimeTransport_SubscribeAndReceive(t *testing.T) {
	transport := newRealtimeServer(t, func(conn *websocket.Conn) {
		frame := readSubscribe(t, conn)
		assert.Equal(t, "subscribe", frame.Action)
		assert.Equal(t, "conversation:c1", frame.Channel)
		assert.Equal(t, "chat_messages", frame.Table)
		assert.Equal(t, "conversation_id", frame.FilterKey)
		assert.Equal(t, "c1", frame.FilterValue)

		writeFrame(t, conn, serverFrame{Type: "subscribed"})

		record, err := json.Marshal(feed.Record{
			ID:        "m1",
			Source:    feed.SourceChatMessage,
			CreatedAt: time.Now().UTC(),
			Body:      "hello",
		})
		require.NoError(t, err)
		writeFrame(t, conn, serverFrame{
			Type:   "event",
			Event:  "insert",
			Table:  "chat_messages",
			Record: record,
		})

		// Hold the connection open until the client closes it.
		_, _, _ = conn.ReadMessage()
	})

	events := make(chan changefeed.Event, 1)
	handle, err := transport.Subscribe(context.Background(), "conversation:c1", changefeed.Spec{
		Event:       changefeed.EventInsert,
		Table:       "chat_messages",
		FilterKey:   "conversation_id",
		FilterValue: "c1",
	}, func(ev changefeed.Event) { events <- ev })
	require.NoError(t, err)
	defer func() { _ = handle.Close() }()

	select {
	case ev := <-events:
		assert.Equal(t, changefeed.EventInsert, ev.Type)
		assert.Equal(t, "m1", ev.Record.ID)
		assert.Equal(t, "hello", ev.Record.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRealtimeTransport_SubscribeRejected(t *testing.T) {
	transport := newRealtimeServer(t, func(conn *websocket.Conn) {
		readSubscribe(t, conn)
		writeFrame(t, conn, serverFrame{Type: "error", Message: "unknown channel"})
	})

	_, err := transport.Subscribe(context.Background(), "bogus", changefeed.Spec{}, func(changefeed.Event) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")
}

func TestRealtimeTransport_ServerDropSignalsDone(t *testing.T) {
	transport := newRealtimeServer(t, func(conn *websocket.Conn) {
		readSubscribe(t, conn)
		writeFrame(t, conn, serverFrame{Type: "subscribed"})
		// Drop without a close frame to simulate a dead connection.
		_ = conn.Close()
	})

	handle, err := transport.Subscribe(context.Background(), "dashboard", changefeed.Spec{}, func(changefeed.Event) {})
	require.NoError(t, err)

	select {
	case <-handle.Done():
		assert.Error(t, handle.Err())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Done")
	}
}

func TestRealtimeTransport_CloseIsClean(t *testing.T) {
	transport := newRealtimeServer(t, func(conn *websocket.Conn) {
		readSubscribe(t, conn)
		writeFrame(t, conn, serverFrame{Type: "subscribed"})
		_, _, _ = conn.ReadMessage()
	})

	handle, err := transport.Subscribe(context.Background(), "dashboard", changefeed.Spec{}, func(changefeed.Event) {})
	require.NoError(t, err)

	require.NoError(t, handle.Close())

	select {
	case <-handle.Done():
		assert.NoError(t, handle.Err())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Done")
	}
}
