package client

import (
	"context"
	"fmt"

	"github.com/campusclub/livefeed/internal/core/changefeed"
	"github.com/campusclub/livefeed/internal/core/eventbus"
	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/history"
	"github.com/campusclub/livefeed/internal/core/sendqueue"
)

// Conversation is one open chat stream: the loaded history window, the
// optimistic send queue, and a live change-feed channel feeding both.
type Conversation struct {
	ID      string
	History *history.Store
	Queue   *sendqueue.Queue

	app     *App
	channel string
	handle  *changefeed.Handle
}

// OpenConversation loads the newest history page and subscribes to live
// inserts for the conversation. onRefresh fires debounced after live
// activity settles; the caller re-renders from History and Queue.
func (a *App) OpenConversation(ctx context.Context, conversationID, author string, onRefresh func()) (*Conversation, error) {
	hist := history.New(a.Rest, history.Options{
		FeedID:    conversationID,
		Table:     "chat_messages",
		FilterKey: "conversation_id",
		PageSize:  a.Config.Feeds.PageSize,
	}, a.log)

	if _, err := hist.LoadInitial(ctx); err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}

	queue := sendqueue.New(
		newRPCSender(a.Rest, conversationID),
		author,
		a.log,
		sendqueue.WithBus(a.Bus),
	)

	channel := "conversation:" + conversationID
	delay := a.Config.Debounce.Conversation

	handler := func(ev changefeed.Event) {
		queue.Reconcile(ev.Record)
		if hist.IngestLive(ev.Record) {
			a.Bus.PublishRecordIngested(eventbus.RecordIngestedPayload{
				FeedKey: channel,
				Record:  ev.Record,
			})
		}
		if onRefresh != nil {
			a.Debounce.Schedule(channel, delay, onRefresh)
		}
	}

	handle, err := a.Channels.Open(ctx, channel, changefeed.Spec{
		Event:       changefeed.EventInsert,
		Table:       "chat_messages",
		FilterKey:   "conversation_id",
		FilterValue: conversationID,
	}, handler)
	if err != nil {
		hist.Close()
		return nil, fmt.Errorf("failed to open channel %s: %w", channel, err)
	}

	return &Conversation{
		ID:      conversationID,
		History: hist,
		Queue:   queue,
		app:     a,
		channel: channel,
		handle:  handle,
	}, nil
}

// Send dispatches an optimistic message. The pending item is visible
// immediately; confirmation arrives through the change feed.
func (c *Conversation) Send(ctx context.Context, content string) sendqueue.PendingSend {
	return c.Queue.Send(ctx, content)
}

// LoadOlder extends the history window backward by one page.
func (c *Conversation) LoadOlder(ctx context.Context) ([]feed.Record, error) {
	return c.History.LoadOlder(ctx)
}

// Close tears down the live channel and drops any pending refresh.
func (c *Conversation) Close() error {
	c.app.Debounce.Cancel(c.channel)
	err := c.handle.Close()
	c.History.Close()
	return err
}

// rpcSender performs the remote send for one conversation.
type rpcSender struct {
	caller         feed.RPCCaller
	conversationID string
}

func newRPCSender(caller feed.RPCCaller, conversationID string) *rpcSender {
	return &rpcSender{caller: caller, conversationID: conversationID}
}

func (s *rpcSender) Send(ctx context.Context, author, content string) error {
	_, err := s.caller.Call(ctx, "send_message", map[string]any{
		"conversation_id": s.conversationID,
		"author":          author,
		"content":         content,
	})
	return err
}
