package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/campusclub/livefeed/internal/client"
	"github.com/campusclub/livefeed/internal/core/sendqueue"
)

type SendCmd struct {
	flags *Flags
	app   *client.App

	// flags
	message string
	wait    time.Duration
}

// NewSendCmd creates a new send command.
func NewSendCmd(flags *Flags, app *client.App) *SendCmd {
	return &SendCmd{flags: flags, app: app}
}

// Register adds the send command to the application.
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send a message to a conversation",
		UsageText: "livefeed send <conversation-id> -m <text> [--wait 30s]",
		Description: `Dispatches a message and waits for the server echo to confirm it.
A zero --wait returns as soon as the message is dispatched.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "message",
				Aliases:     []string{"m"},
				Usage:       "message text",
				Required:    true,
				Destination: &cmd.message,
			},
			&cli.DurationFlag{
				Name:        "wait",
				Usage:       "how long to wait for confirmation",
				Value:       30 * time.Second,
				Destination: &cmd.wait,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	conversationID := c.Args().First()
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if cmd.flags.UserID == "" {
		return fmt.Errorf("--user is required")
	}

	confirmed := make(chan struct{}, 1)
	conv, err := cmd.app.OpenConversation(ctx, conversationID, cmd.flags.UserID, func() {
		select {
		case confirmed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = conv.Close() }()

	pending := conv.Send(ctx, cmd.message)
	fmt.Printf("dispatched %s\n", pending.TempID)

	if cmd.wait <= 0 {
		return nil
	}

	deadline := time.NewTimer(cmd.wait)
	defer deadline.Stop()

	for {
		if status, done := resolveStatus(conv, pending.TempID); done {
			if status == sendqueue.StatusFailed {
				return fmt.Errorf("message failed to send; run again to retry")
			}
			fmt.Println("confirmed")
			return nil
		}

		select {
		case <-confirmed:
		case <-deadline.C:
			return fmt.Errorf("no confirmation within %s; the message may still arrive", cmd.wait)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// resolveStatus reports whether the send left the pending state. A
// confirmed item drops out of the unresolved list entirely.
func resolveStatus(conv *client.Conversation, tempID string) (sendqueue.Status, bool) {
	for _, p := range conv.Queue.Unresolved() {
		if p.TempID != tempID {
			continue
		}
		if p.Status == sendqueue.StatusFailed {
			return sendqueue.StatusFailed, true
		}
		return p.Status, false
	}
	return sendqueue.StatusConfirmed, true
}
