package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/campusclub/livefeed/internal/client"
	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/sendqueue"
)

type TailCmd struct {
	flags *Flags
	app   *client.App

	// flags
	pages  int
	follow bool
}

// NewTailCmd creates a new tail command.
func NewTailCmd(flags *Flags, app *client.App) *TailCmd {
	return &TailCmd{flags: flags, app: app}
}

// Register adds the tail command to the application.
func (cmd *TailCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "tail",
		Usage:     "Print a conversation and stream new messages",
		UsageText: "livefeed tail <conversation-id> [--pages N] [--follow]",
		Description: `Loads the newest page of a conversation and prints it oldest first.
Use --pages to load additional older pages before printing. With
--follow the command stays open and prints messages as they arrive.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "pages",
				Usage:       "extra older pages to load before printing",
				Destination: &cmd.pages,
			},
			&cli.BoolFlag{
				Name:        "follow",
				Aliases:     []string{"f"},
				Usage:       "stay open and print live messages",
				Destination: &cmd.follow,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *TailCmd) run(ctx context.Context, c *cli.Command) error {
	conversationID := c.Args().First()
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if cmd.flags.UserID == "" {
		return fmt.Errorf("--user is required")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		mu      sync.Mutex
		printed = make(map[string]struct{})
		conv    *client.Conversation
	)

	// Fired from the debounce timer goroutine.
	onRefresh := func() {
		mu.Lock()
		defer mu.Unlock()
		if conv == nil {
			return
		}
		printNewMessages(conv, printed)
		drainNotices(cmd.app)
	}

	opened, err := cmd.app.OpenConversation(ctx, conversationID, cmd.flags.UserID, onRefresh)
	if err != nil {
		return err
	}
	defer func() { _ = opened.Close() }()

	for i := 0; i < cmd.pages && opened.History.HasMoreOlder(); i++ {
		if _, err := opened.LoadOlder(ctx); err != nil {
			return fmt.Errorf("load older page: %w", err)
		}
	}

	mu.Lock()
	printNewMessages(opened, printed)
	conv = opened
	mu.Unlock()

	if !cmd.follow {
		return nil
	}

	<-ctx.Done()
	return nil
}

// printNewMessages prints every record not yet printed, in window
// order, and reports failed sends. Tracking is by id: a live insert
// can land anywhere in the sorted window, not just at the end, so a
// printed-prefix count would duplicate and skip lines.
func printNewMessages(conv *client.Conversation, printed map[string]struct{}) {
	for _, r := range unseen(conv.History.Records(), printed) {
		printMessage(r)
	}
	for _, p := range conv.Queue.Unresolved() {
		if p.Status == sendqueue.StatusFailed {
			fmt.Printf("!! send failed: %q (retry or dismiss)\n", p.Content)
		}
	}
}

// unseen returns records whose ids are not in printed, marking them as
// printed on the way out.
func unseen(records []feed.Record, printed map[string]struct{}) []feed.Record {
	var out []feed.Record
	for _, r := range records {
		if _, ok := printed[r.ID]; ok {
			continue
		}
		printed[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

func printMessage(r feed.Record) {
	fmt.Printf("%s  %s: %s\n", r.CreatedAt.Local().Format("15:04:05"), r.Author, r.Body)
}
