package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/campusclub/livefeed/internal/client"
	"github.com/campusclub/livefeed/internal/core/markset"
)

type MarkCmd struct {
	flags *Flags
	app   *client.App
}

// NewMarkCmd creates a new mark command.
func NewMarkCmd(flags *Flags, app *client.App) *MarkCmd {
	return &MarkCmd{flags: flags, app: app}
}

// Register adds the mark command to the application.
func (cmd *MarkCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "mark",
		Usage:     "Mark notifications as read or dismissed",
		UsageText: "livefeed mark read|dismiss <id>...",
		Description: `Marks are local and permanent: a marked id never returns to the
feed, even after a restart. Both kinds remove the item from the
feed; they are kept as separate sets so read and dismissed history
stay distinguishable.`,
		Commands: []*cli.Command{
			{
				Name:      "read",
				Usage:     "Mark notifications as read",
				UsageText: "livefeed mark read <id>...",
				Action: func(ctx context.Context, c *cli.Command) error {
					return cmd.mark(ctx, c, markset.KeyRead)
				},
			},
			{
				Name:      "dismiss",
				Usage:     "Dismiss notifications from the feed",
				UsageText: "livefeed mark dismiss <id>...",
				Action: func(ctx context.Context, c *cli.Command) error {
					return cmd.mark(ctx, c, markset.KeyDismissed)
				},
			},
		},
	})

	return app
}

func (cmd *MarkCmd) mark(ctx context.Context, c *cli.Command, key markset.Key) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("at least one id is required")
	}

	if err := cmd.app.Marks.AddMany(ctx, key, ids); err != nil {
		return fmt.Errorf("save marks: %w", err)
	}

	fmt.Printf("marked %d notification(s) as %s\n", len(ids), key)
	return nil
}
