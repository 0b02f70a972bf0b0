package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/campusclub/livefeed/internal/client"
	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/pkg/iojson"
)

type FeedCmd struct {
	flags *Flags
	app   *client.App

	// flags
	jsonOutput bool
	follow     bool
}

// NewFeedCmd creates a new feed command.
func NewFeedCmd(flags *Flags, app *client.App) *FeedCmd {
	return &FeedCmd{flags: flags, app: app}
}

// Register adds the feed command to the application.
func (cmd *FeedCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "feed",
		Usage:     "Show the aggregated notification feed",
		UsageText: "livefeed feed [--json] [--follow]",
		Description: `Merges ratings, messages, and club activity into one feed, newest
first. Read and dismissed items are filtered out. With --follow the
feed reprints whenever live activity settles.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
			&cli.BoolFlag{
				Name:        "follow",
				Aliases:     []string{"f"},
				Usage:       "keep the feed open and reprint on live changes",
				Destination: &cmd.follow,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *FeedCmd) run(ctx context.Context, c *cli.Command) error {
	userID := cmd.flags.UserID
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	if !cmd.follow {
		if _, err := cmd.app.Dashboard.BuildFeed(ctx, userID); err != nil {
			return fmt.Errorf("build feed: %w", err)
		}
		return cmd.print(ctx)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.app.OpenDashboard(ctx, userID, func() {
		if err := cmd.print(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		drainNotices(cmd.app)
	}); err != nil {
		return err
	}
	defer cmd.app.CloseDashboard()

	if err := cmd.print(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func (cmd *FeedCmd) print(ctx context.Context) error {
	records := cmd.app.Dashboard.Visible()
	unread, err := cmd.app.Dashboard.Unread(ctx)
	if err != nil {
		return fmt.Errorf("count unread: %w", err)
	}

	if cmd.jsonOutput {
		return iojson.Write(map[string]any{
			"records": records,
			"unread":  unread,
		})
	}

	if len(records) == 0 {
		fmt.Println("No notifications.")
		return nil
	}

	// Every visible item is unread: read and dismissed ids are
	// filtered out before the feed is built.
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tCREATED\tTITLE\tID")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Source, r.CreatedAt.Local().Format("Jan 02 15:04"), recordTitle(r), r.ID)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d unread\n", unread)
	return nil
}

func recordTitle(r feed.Record) string {
	if r.Title != "" {
		return r.Title
	}
	// Truncate on runes so multi-byte characters are never split.
	body := []rune(r.Body)
	if len(body) > 60 {
		return string(body[:57]) + "..."
	}
	return r.Body
}
