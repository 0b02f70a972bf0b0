package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/campusclub/livefeed/internal/client"
	"github.com/campusclub/livefeed/internal/core/feed"
)

type PrefsCmd struct {
	flags *Flags
	app   *client.App
}

// NewPrefsCmd creates a new prefs command.
func NewPrefsCmd(flags *Flags, app *client.App) *PrefsCmd {
	return &PrefsCmd{flags: flags, app: app}
}

// Register adds the prefs command to the application.
func (cmd *PrefsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "prefs",
		Usage:     "Show or change notification preferences",
		UsageText: "livefeed prefs [show|pause|resume|enable <source>|disable <source>]",
		Description: `Pausing empties the feed without touching marks; resuming brings
unmarked items back. Individual sources can be toggled off so their
records never enter the feed.`,
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show current preferences",
				Action: cmd.show,
			},
			{
				Name:  "pause",
				Usage: "Pause all notifications",
				Action: func(ctx context.Context, c *cli.Command) error {
					return cmd.setPaused(ctx, true)
				},
			},
			{
				Name:  "resume",
				Usage: "Resume notifications",
				Action: func(ctx context.Context, c *cli.Command) error {
					return cmd.setPaused(ctx, false)
				},
			},
			{
				Name:      "enable",
				Usage:     "Enable a notification source",
				UsageText: "livefeed prefs enable <source>",
				Action: func(ctx context.Context, c *cli.Command) error {
					return cmd.setSource(ctx, c, true)
				},
			},
			{
				Name:      "disable",
				Usage:     "Disable a notification source",
				UsageText: "livefeed prefs disable <source>",
				Action: func(ctx context.Context, c *cli.Command) error {
					return cmd.setSource(ctx, c, false)
				},
			},
		},
	})

	return app
}

func (cmd *PrefsCmd) show(ctx context.Context, c *cli.Command) error {
	paused, err := cmd.app.Prefs.Paused(ctx)
	if err != nil {
		return fmt.Errorf("read preferences: %w", err)
	}

	fmt.Printf("notifications paused: %v\n\n", paused)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tENABLED")
	for _, source := range knownSources() {
		enabled, err := cmd.app.Prefs.SourceEnabled(ctx, source)
		if err != nil {
			return fmt.Errorf("read preferences: %w", err)
		}
		fmt.Fprintf(w, "%s\t%v\n", source, enabled)
	}
	return w.Flush()
}

func (cmd *PrefsCmd) setPaused(ctx context.Context, paused bool) error {
	if err := cmd.app.Prefs.SetPaused(ctx, paused); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	if paused {
		fmt.Println("notifications paused")
	} else {
		fmt.Println("notifications resumed")
	}
	return nil
}

func (cmd *PrefsCmd) setSource(ctx context.Context, c *cli.Command, enabled bool) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("source name is required")
	}

	source := feed.Source(name)
	if !validSource(source) {
		return fmt.Errorf("unknown source %q (known: %v)", name, knownSources())
	}

	if err := cmd.app.Prefs.SetSourceEnabled(ctx, source, enabled); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	fmt.Printf("source %s enabled=%v\n", source, enabled)
	return nil
}

func knownSources() []feed.Source {
	return []feed.Source{
		feed.SourceRating,
		feed.SourceDirectMessage,
		feed.SourceChatMessage,
		feed.SourceClubEvent,
		feed.SourceClubMessage,
	}
}

func validSource(s feed.Source) bool {
	for _, known := range knownSources() {
		if s == known {
			return true
		}
	}
	return false
}
