// Command docgen generates CLI reference documentation from the livefeed
// command definitions. Output is written to docs/cli-reference.md.
package main

import (
	"fmt"
	"os"

	docs "github.com/urfave/cli-docs/v3"
	"github.com/urfave/cli/v3"

	"github.com/campusclub/livefeed/internal/client"
	"github.com/campusclub/livefeed/internal/commands"
)

func main() {
	flags := &commands.Flags{}
	app := &client.App{}

	root := &cli.Command{
		Name:      "livefeed",
		Usage:     "Realtime feeds and messaging for the campus club network",
		UsageText: "livefeed [global options] command [command options]",
		Description: `Livefeed keeps a local, synchronized view of your club activity:
an aggregated notification feed, live conversation streams, and
optimistic message sending that survives flaky connections.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error, fatal, panic)",
				Sources: cli.EnvVars("LIVEFEED_LOG_LEVEL"),
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "path to log file",
				Sources: cli.EnvVars("LIVEFEED_LOG_FILE"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Sources: cli.EnvVars("LIVEFEED_CONFIG"),
				Value:   commands.DefaultConfigPath(),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "path to data directory",
				Sources: cli.EnvVars("LIVEFEED_DATA_DIR"),
				Value:   commands.DefaultDataDir(),
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "user id to act as",
				Sources: cli.EnvVars("LIVEFEED_USER"),
			},
		},
	}

	root = commands.NewFeedCmd(flags, app).Register(root)
	root = commands.NewTailCmd(flags, app).Register(root)
	root = commands.NewSendCmd(flags, app).Register(root)
	root = commands.NewMarkCmd(flags, app).Register(root)
	root = commands.NewPrefsCmd(flags, app).Register(root)
	root = commands.NewConfigValidateCmd(flags).Register(root)

	md, err := docs.ToMarkdown(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error generating docs: %v\n", err)
		os.Exit(1)
	}

	outPath := "docs/cli-reference.md"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.WriteFile(outPath, []byte(md), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", outPath, err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s\n", outPath)
}
