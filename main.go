package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/campusclub/livefeed/internal/client"
	"github.com/campusclub/livefeed/internal/commands"
	"github.com/campusclub/livefeed/internal/core/config"
	"github.com/campusclub/livefeed/internal/core/logging"
	"github.com/campusclub/livefeed/internal/profiler"
	"github.com/campusclub/livefeed/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		logCloser   func()
		liveApp     = &client.App{}
		pprofServer *profiler.Server
		pprofPort   int
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "livefeed",
		Usage:     "Realtime feeds and messaging for the campus club network",
		UsageText: "livefeed [global options] command [command options]",
		Description: `Livefeed keeps a local, synchronized view of your club activity:
an aggregated notification feed, live conversation streams, and
optimistic message sending that survives flaky connections.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("LIVEFEED_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file",
				Sources:     cli.EnvVars("LIVEFEED_LOG_FILE"),
				Value:       commands.DefaultLogFile(),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("LIVEFEED_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("LIVEFEED_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "user id to act as",
				Sources:     cli.EnvVars("LIVEFEED_USER"),
				Destination: &flags.UserID,
			},
			&cli.IntFlag{
				Name:        "pprof-port",
				Usage:       "enable pprof HTTP endpoint on specified port (e.g., 6060)",
				Sources:     cli.EnvVars("LIVEFEED_PPROF_PORT"),
				Destination: &pprofPort,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Always log to a file; stdout belongs to feed output.
			logger, closer, err := logutils.New(flags.LogLevel, flags.LogFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger.Hook(logging.ContextHook{})
			logCloser = closer

			if flags.UserID != "" {
				ctx = logging.WithUserID(ctx, flags.UserID)
			}

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return ctx, fmt.Errorf("create data dir: %w", err)
			}

			built, err := client.NewApp(ctx, cfg, log.Logger)
			if err != nil {
				return ctx, fmt.Errorf("initialize app: %w", err)
			}

			// Populate the pre-allocated App struct (commands already
			// hold a pointer to it).
			*liveApp = *built
			liveApp.Start(ctx)

			if pprofPort > 0 {
				pprofServer = profiler.New(pprofPort)
				if err := pprofServer.Start(ctx); err != nil {
					log.Warn().Err(err).Msg("failed to start profiler")
					pprofServer = nil
				}
			}

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if pprofServer != nil {
				if err := pprofServer.Shutdown(ctx); err != nil {
					log.Warn().Err(err).Msg("failed to stop profiler")
				}
			}
			if liveApp.DB != nil {
				if err := liveApp.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close app")
					return err
				}
			}
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app = commands.NewFeedCmd(flags, liveApp).Register(app)
	app = commands.NewTailCmd(flags, liveApp).Register(app)
	app = commands.NewSendCmd(flags, liveApp).Register(app)
	app = commands.NewMarkCmd(flags, liveApp).Register(app)
	app = commands.NewPrefsCmd(flags, liveApp).Register(app)
	app = commands.NewConfigValidateCmd(flags).Register(app)

	exitCode := 0
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Println()
		fmt.Println(err.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
