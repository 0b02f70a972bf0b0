package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/campusclub/livefeed/internal/core/config"
	"github.com/campusclub/livefeed/pkg/iojson"
)

type ConfigValidateCmd struct {
	flags *Flags

	// flags
	jsonOutput bool
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate the configuration file",
				UsageText:   "livefeed config validate [--json]",
				Description: "Validates the configuration file, checking field values, endpoint URLs, and file paths.",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON",
						Destination: &cmd.jsonOutput,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Load(cmd.flags.ConfigPath, cmd.flags.DataDir)
	if err == nil {
		err = cfg.ValidateDeep(cmd.flags.ConfigPath)
	}

	var warnings []config.ValidationWarning
	if cfg != nil {
		warnings = cfg.Warnings()
	}

	if cmd.jsonOutput {
		return cmd.outputJSON(err, warnings)
	}
	return cmd.outputText(err, warnings)
}

type validationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func validationErrors(err error) []validationError {
	if err == nil {
		return nil
	}

	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		return []validationError{{Message: err.Error()}}
	}

	out := make([]validationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, validationError{Field: fe.Field, Message: fe.Err.Error()})
	}
	return out
}

func (cmd *ConfigValidateCmd) outputJSON(err error, warnings []config.ValidationWarning) error {
	out := struct {
		Valid    bool                       `json:"valid"`
		Path     string                     `json:"path,omitempty"`
		Errors   []validationError          `json:"errors,omitempty"`
		Warnings []config.ValidationWarning `json:"warnings,omitempty"`
	}{
		Valid:    err == nil,
		Path:     cmd.flags.ConfigPath,
		Errors:   validationErrors(err),
		Warnings: warnings,
	}

	return iojson.Write(out)
}

func (cmd *ConfigValidateCmd) outputText(err error, warnings []config.ValidationWarning) error {
	for _, w := range warnings {
		item := ""
		if w.Item != "" {
			item = " (" + w.Item + ")"
		}
		fmt.Printf("warning: %s%s: %s\n", w.Category, item, w.Message)
	}

	if err == nil {
		fmt.Println("config valid")
		return nil
	}

	errs := validationErrors(err)
	for _, e := range errs {
		if e.Field != "" {
			fmt.Printf("error: %s: %s\n", e.Field, e.Message)
			continue
		}
		fmt.Printf("error: %s\n", e.Message)
	}
	return cli.Exit(fmt.Sprintf("%d error(s) found", len(errs)), 1)
}
