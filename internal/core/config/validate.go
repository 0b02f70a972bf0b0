package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs the I/O-backed checks Validate skips: config
// file accessibility, data directory shape, and remote URL syntax. The
// configPath argument specifies the config file location to validate
// (empty string skips the config file check).
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
		c.validateRemote(),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Remote.APIKeyEnv != "" && c.Remote.APIKey() == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Remote",
			Item:     c.Remote.APIKeyEnv,
			Message:  "API key environment variable is not set",
		})
	}
	if c.Remote.RestURL == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Remote",
			Item:     "rest_url",
			Message:  "no REST endpoint configured, historical queries are disabled",
		})
	}
	if c.Remote.RealtimeURL == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Remote",
			Item:     "realtime_url",
			Message:  "no realtime endpoint configured, live updates are disabled",
		})
	}

	return warnings
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

// validateRemote checks endpoint URL shape. Empty URLs are allowed;
// they only degrade functionality and are reported as warnings.
func (c *Config) validateRemote() error {
	var errs criterio.FieldErrorsBuilder

	if c.Remote.RestURL != "" {
		if err := endpointURL(c.Remote.RestURL, "http", "https"); err != nil {
			errs = errs.Append("remote.rest_url", err)
		}
	}
	if c.Remote.RealtimeURL != "" {
		if err := endpointURL(c.Remote.RealtimeURL, "ws", "wss"); err != nil {
			errs = errs.Append("remote.realtime_url", err)
		}
	}

	return errs.ToError()
}

// endpointURL validates that a URL parses, has a host, and uses one of
// the given schemes.
func endpointURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s, got %q", strings.Join(schemes, " or "), u.Scheme)
}
