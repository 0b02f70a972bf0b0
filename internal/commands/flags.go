package commands

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/campusclub/livefeed/internal/client"
	"github.com/campusclub/livefeed/internal/core/config"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string
	UserID     string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "livefeed", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "livefeed")
}

// DefaultLogFile returns the default log file path using the system's state directory.
// On macOS: ~/Library/Logs/livefeed/livefeed.log
// On Linux: $XDG_STATE_HOME/livefeed/livefeed.log (defaults to ~/.local/state/livefeed/livefeed.log)
func DefaultLogFile() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome != "" {
		return filepath.Join(stateHome, "livefeed", "livefeed.log")
	}

	home, _ := os.UserHomeDir()

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "livefeed", "livefeed.log")
	}

	return filepath.Join(home, ".local", "state", "livefeed", "livefeed.log")
}

// drainNotices prints buffered user-facing notices to stderr.
func drainNotices(app *client.App) {
	for _, n := range app.Notices.Drain() {
		os.Stderr.WriteString(string(n.Level) + ": " + n.Message + "\n")
	}
}
