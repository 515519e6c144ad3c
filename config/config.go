// Package config handles zmigrate configuration.
//
// Settings are layered by viper: built-in defaults, then the zmigrate.conf
// file in the data directory (key = value lines), then ZMIGRATE_*
// environment variables, then command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// ConfigFileName is the name of the config file inside the data directory.
const ConfigFileName = "zmigrate.conf"

// EnvPrefix prefixes environment overrides, e.g. ZMIGRATE_LOG_LEVEL.
const EnvPrefix = "ZMIGRATE"

// MaxWorkers caps concurrent transaction assignment.
const MaxWorkers = 256

// Config holds the settings of one zmigrate invocation.
type Config struct {
	Network types.Network `conf:"network"`
	DataDir string        `conf:"datadir"`

	// Input is the wallet export to migrate.
	Input string `conf:"input"`

	// Workers bounds concurrent assignment.
	Workers int `conf:"workers"`

	// LegacyGrouping splits standalone keys into legacy accounts.
	LegacyGrouping account.Grouping `conf:"legacy.grouping"`

	// Validate cross-checks every assignment with the independent
	// validator.
	Validate bool `conf:"validate"`

	// Encrypt seals key material in the snapshot with a password.
	Encrypt bool `conf:"encrypt"`

	Log LogConfig
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.zmigrate
//	macOS:   ~/Library/Application Support/Zmigrate
//	Windows: %APPDATA%\Zmigrate
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zmigrate"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Zmigrate")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Zmigrate")
		}
		return filepath.Join(home, "AppData", "Roaming", "Zmigrate")
	default:
		return filepath.Join(home, ".zmigrate")
	}
}

// SnapshotDir returns the snapshot database directory. Snapshots of all
// networks share it under per-network key prefixes.
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.DataDir, "snapshot")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, ConfigFileName)
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
