package config

import (
	"fmt"
	"os"
)

// WriteDefaultConfig writes a commented default configuration file.
func WriteDefaultConfig(path string, cfg *Config) error {
	content := `# zmigrate configuration
#
# Values here are overridden by ZMIGRATE_* environment variables
# (e.g. ZMIGRATE_LOG_LEVEL=debug) and by command-line flags.

# Network: mainnet, testnet or regtest
network = ` + cfg.Network.String() + `

# Data directory (default: ~/.zmigrate)
# datadir = ~/.zmigrate

# ============================================================================
# Migration
# ============================================================================

# Wallet export to migrate
# input = wallet-export.json

# Concurrent assignment workers (1-256)
workers = ` + fmt.Sprint(cfg.Workers) + `

# How standalone legacy keys become accounts:
#   key    one account per key
#   group  one account per wallet grouping label, per key otherwise
#   single one account for all standalone keys
legacy.grouping = ` + string(cfg.LegacyGrouping) + `

# Cross-check every assignment with the independent validator
validate = ` + fmt.Sprint(cfg.Validate) + `

# Seal key material in the snapshot with a password
encrypt = ` + fmt.Sprint(cfg.Encrypt) + `

# ============================================================================
# Logging
# ============================================================================

log.level = ` + cfg.Log.Level + `
# log.file =
log.json = ` + fmt.Sprint(cfg.Log.JSON) + `
`
	return os.WriteFile(path, []byte(content), 0644)
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every start.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.SnapshotDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
