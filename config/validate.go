package config

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/zmigrate/internal/account"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// ErrNoInput is returned by ValidateForRun when no wallet export is set.
var ErrNoInput = errors.New("input is required (--input or input = <file>)")

// Validate checks the config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case types.Mainnet, types.Testnet, types.Regtest:
	default:
		return fmt.Errorf("network must be mainnet, testnet or regtest")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}
	if cfg.Workers < 1 || cfg.Workers > MaxWorkers {
		return fmt.Errorf("workers must be in range [1, %d]", MaxWorkers)
	}
	if _, err := account.ParseGrouping(string(cfg.LegacyGrouping)); err != nil {
		return fmt.Errorf("legacy.grouping: %w", err)
	}
	if !klog.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not a valid level", cfg.Log.Level)
	}
	return nil
}

// ValidateForRun is Validate plus the settings a migration run needs.
func ValidateForRun(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if cfg.Input == "" {
		return ErrNoInput
	}
	return nil
}
