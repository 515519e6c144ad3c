package config

import (
	"runtime"

	"github.com/spf13/viper"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Default returns the default configuration for the given network.
func Default(network types.Network) *Config {
	workers := runtime.NumCPU()
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	return &Config{
		Network:        network,
		DataDir:        DefaultDataDir(),
		Workers:        workers,
		LegacyGrouping: account.GroupByKey,
		Validate:       true,
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// setDefaults registers cfg's values as viper defaults.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault(keyNetwork, cfg.Network.String())
	v.SetDefault(keyDataDir, cfg.DataDir)
	v.SetDefault(keyInput, cfg.Input)
	v.SetDefault(keyWorkers, cfg.Workers)
	v.SetDefault(keyGrouping, string(cfg.LegacyGrouping))
	v.SetDefault(keyValidate, cfg.Validate)
	v.SetDefault(keyEncrypt, cfg.Encrypt)
	v.SetDefault(keyLogLevel, cfg.Log.Level)
	v.SetDefault(keyLogFile, cfg.Log.File)
	v.SetDefault(keyLogJSON, cfg.Log.JSON)
}
