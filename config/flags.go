package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Config keys, as written in zmigrate.conf.
const (
	keyConfig   = "config"
	keyNetwork  = "network"
	keyDataDir  = "datadir"
	keyInput    = "input"
	keyWorkers  = "workers"
	keyGrouping = "legacy.grouping"
	keyValidate = "validate"
	keyEncrypt  = "encrypt"
	keyLogLevel = "log.level"
	keyLogFile  = "log.file"
	keyLogJSON  = "log.json"
)

// BindGlobalFlags registers the flags every command accepts on fs and
// binds them to v.
func BindGlobalFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String("config", "", "Config file path (default: <datadir>/"+ConfigFileName+")")
	fs.String("network", "", "Network: mainnet, testnet or regtest")
	fs.String("datadir", "", "Data directory (default: "+DefaultDataDir()+")")
	fs.String("log-level", "", "Log level: trace, debug, info, warn, error")
	fs.String("log-file", "", "Also write JSON logs to this file")
	fs.Bool("log-json", false, "Log JSON instead of console output")

	return bind(fs, v, map[string]string{
		keyConfig:   "config",
		keyNetwork:  "network",
		keyDataDir:  "datadir",
		keyLogLevel: "log-level",
		keyLogFile:  "log-file",
		keyLogJSON:  "log-json",
	})
}

// BindRunFlags registers the migration flags on fs and binds them to v.
func BindRunFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.StringP("input", "i", "", "Wallet export to migrate (JSON)")
	fs.Int("workers", 0, fmt.Sprintf("Concurrent assignment workers, 1-%d (default: CPU count)", MaxWorkers))
	fs.String("grouping", "", "Legacy key grouping: key, group or single")
	fs.Bool("validate", true, "Cross-check every assignment")
	fs.Bool("encrypt", false, "Seal key material in the snapshot with a password")

	return bind(fs, v, map[string]string{
		keyInput:    "input",
		keyWorkers:  "workers",
		keyGrouping: "grouping",
		keyValidate: "validate",
		keyEncrypt:  "encrypt",
	})
}

func bind(fs *pflag.FlagSet, v *viper.Viper, keys map[string]string) error {
	for key, flag := range keys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// Load builds the configuration with the following precedence:
//  1. Default values
//  2. Config file
//  3. ZMIGRATE_* environment variables
//  4. Command-line flags bound with BindGlobalFlags and BindRunFlags
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Network and datadir pick the defaults and the config file, so they
	// are resolved before the file is read.
	network, err := types.ParseNetwork(stringOr(v, keyNetwork, types.Mainnet.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg := Default(network)
	if dir := v.GetString(keyDataDir); dir != "" {
		cfg.DataDir = expandHome(dir)
	}
	setDefaults(v, cfg)

	path := v.GetString(keyConfig)
	if path == "" {
		path = cfg.ConfigFile()
	}
	v.SetConfigFile(expandHome(path))
	v.SetConfigType("properties")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if cfg.Network, err = types.ParseNetwork(v.GetString(keyNetwork)); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.DataDir = expandHome(v.GetString(keyDataDir))
	cfg.Input = expandHome(v.GetString(keyInput))
	cfg.Workers = v.GetInt(keyWorkers)
	if cfg.Workers == 0 {
		cfg.Workers = Default(cfg.Network).Workers
	}
	if cfg.LegacyGrouping, err = account.ParseGrouping(v.GetString(keyGrouping)); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Validate = v.GetBool(keyValidate)
	cfg.Encrypt = v.GetBool(keyEncrypt)
	cfg.Log.Level = strings.ToLower(v.GetString(keyLogLevel))
	cfg.Log.File = expandHome(v.GetString(keyLogFile))
	cfg.Log.JSON = v.GetBool(keyLogJSON)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func stringOr(v *viper.Viper, key, def string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return def
}
