package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Klingon-tech/zmigrate/config"
	"github.com/Klingon-tech/zmigrate/internal/diag"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/internal/migrate"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Migrate a wallet export and store the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if err := config.ValidateForRun(cfg); err != nil {
				return err
			}
			return runMigration(cmd.Context(), cfg)
		},
	}
	if err := config.BindRunFlags(cmd.Flags(), v); err != nil {
		panic(err)
	}
	return cmd
}

func runMigration(ctx context.Context, cfg *config.Config) error {
	if err := config.EnsureDataDirs(cfg); err != nil {
		return fmt.Errorf("ensuring data dirs: %w", err)
	}

	w, err := dump.Load(cfg.Input)
	if err != nil {
		return err
	}
	if w.Network != cfg.Network {
		return fmt.Errorf("wallet export is for %s, configured network is %s", w.Network, cfg.Network)
	}

	var password []byte
	if cfg.Encrypt {
		if password, err = readNewPassword(); err != nil {
			return err
		}
		defer clear(password)
	}

	klog.CLI.Info().
		Str("input", cfg.Input).
		Str("network", cfg.Network.String()).
		Int("workers", cfg.Workers).
		Str("grouping", string(cfg.LegacyGrouping)).
		Msg("Starting migration")

	res, runErr := migrate.Run(ctx, w, migrate.Options{
		Workers:  cfg.Workers,
		Grouping: cfg.LegacyGrouping,
		Validate: cfg.Validate,
	})
	if res == nil {
		return runErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	store, closeStore, err := openSnapshot(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	meta, err := store.Save(res, password)
	if err != nil {
		return err
	}
	logSummary(res.Summary)

	if !meta.Complete {
		klog.CLI.Warn().
			Int("stored", meta.Transactions).
			Msg("Migration interrupted, partial result stored")
		return runErr
	}
	klog.CLI.Info().
		Int("accounts", meta.Accounts).
		Int("transactions", meta.Transactions).
		Int("unassigned", meta.Unassigned).
		Str("snapshot", cfg.SnapshotDir()).
		Msg("Migration complete")
	return nil
}

func logSummary(sum diag.Summary) {
	for _, kind := range diag.Kinds() {
		if n := sum.Counts[kind]; n > 0 {
			klog.CLI.Warn().Str("kind", kind.String()).Int("count", n).Msg("Diagnostics")
		}
	}
	for _, txid := range sum.Unassigned {
		klog.CLI.Warn().Str("txid", txid.String()).Msg("Unassigned transaction")
	}
}
