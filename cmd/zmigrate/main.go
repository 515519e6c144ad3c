// zmigrate migrates a legacy shielded wallet export into accounts.
//
// Usage:
//
//	zmigrate run --input wallet.json   Migrate and store a snapshot
//	zmigrate report                    Print the stored diagnostics summary
//	zmigrate accounts [--show-keys]    List migrated accounts
//	zmigrate version                   Print version information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Klingon-tech/zmigrate/config"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/internal/snapshot"
	"github.com/Klingon-tech/zmigrate/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "zmigrate",
		Short:         "Migrate a legacy shielded wallet export into accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if err := config.BindGlobalFlags(root.PersistentFlags(), v); err != nil {
		panic(err)
	}

	root.AddCommand(
		newRunCmd(v),
		newReportCmd(v),
		newAccountsCmd(v),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zmigrate %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// loadConfig resolves the configuration and sets up logging.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	return cfg, nil
}

// openSnapshot opens the snapshot store of cfg's network.
func openSnapshot(cfg *config.Config) (*snapshot.Store, func() error, error) {
	db, err := storage.NewBadger(cfg.SnapshotDir())
	if err != nil {
		return nil, nil, err
	}
	ns := storage.NewPrefixDB(db, []byte(cfg.Network.String()+"/"))
	return snapshot.New(ns), db.Close, nil
}
