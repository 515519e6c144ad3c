package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Klingon-tech/zmigrate/internal/diag"
	"github.com/Klingon-tech/zmigrate/internal/snapshot"
)

type report struct {
	Meta    snapshot.Meta `json:"meta"`
	Summary diag.Summary  `json:"summary"`
}

func newReportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the stored migration summary as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			store, closeStore, err := openSnapshot(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Verify(); err != nil {
				return err
			}
			meta, err := store.Meta()
			if err != nil {
				return err
			}
			sum, err := store.LoadSummary()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(report{Meta: meta, Summary: sum}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
