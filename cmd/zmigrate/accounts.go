package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Klingon-tech/zmigrate/internal/migrate"
	"github.com/Klingon-tech/zmigrate/internal/snapshot"
)

func newAccountsCmd(v *viper.Viper) *cobra.Command {
	var showKeys bool
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List migrated accounts",
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

			accounts, err := loadAccounts(store, showKeys)
			if err != nil {
				return err
			}
			txs, err := store.LoadTransactions()
			if err != nil {
				return err
			}
			res := &migrate.Result{Accounts: accounts, Transactions: txs}
			printAccounts(cmd.OutOrStdout(), res, showKeys)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showKeys, "show-keys", false, "Print key material (asks for the password of encrypted snapshots)")
	return cmd
}

func loadAccounts(store *snapshot.Store, showKeys bool) ([]migrate.AccountRecord, error) {
	if !showKeys {
		return store.LoadAccountSummaries()
	}
	meta, err := store.Meta()
	if err != nil {
		return nil, err
	}
	var password []byte
	if meta.Encrypted {
		if password, err = readPassword("Snapshot password: "); err != nil {
			return nil, err
		}
		defer clear(password)
	}
	return store.LoadAccounts(password)
}

func printAccounts(out io.Writer, res *migrate.Result, showKeys bool) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tNAME\tADDRESSES\tTRANSACTIONS")
	for _, rec := range res.Accounts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n",
			rec.Account.Key.Short(), rec.Account.Name, len(rec.Addresses), len(res.TransactionsFor(rec.Account.Key)))
	}
	tw.Flush()

	if !showKeys {
		return
	}
	for _, rec := range res.Accounts {
		if len(rec.Keys) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s (%s)\n", rec.Account.Name, rec.Account.Key)
		for _, m := range rec.Keys {
			fmt.Fprintf(out, "  %-8s %-20s %s\n", m.Pool(), m.Kind(), hex.EncodeToString(m.Bytes()))
		}
	}
}
