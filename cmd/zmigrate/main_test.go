package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/dump/dumptest"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

func writeExport(t *testing.T) string {
	t.Helper()
	b := dumptest.New(types.Testnet).WithMnemonic(dumptest.Mnemonic)
	ufvk, _ := b.UnifiedAccount(0)
	ua := b.UnifiedAddress(ufvk, address.ReceiverP2PKH, address.ReceiverOrchard)
	b.ImportTransparentKey(ua.Transparent)
	k := b.TransparentKey()
	b.Tx().PayP2PKH(k, 5).Add()
	b.Tx().PayP2PKH(ua.Transparent, 1).Add()
	b.Tx().PayP2PKH(b.ForeignTransparent(), 2).Add()

	data, err := json.Marshal(b.Wallet())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "zmigrate dev")
}

func TestRun_RequiresInput(t *testing.T) {
	_, err := execute(t, "run", "--datadir", t.TempDir(), "--network", "testnet")
	require.Error(t, err)
}

func TestRun_NetworkMismatch(t *testing.T) {
	input := writeExport(t)
	_, err := execute(t, "run", "--datadir", t.TempDir(), "-i", input)
	require.ErrorContains(t, err, "testnet")
}

func TestRun_ReportAndAccounts(t *testing.T) {
	input := writeExport(t)
	dir := t.TempDir()

	_, err := execute(t, "run", "--datadir", dir, "--network", "testnet", "-i", input, "--workers", "2")
	require.NoError(t, err)

	out, err := execute(t, "report", "--datadir", dir, "--network", "testnet")
	require.NoError(t, err)
	var rep report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Equal(t, 3, rep.Meta.Transactions)
	require.Equal(t, 1, rep.Meta.Unassigned)
	require.Len(t, rep.Summary.Unassigned, 1)

	out, err = execute(t, "accounts", "--datadir", dir, "--network", "testnet")
	require.NoError(t, err)
	require.Contains(t, out, "Account #0")
	require.Contains(t, out, "ADDRESSES")
}

func TestRun_EncryptedShowKeys(t *testing.T) {
	input := writeExport(t)
	dir := t.TempDir()
	t.Setenv(passwordEnv, "hunter2")

	_, err := execute(t, "run", "--datadir", dir, "--network", "testnet", "-i", input, "--encrypt")
	require.NoError(t, err)

	out, err := execute(t, "accounts", "--datadir", dir, "--network", "testnet", "--show-keys")
	require.NoError(t, err)
	require.Contains(t, out, "spending")

	t.Setenv(passwordEnv, "wrong")
	_, err = execute(t, "accounts", "--datadir", dir, "--network", "testnet", "--show-keys")
	require.Error(t, err)
}
