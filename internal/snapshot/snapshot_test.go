package snapshot

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/dump/dumptest"
	"github.com/Klingon-tech/zmigrate/internal/keys"
	"github.com/Klingon-tech/zmigrate/internal/migrate"
	"github.com/Klingon-tech/zmigrate/internal/storage"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

func sampleResult(t *testing.T) *migrate.Result {
	t.Helper()
	b := dumptest.New(types.Testnet).WithMnemonic(dumptest.Mnemonic)
	ufvk, _ := b.UnifiedAccount(0)
	ua := b.UnifiedAddress(ufvk, address.ReceiverP2PKH, address.ReceiverOrchard)
	b.ImportTransparentKey(ua.Transparent)
	k := b.TransparentKey()
	z := b.ShieldedAddress(address.PoolSapling)
	b.Tx().PayP2PKH(k, 5).Add()
	b.Tx().PayP2PKH(ua.Transparent, 1).ShieldedOutput(address.PoolSapling, "", z.IVK).Add()
	b.Tx().PayP2PKH(b.ForeignTransparent(), 2).Add()

	res, err := migrate.Run(context.Background(), b.Wallet(), migrate.Options{Validate: true})
	require.NoError(t, err)
	return res
}

func newStore() *Store {
	return New(storage.NewMemory()).WithSealParams(keys.FastSealParams())
}

func requireSameJSON(t *testing.T, want, got any) {
	t.Helper()
	a, err := json.Marshal(want)
	require.NoError(t, err)
	b, err := json.Marshal(got)
	require.NoError(t, err)
	require.JSONEq(t, string(a), string(b))
}

func requireSameKeys(t *testing.T, want, got []migrate.AccountRecord) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Account, got[i].Account)
		require.Len(t, got[i].Keys, len(want[i].Keys))
		for j, m := range want[i].Keys {
			require.Equal(t, m.Kind(), got[i].Keys[j].Kind())
			require.Equal(t, m.Pool(), got[i].Keys[j].Pool())
			require.Equal(t, m.Bytes(), got[i].Keys[j].Bytes())
		}
	}
}

func TestStore_NoSnapshot(t *testing.T) {
	s := newStore()
	_, err := s.Meta()
	require.ErrorIs(t, err, ErrNoSnapshot)
	require.ErrorIs(t, s.Verify(), ErrNoSnapshot)
}

func TestStore_RoundTrip(t *testing.T) {
	res := sampleResult(t)
	s := newStore()

	meta, err := s.Save(res, nil)
	require.NoError(t, err)
	require.Equal(t, Version, meta.Version)
	require.Equal(t, types.Testnet, meta.Network)
	require.Equal(t, len(res.Accounts), meta.Accounts)
	require.Equal(t, len(res.Transactions), meta.Transactions)
	require.Equal(t, 1, meta.Unassigned)
	require.True(t, meta.Complete)
	require.False(t, meta.Encrypted)
	require.False(t, meta.Checksum.IsZero())

	stored, err := s.Meta()
	require.NoError(t, err)
	require.Equal(t, meta, stored)
	require.NoError(t, s.Verify())

	accounts, err := s.LoadAccounts(nil)
	require.NoError(t, err)
	requireSameKeys(t, res.Accounts, accounts)

	txs, err := s.LoadTransactions()
	require.NoError(t, err)
	requireSameJSON(t, res.Transactions, txs)

	one, err := s.LoadTransaction(res.Transactions[0].TxID)
	require.NoError(t, err)
	requireSameJSON(t, res.Transactions[0], one)

	sum, err := s.LoadSummary()
	require.NoError(t, err)
	requireSameJSON(t, res.Summary, sum)

	seed, err := s.LoadSeed(nil)
	require.NoError(t, err)
	require.Equal(t, res.Seed, seed)
}

func TestStore_RawAndPositions(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	z := b.ShieldedAddress(address.PoolSapling)
	tx := b.Tx().
		ReceivedAt(1_600_000_000).
		ShieldedOutput(address.PoolSapling, z.Address(), nil).
		ShieldedOutput(address.PoolSapling, "", nil).
		Add()
	b.NotePosition(address.PoolSapling, tx.ShieldedOutputs[0].Commitment, 12)

	res, err := migrate.Run(context.Background(), b.Wallet(), migrate.Options{})
	require.NoError(t, err)
	s := newStore()
	_, err = s.Save(res, nil)
	require.NoError(t, err)

	rec, err := s.LoadTransaction(tx.TxID)
	require.NoError(t, err)
	require.Equal(t, []byte(tx.Raw), []byte(rec.Raw))
	require.Equal(t, int64(1_600_000_000), rec.TimeReceived)
	require.Len(t, rec.Outputs, 2)
	require.Equal(t, tx.ShieldedOutputs[0].Commitment, rec.Outputs[0].Commitment)
	require.Equal(t, uint64(12), *rec.Outputs[0].Position)
	require.False(t, rec.Outputs[0].Placeholder)
	require.Equal(t, uint64(13), *rec.Outputs[1].Position)
	require.True(t, rec.Outputs[1].Placeholder)
}

func TestStore_Encrypted(t *testing.T) {
	res := sampleResult(t)
	s := newStore()
	password := []byte("correct horse")

	meta, err := s.Save(res, password)
	require.NoError(t, err)
	require.True(t, meta.Encrypted)
	require.NoError(t, s.Verify())

	_, err = s.LoadSeed(nil)
	require.ErrorIs(t, err, ErrPasswordRequired)
	_, err = s.LoadAccounts(nil)
	require.ErrorIs(t, err, ErrPasswordRequired)
	_, err = s.LoadSeed([]byte("wrong"))
	require.ErrorIs(t, err, keys.ErrWrongPassword)

	// Account names and transactions stay readable.
	summaries, err := s.LoadAccountSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, len(res.Accounts))
	for _, a := range summaries {
		require.Empty(t, a.Keys)
	}
	txs, err := s.LoadTransactions()
	require.NoError(t, err)
	require.Len(t, txs, len(res.Transactions))

	seed, err := s.LoadSeed(password)
	require.NoError(t, err)
	require.Equal(t, res.Seed, seed)
	accounts, err := s.LoadAccounts(password)
	require.NoError(t, err)
	requireSameKeys(t, res.Accounts, accounts)
}

func TestStore_SaveReplaces(t *testing.T) {
	res := sampleResult(t)
	s := newStore()
	_, err := s.Save(res, nil)
	require.NoError(t, err)

	smaller := *res
	smaller.Transactions = res.Transactions[:1]
	smaller.Accounts = res.Accounts[:1]
	meta, err := s.Save(&smaller, nil)
	require.NoError(t, err)
	require.Equal(t, 1, meta.Transactions)

	txs, err := s.LoadTransactions()
	require.NoError(t, err)
	require.Len(t, txs, 1)
	accounts, err := s.LoadAccountSummaries()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.NoError(t, s.Verify())
}

func TestStore_VerifyDetectsTampering(t *testing.T) {
	res := sampleResult(t)
	db := storage.NewMemory()
	s := New(db).WithSealParams(keys.FastSealParams())
	_, err := s.Save(res, nil)
	require.NoError(t, err)

	key := txKey(res.Transactions[0].TxID)
	require.NoError(t, db.Put(key, []byte(`{"txid":"00"}`)))
	require.ErrorIs(t, s.Verify(), ErrChecksum)
}

func TestStore_Badger(t *testing.T) {
	res := sampleResult(t)
	dir := t.TempDir()

	db, err := storage.NewBadger(dir)
	require.NoError(t, err)
	_, err = New(db).WithSealParams(keys.FastSealParams()).Save(res, []byte("pw"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = storage.NewBadger(dir)
	require.NoError(t, err)
	defer db.Close()
	s := New(db)
	require.NoError(t, s.Verify())
	accounts, err := s.LoadAccounts([]byte("pw"))
	require.NoError(t, err)
	requireSameKeys(t, res.Accounts, accounts)
}

func TestStore_NamespacesAreIndependent(t *testing.T) {
	res := sampleResult(t)
	db := storage.NewMemory()
	mainStore := New(storage.NewPrefixDB(db, []byte("mainnet/"))).WithSealParams(keys.FastSealParams())
	test := New(storage.NewPrefixDB(db, []byte("testnet/"))).WithSealParams(keys.FastSealParams())

	_, err := test.Save(res, nil)
	require.NoError(t, err)
	_, err = mainStore.Meta()
	require.ErrorIs(t, err, ErrNoSnapshot)

	empty := &migrate.Result{Network: types.Mainnet, Complete: true}
	_, err = mainStore.Save(empty, nil)
	require.NoError(t, err)

	require.NoError(t, test.Verify())
	txs, err := test.LoadTransactions()
	require.NoError(t, err)
	require.Len(t, txs, len(res.Transactions))
}
