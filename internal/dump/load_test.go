package dump_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	"github.com/Klingon-tech/zmigrate/internal/dump/dumptest"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

func fixture(t *testing.T) *dump.Wallet {
	t.Helper()
	b := dumptest.New(types.Testnet).WithMnemonic(dumptest.Mnemonic)
	ufvk, _ := b.UnifiedAccount(0)
	b.UnifiedAddress(ufvk, address.ReceiverP2PKH, address.ReceiverSapling, address.ReceiverOrchard)
	tk := b.TransparentKey(dumptest.WithPath("m/44'/1'/0'/0/0"))
	z := b.ShieldedAddress(address.PoolSapling)
	nf := b.OwnedNote(address.PoolSapling, z)
	b.Label(tk.Address, "savings", "receive")

	tx := b.Tx().Local()
	tx.PayP2PKH(tk, 5000).SpendShielded(address.PoolSapling, nf).Add()
	return b.Wallet()
}

func TestDecode_RoundTrip(t *testing.T) {
	w := fixture(t)

	data, err := json.Marshal(w)
	require.NoError(t, err)

	got, err := dump.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, w.Network, got.Network)
	require.Equal(t, w.Mnemonic, got.Mnemonic)
	require.Len(t, got.Transactions, 1)
	require.Equal(t, w.Transactions[0].TxID, got.Transactions[0].TxID)
	require.Equal(t, []byte(w.TransparentKeys[0].PubKey), []byte(got.TransparentKeys[0].PubKey))
	require.Equal(t, w.AddressBook, got.AddressBook)
	require.Equal(t, *w.Notes[0].Nullifier, *got.Notes[0].Nullifier)
}

func TestLoad_File(t *testing.T) {
	w := fixture(t)
	data, err := json.Marshal(w)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	got, err := dump.Load(path)
	require.NoError(t, err)
	require.Len(t, got.UnifiedAddresses, 1)

	_, err = dump.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestCheck_DuplicateTxID(t *testing.T) {
	w := fixture(t)
	w.Transactions = append(w.Transactions, w.Transactions[0])
	require.ErrorContains(t, w.Check(), "duplicate txid")
}

func TestCheck_NonShieldedSpend(t *testing.T) {
	w := fixture(t)
	w.Transactions[0].ShieldedSpends[0].Pool = address.PoolTransparent
	require.Error(t, w.Check())
}

func TestCheck_NotePositions(t *testing.T) {
	w := fixture(t)
	cm := types.Hash{7}
	w.NotePositions = []dump.NotePosition{
		{Pool: address.PoolSapling, Commitment: cm, Position: 3},
		{Pool: address.PoolOrchard, Commitment: cm, Position: 9},
		{Pool: address.PoolSapling, Commitment: cm, Position: 3},
	}
	require.NoError(t, w.Check())

	w.NotePositions = append(w.NotePositions, dump.NotePosition{Pool: address.PoolSapling, Commitment: cm, Position: 4})
	require.ErrorContains(t, w.Check(), "positions 3 and 4")

	w.NotePositions = []dump.NotePosition{{Pool: address.PoolSprout, Commitment: cm}}
	require.ErrorContains(t, w.Check(), "no note commitment tree")
}

func TestDecode_RawAndTime(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	tx := b.Tx().ReceivedAt(1_700_000_000).Add()
	require.NotEmpty(t, tx.Raw)

	data, err := json.Marshal(b.Wallet())
	require.NoError(t, err)
	require.Contains(t, string(data), `"raw":"`)

	got, err := dump.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, []byte(tx.Raw), []byte(got.Transactions[0].Raw))
	require.Equal(t, int64(1_700_000_000), got.Transactions[0].TimeReceived)
}

func TestUnifiedAddress_Metadata(t *testing.T) {
	rec := dump.UnifiedAddress{
		UFVKID:           types.Hash{1},
		DiversifierIndex: make([]byte, 11),
		ReceiverTypes:    []string{"sapling", "orchard"},
	}
	m, err := rec.Metadata()
	require.NoError(t, err)
	require.True(t, m.Receivers.Has(address.ReceiverSapling))
	require.True(t, m.Receivers.Has(address.ReceiverOrchard))
	require.False(t, m.Receivers.Has(address.ReceiverP2PKH))

	rec.DiversifierIndex = make([]byte, 4)
	_, err = rec.Metadata()
	require.Error(t, err)

	rec.DiversifierIndex = make([]byte, 11)
	rec.ReceiverTypes = []string{"bogus"}
	_, err = rec.Metadata()
	require.Error(t, err)
}

func TestHexBytes_JSON(t *testing.T) {
	data, err := json.Marshal(dump.HexBytes{0xca, 0xfe})
	require.NoError(t, err)
	require.Equal(t, `"cafe"`, string(data))

	var b dump.HexBytes
	require.NoError(t, json.Unmarshal(data, &b))
	require.Equal(t, dump.HexBytes{0xca, 0xfe}, b)
	require.Error(t, json.Unmarshal([]byte(`"zz"`), &b))
}
