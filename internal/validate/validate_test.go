package validate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/assign"
	"github.com/Klingon-tech/zmigrate/internal/diag"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	"github.com/Klingon-tech/zmigrate/internal/dump/dumptest"
	"github.com/Klingon-tech/zmigrate/internal/nullifier"
	"github.com/Klingon-tech/zmigrate/internal/registry"
	"github.com/Klingon-tech/zmigrate/internal/signal"
	"github.com/Klingon-tech/zmigrate/internal/validate"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

type fixture struct {
	reg *registry.Registry
	v   *validate.Validator
	eng *assign.Engine
	ex  *signal.Extractor
}

func newFixture(t *testing.T, w *dump.Wallet) *fixture {
	t.Helper()
	reg, err := registry.Build(w, registry.BuildOptions{}, diag.NewLog())
	require.NoError(t, err)
	nfs, err := nullifier.Build(w.Notes, reg, nil)
	require.NoError(t, err)
	idx := signal.NewOutputIndex(w.Transactions, w.Network)
	return &fixture{
		reg: reg,
		v:   validate.New(reg, nfs, idx),
		eng: assign.New(reg, nfs, idx),
		ex:  signal.NewExtractor(w.Network, reg),
	}
}

func (f *fixture) assigned(tx dump.Transaction) []account.Key {
	return f.eng.Assign(tx, f.ex.Extract(tx)).Accounts
}

func TestValidate_AgreesWithEngine(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	ufvk, _ := b.UnifiedAccount(0)
	ua := b.UnifiedAddress(ufvk, address.ReceiverP2PKH, address.ReceiverSapling, address.ReceiverOrchard)
	k := b.TransparentKey()
	z := b.ShieldedAddress(address.PoolOrchard)
	nf := b.OwnedNote(address.PoolOrchard, z)
	p2sh := make([]byte, 20)

	txs := []dump.Transaction{
		b.Tx().PayP2PKH(k, 1).PayP2PKH(ua.Transparent, 2).Add(),
		b.Tx().SpendShielded(address.PoolOrchard, nf).Add(),
		b.Tx().ShieldedOutput(address.PoolSapling, ua.Receivers[address.ReceiverSapling].Addr(), nil).Add(),
		b.Tx().ShieldedOutput(address.PoolOrchard, "", z.IVK).Add(),
		b.Tx().SpendP2PKH(types.Outpoint{TxID: b.TxID()}, k).PayScript(dumptest.P2SHScript(p2sh), 1).Add(),
		b.Tx().Recipient(ua.Address, "").Add(),
		b.Tx().PayP2PKH(b.ForeignTransparent(), 4).Add(),
	}

	f := newFixture(t, b.Wallet())
	for _, tx := range txs {
		require.Empty(t, f.v.Validate(tx, f.assigned(tx)), tx.TxID.String())
	}
}

func TestValidate_MissingAccount(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	k := b.TransparentKey()
	tx := b.Tx().PayP2PKH(k, 1).Add()

	f := newFixture(t, b.Wallet())
	ds := f.v.Validate(tx, nil)
	require.Len(t, ds, 1)
	require.Equal(t, diag.MissingAccount, ds[0].Kind)
	require.Equal(t, f.reg.Resolve(k.ID()).UnsafeFromSome(), ds[0].Account)
	require.Equal(t, tx.TxID, ds[0].TxID)
	require.Contains(t, ds[0].Detail, k.Address)
}

func TestValidate_UnexpectedAccount(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	k := b.TransparentKey()
	other := b.TransparentKey()
	tx := b.Tx().PayP2PKH(k, 1).Add()

	f := newFixture(t, b.Wallet())
	owner := f.reg.Resolve(k.ID()).UnsafeFromSome()
	stray := f.reg.Resolve(other.ID()).UnsafeFromSome()

	ds := f.v.Validate(tx, []account.Key{owner, stray})
	require.Len(t, ds, 1)
	require.Equal(t, diag.UnexpectedAccount, ds[0].Kind)
	require.Equal(t, stray, ds[0].Account)

	e := ds[0].Entry()
	require.Equal(t, diag.UnexpectedAccount, e.Kind)
	require.Equal(t, tx.TxID, *e.TxID)
	require.Equal(t, stray, *e.Account)
}

func TestValidate_ExcludedChangeIsReported(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	payer := b.TransparentKey()
	elsewhere := b.TransparentKey(dumptest.WithPath("m/44'/133'/7'/1/0"))
	tx := b.Tx().Local().
		SpendP2PKH(types.Outpoint{TxID: b.TxID()}, payer).
		PayP2PKH(elsewhere, 3).
		Add()

	f := newFixture(t, b.Wallet())
	assigned := f.assigned(tx)
	require.Equal(t, []account.Key{f.reg.Resolve(payer.ID()).UnsafeFromSome()}, assigned)

	ds := f.v.Validate(tx, assigned)
	require.Len(t, ds, 1)
	require.Equal(t, diag.MissingAccount, ds[0].Kind)
	require.Equal(t, f.reg.Resolve(elsewhere.ID()).UnsafeFromSome(), ds[0].Account)
}

func TestValidate_UnlabeledTransferAgrees(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	payer := b.TransparentKey()
	other := b.TransparentKey()
	tx := b.Tx().Local().
		SpendP2PKH(types.Outpoint{TxID: b.TxID()}, payer).
		PayP2PKH(other, 3).
		Add()

	f := newFixture(t, b.Wallet())
	assigned := f.assigned(tx)
	require.Len(t, assigned, 2)
	require.Empty(t, f.v.Validate(tx, assigned))
}

func TestExpected_Signers(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	k := b.TransparentKey()
	f := newFixture(t, b.Wallet())

	// A signer the wallet never registered is not evidence.
	foreign := b.ForeignTransparent()
	tx := b.Tx().SpendP2PKH(types.Outpoint{TxID: b.TxID()}, foreign).Build()
	require.Empty(t, f.v.Expected(tx))

	tx = b.Tx().SpendP2PKH(types.Outpoint{TxID: b.TxID()}, k).Build()
	require.Len(t, f.v.Expected(tx), 1)
}
