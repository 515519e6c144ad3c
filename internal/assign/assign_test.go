package assign_test

import (
	"math/rand"
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
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

type harness struct {
	reg *registry.Registry
	ex  *signal.Extractor
	eng *assign.Engine
}

func newHarness(t *testing.T, b *dumptest.Builder) *harness {
	t.Helper()
	w := b.Wallet()
	reg, err := registry.Build(w, registry.BuildOptions{}, diag.NewLog())
	require.NoError(t, err)
	nfs, err := nullifier.Build(w.Notes, reg, diag.NewLog())
	require.NoError(t, err)
	return &harness{
		reg: reg,
		ex:  signal.NewExtractor(w.Network, reg),
		eng: assign.New(reg, nfs, signal.NewOutputIndex(w.Transactions, w.Network)),
	}
}

func (h *harness) assign(tx dump.Transaction) assign.Assignment {
	return h.eng.Assign(tx, h.ex.Extract(tx))
}

func (h *harness) owner(t *testing.T, id address.ID) account.Key {
	t.Helper()
	k := h.reg.Resolve(id)
	require.True(t, k.IsSome(), "%s is not registered", id)
	return k.UnsafeFromSome()
}

func TestAssign_NoDefaultFallback(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	b.TransparentKey()
	b.ShieldedAddress(address.PoolSapling)
	ufvk, _ := b.UnifiedAccount(0)
	b.UnifiedAddress(ufvk, address.ReceiverOrchard)

	foreign := b.ForeignTransparent()
	tx := b.Tx().
		PayP2PKH(foreign, 10).
		SpendP2PKH(types.Outpoint{TxID: b.TxID()}, b.ForeignTransparent()).
		SpendShielded(address.PoolSapling, b.Hash()).
		Add()

	h := newHarness(t, b)
	a := h.assign(tx)
	require.Empty(t, a.Accounts)
	require.True(t, a.Unassigned)

	entry := a.Diagnostic()
	require.True(t, entry.IsSome())
	require.Equal(t, diag.UnresolvedTransaction, entry.UnsafeFromSome().Kind)
	require.Equal(t, tx.TxID, *entry.UnsafeFromSome().TxID)
}

func TestAssign_RepeatableWithoutSideEffects(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	b.TransparentKey()
	tx := b.Tx().PayP2PKH(b.ForeignTransparent(), 1).Add()

	h := newHarness(t, b)
	first := h.assign(tx)
	require.Equal(t, first, h.assign(tx))

	// Only the caller records the diagnostic, once.
	log := diag.NewLog()
	first.Diagnostic().WhenSome(log.Add)
	require.Equal(t, 1, log.Count(diag.UnresolvedTransaction))
	require.Equal(t, []types.TxID{tx.TxID}, log.Summarize().Unassigned)
}

func TestAssign_ExplicitMapping(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	k := b.TransparentKey()
	tx := b.Tx().PayP2PKH(k, 10).PayP2PKH(b.ForeignTransparent(), 3).Add()

	h := newHarness(t, b)
	a := h.assign(tx)
	require.Equal(t, []account.Key{h.owner(t, k.ID())}, a.Accounts)
	require.False(t, a.Unassigned)
	require.Len(t, a.Evidence, 1)
	require.Equal(t, assign.TierAddress, a.Evidence[0].Tier)
	require.Equal(t, signal.SourceScript, a.Evidence[0].Source)
}

func TestAssign_MultiAccount(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	ka := b.TransparentKey()
	zb := b.ShieldedAddress(address.PoolSapling)
	tx := b.Tx().
		PayP2PKH(ka, 10).
		ShieldedOutput(address.PoolSapling, zb.Address(), nil).
		Add()

	h := newHarness(t, b)
	a := h.assign(tx)
	want := []account.Key{h.owner(t, ka.ID()), h.owner(t, zb.ID)}
	require.ElementsMatch(t, want, a.Accounts)
	require.Len(t, a.Accounts, 2)
	require.Negative(t, a.Accounts[0].Compare(a.Accounts[1]))
}

func TestAssign_NullifierOwnership(t *testing.T) {
	for _, pool := range address.ShieldedPools {
		t.Run(pool.String(), func(t *testing.T) {
			b := dumptest.New(types.Mainnet)
			zc := b.ShieldedAddress(pool)
			nf := b.OwnedNote(pool, zc)
			tx := b.Tx().SpendShielded(pool, nf).Add()

			h := newHarness(t, b)
			a := h.assign(tx)
			require.Equal(t, []account.Key{h.owner(t, zc.ID)}, a.Accounts)
			require.Equal(t, assign.TierNullifier, a.Evidence[0].Tier)
		})
	}
}

func TestAssign_NullifierWrongPool(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	zc := b.ShieldedAddress(address.PoolSapling)
	nf := b.OwnedNote(address.PoolSapling, zc)
	tx := b.Tx().SpendShielded(address.PoolOrchard, nf).Add()

	h := newHarness(t, b)
	require.True(t, h.assign(tx).Unassigned)
}

func TestAssign_UnifiedReceivers(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	ufvk, key := b.UnifiedAccount(0)
	ua := b.UnifiedAddress(ufvk, address.ReceiverP2PKH, address.ReceiverSapling, address.ReceiverOrchard)

	// Paid to the transparent receiver only.
	tx := b.Tx().PayP2PKH(ua.Transparent, 7).Add()
	h := newHarness(t, b)
	require.Equal(t, []account.Key{key}, h.assign(tx).Accounts)

	// Decrypted to the Orchard receiver only.
	tx = b.Tx().ShieldedOutput(address.PoolOrchard, ua.Receivers[address.ReceiverOrchard].Addr(), nil).Build()
	require.Equal(t, []account.Key{key}, h.assign(tx).Accounts)
}

func TestAssign_UnlabeledOutputsCount(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	payer := b.TransparentKey(dumptest.WithGroup("hot"))
	change := b.TransparentKey(dumptest.WithGroup("hot"))
	other := b.TransparentKey(dumptest.WithGroup("cold"))
	b.Label(payer.Address, "", "receive")

	funding := b.Tx().PayP2PKH(payer, 100).Add()
	spend := b.Tx().Local().
		SpendP2PKH(types.Outpoint{TxID: funding.TxID}, payer).
		PayP2PKH(b.ForeignTransparent(), 60).
		PayP2PKH(change, 30).
		PayP2PKH(other, 9).
		Recipient(b.ForeignTransparent().Address, "").
		Add()

	reg, err := registry.Build(b.Wallet(), registry.BuildOptions{Grouping: account.GroupByLabel}, diag.NewLog())
	require.NoError(t, err)
	nfs, err := nullifier.Build(nil, reg, diag.NewLog())
	require.NoError(t, err)
	eng := assign.New(reg, nfs, signal.NewOutputIndex(b.Wallet().Transactions, types.Mainnet))
	a := eng.Assign(spend, signal.NewExtractor(types.Mainnet, reg).Extract(spend))

	hot := reg.Resolve(payer.ID()).UnsafeFromSome()
	cold := reg.Resolve(other.ID()).UnsafeFromSome()
	require.NotEqual(t, hot, cold)

	// The unlabeled output to "cold" is a transfer between accounts: it
	// joins the set but is not change, since "cold" funded nothing.
	want := []account.Key{hot, cold}
	if cold.Compare(hot) < 0 {
		want = []account.Key{cold, hot}
	}
	require.Equal(t, want, a.Accounts)
	require.Equal(t, []assign.ChangeOutput{{
		Pool:    address.PoolTransparent,
		Index:   1,
		Address: change.Address,
		Account: hot,
	}}, a.Change)
}

func TestAssign_SaplingTransferBetweenAccounts(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	from := b.ShieldedAddress(address.PoolSapling)
	to := b.ShieldedAddress(address.PoolSapling)
	nf := b.OwnedNote(address.PoolSapling, from)
	// No address book labels and no recipient records, as for a pre-v5
	// send between z-addresses.
	tx := b.Tx().Local().
		SpendShielded(address.PoolSapling, nf).
		ShieldedOutput(address.PoolSapling, to.Address(), nil).
		Add()

	h := newHarness(t, b)
	a := h.assign(tx)
	require.ElementsMatch(t, []account.Key{h.owner(t, from.ID), h.owner(t, to.ID)}, a.Accounts)
	require.Empty(t, a.Change)

	tiers := make(map[account.Key]assign.Tier)
	for _, ev := range a.Evidence {
		tiers[ev.Account] = ev.Tier
	}
	require.Equal(t, assign.TierNullifier, tiers[h.owner(t, from.ID)])
	require.Equal(t, assign.TierAddress, tiers[h.owner(t, to.ID)])
}

func TestAssign_OwnShieldedOutputOnly(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	z := b.ShieldedAddress(address.PoolSapling)
	tx := b.Tx().Local().
		SpendShielded(address.PoolSapling, b.Hash()).
		ShieldedOutput(address.PoolSapling, z.Address(), nil).
		Add()

	h := newHarness(t, b)
	a := h.assign(tx)
	require.False(t, a.Unassigned)
	require.Equal(t, []account.Key{h.owner(t, z.ID)}, a.Accounts)
	require.Equal(t, assign.TierAddress, a.Evidence[0].Tier)
}

func TestAssign_ChangeChainIsSource(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	internal := b.TransparentKey(dumptest.WithPath("m/44'/133'/3'/1/0"))
	dest := b.ForeignTransparent()
	// The spent output is unknown to the wallet; only the change names
	// the funding account.
	tx := b.Tx().Local().
		SpendPrevout(types.Outpoint{TxID: b.TxID()}).
		PayP2PKH(dest, 5).
		PayP2PKH(internal, 1).
		Recipient(dest.Address, "").
		Add()

	h := newHarness(t, b)
	a := h.assign(tx)
	key := h.owner(t, internal.ID())
	require.Equal(t, []account.Key{key}, a.Accounts)
	require.Equal(t, []assign.Evidence{{
		Account: key,
		Tier:    assign.TierSource,
		Source:  signal.SourceScript,
		Ref:     internal.ID().String(),
	}}, a.Evidence)
	require.Equal(t, []assign.ChangeOutput{{
		Pool:    address.PoolTransparent,
		Index:   1,
		Address: internal.Address,
		Account: key,
	}}, a.Change)
	require.True(t, a.Diagnostic().IsNone())
}

func TestAssign_ChangeChainDoesNotIntroduce(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	payer := b.TransparentKey()
	b.Label(payer.Address, "", "receive")
	// A change-chain key of a different legacy account.
	stray := b.TransparentKey(dumptest.WithPath("m/44'/133'/9'/1/4"))

	dest := b.ForeignTransparent()
	tx := b.Tx().Local().
		SpendP2PKH(types.Outpoint{TxID: b.TxID()}, payer).
		PayP2PKH(dest, 5).
		PayP2PKH(stray, 1).
		Recipient(dest.Address, "").
		Add()

	h := newHarness(t, b)
	require.NotEqual(t, h.owner(t, payer.ID()), h.owner(t, stray.ID()))
	a := h.assign(tx)
	require.Equal(t, []account.Key{h.owner(t, payer.ID())}, a.Accounts)
	require.Empty(t, a.Change)
}

func TestAssign_InternalChainIsChange(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	ufvk, key := b.UnifiedAccount(0)
	ua := b.UnifiedAddress(ufvk, address.ReceiverP2PKH, address.ReceiverSapling)
	b.ImportTransparentKey(ua.Transparent)
	internal := b.TransparentKey(dumptest.WithPath("m/44'/133'/0'/1/0"))
	b.Label(internal.Address, "change", "receive")

	dest := b.ForeignTransparent()
	tx := b.Tx().Local().
		SpendP2PKH(types.Outpoint{TxID: b.TxID()}, ua.Transparent).
		PayP2PKH(dest, 5).
		PayP2PKH(internal, 1).
		Recipient(dest.Address, "").
		Add()

	h := newHarness(t, b)
	a := h.assign(tx)
	require.Equal(t, []account.Key{key}, a.Accounts)
	require.Len(t, a.Change, 1)
	require.Equal(t, internal.Address, a.Change[0].Address)
}

func TestAssign_NotLocalHasNoChange(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	k := b.TransparentKey()
	tx := b.Tx().PayP2PKH(k, 5).Add()

	h := newHarness(t, b)
	a := h.assign(tx)
	require.Equal(t, []account.Key{h.owner(t, k.ID())}, a.Accounts)
	require.Empty(t, a.Change)
}

func TestAssign_SourceAccount(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	k := b.TransparentKey()
	funding := b.Tx().PayP2PKH(k, 100).Add()
	// P2SH-style spend: no pubkey in the scriptSig, paid entirely outside.
	spend := b.Tx().Local().
		SpendPrevout(types.Outpoint{TxID: funding.TxID}).
		PayP2PKH(b.ForeignTransparent(), 99).
		Add()

	h := newHarness(t, b)
	a := h.assign(spend)
	require.Equal(t, []account.Key{h.owner(t, k.ID())}, a.Accounts)
	require.Equal(t, assign.TierSource, a.Evidence[0].Tier)
	require.Equal(t, signal.SourcePrevout, a.Evidence[0].Source)

	// Not created locally: the heuristic does not apply.
	spend.CreatedLocally = false
	require.True(t, h.assign(spend).Unassigned)
}

func TestAssign_SourceTierOnlyWhenEmpty(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	k := b.TransparentKey()
	other := b.TransparentKey()
	b.Label(other.Address, "savings", "receive")
	funding := b.Tx().PayP2PKH(k, 100).Add()
	spend := b.Tx().Local().
		SpendPrevout(types.Outpoint{TxID: funding.TxID}).
		PayP2PKH(other, 99).
		Add()

	h := newHarness(t, b)
	require.Equal(t, []account.Key{h.owner(t, other.ID())}, h.assign(spend).Accounts)
}

func TestAssign_Deterministic(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	ufvk, _ := b.UnifiedAccount(0)
	ua := b.UnifiedAddress(ufvk, address.ReceiverP2PKH, address.ReceiverOrchard)
	k1, k2 := b.TransparentKey(), b.TransparentKey()
	z := b.ShieldedAddress(address.PoolSapling)
	nf := b.OwnedNote(address.PoolSapling, z)

	var txs []dump.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, b.Tx().Local().
			PayP2PKH(k1, int64(i)).
			PayP2PKH(k2, 1).
			PayP2PKH(ua.Transparent, 2).
			SpendShielded(address.PoolSapling, nf).
			Recipient(ua.Address, "").
			Add())
	}

	h := newHarness(t, b)
	want := make(map[types.TxID]assign.Assignment)
	for _, tx := range txs {
		want[tx.TxID] = h.assign(tx)
	}

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 5; round++ {
		rng.Shuffle(len(txs), func(i, j int) { txs[i], txs[j] = txs[j], txs[i] })
		for _, tx := range txs {
			require.Equal(t, want[tx.TxID], h.assign(tx))
		}
	}
}
