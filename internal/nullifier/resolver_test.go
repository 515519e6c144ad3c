package nullifier_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/diag"
	"github.com/Klingon-tech/zmigrate/internal/dump/dumptest"
	"github.com/Klingon-tech/zmigrate/internal/nullifier"
	"github.com/Klingon-tech/zmigrate/internal/registry"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

func buildRegistry(t *testing.T, b *dumptest.Builder) *registry.Registry {
	t.Helper()
	reg, err := registry.Build(b.Wallet(), registry.BuildOptions{}, diag.NewLog())
	require.NoError(t, err)
	return reg
}

func TestBuild_OwnerByViewingKey(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	z := b.ShieldedAddress(address.PoolSapling)
	nf := b.OwnedNote(address.PoolSapling, z)
	reg := buildRegistry(t, b)

	log := diag.NewLog()
	r, err := nullifier.Build(b.Wallet().Notes, reg, log)
	require.NoError(t, err)
	require.Zero(t, log.Len())

	want := reg.Resolve(z.ID).UnsafeFromSome()
	require.Equal(t, want, r.SpentNoteOwner(address.PoolSapling, nf).UnsafeFromSome())
	require.Equal(t, 1, r.Len(address.PoolSapling))
}

func TestBuild_PoolsAreSeparate(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	z := b.ShieldedAddress(address.PoolSapling)
	nf := b.OwnedNote(address.PoolSapling, z)
	reg := buildRegistry(t, b)

	r, err := nullifier.Build(b.Wallet().Notes, reg, nil)
	require.NoError(t, err)
	require.True(t, r.SpentNoteOwner(address.PoolOrchard, nf).IsNone())
	require.True(t, r.SpentNoteOwner(address.PoolSprout, nf).IsNone())
	require.True(t, r.SpentNoteOwner(address.PoolTransparent, nf).IsNone())
}

func TestBuild_OwnerByExplicitAddress(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	ufvk, key := b.UnifiedAccount(0)
	ua := b.UnifiedAddress(ufvk, address.ReceiverSapling, address.ReceiverOrchard)
	nfOrchard, nfSapling := b.Hash(), b.Hash()
	b.Note(address.PoolOrchard, types.Outpoint{TxID: b.TxID()}, nil, &nfOrchard, ua.Address)
	b.Note(address.PoolSapling, types.Outpoint{TxID: b.TxID()}, nil, &nfSapling,
		ua.Receivers[address.ReceiverSapling].Addr())
	reg := buildRegistry(t, b)

	r, err := nullifier.Build(b.Wallet().Notes, reg, nil)
	require.NoError(t, err)
	require.Equal(t, key, r.SpentNoteOwner(address.PoolOrchard, nfOrchard).UnsafeFromSome())
	require.Equal(t, key, r.SpentNoteOwner(address.PoolSapling, nfSapling).UnsafeFromSome())
}

func TestBuild_OrchardReceiverAddress(t *testing.T) {
	b := dumptest.New(types.Testnet)
	ufvk, key := b.UnifiedAccount(0)
	ua := b.UnifiedAddress(ufvk, address.ReceiverOrchard, address.ReceiverSapling)
	nf := b.Hash()
	// Orchard receivers render as Orchard-only unified strings.
	b.Note(address.PoolOrchard, types.Outpoint{TxID: b.TxID()}, nil, &nf,
		ua.Receivers[address.ReceiverOrchard].Addr())
	reg := buildRegistry(t, b)

	r, err := nullifier.Build(b.Wallet().Notes, reg, nil)
	require.NoError(t, err)
	require.Equal(t, key, r.SpentNoteOwner(address.PoolOrchard, nf).UnsafeFromSome())
}

func TestBuild_Unresolved(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	foreign := b.ForeignShielded(address.PoolSapling)
	nf := b.Hash()
	b.Note(address.PoolSapling, types.Outpoint{TxID: b.TxID()}, foreign.IVK, &nf, "")
	b.Note(address.PoolSapling, types.Outpoint{TxID: b.TxID()}, foreign.IVK, nil, "")
	reg := buildRegistry(t, b)

	log := diag.NewLog()
	r, err := nullifier.Build(b.Wallet().Notes, reg, log)
	require.NoError(t, err)

	require.True(t, r.SpentNoteOwner(address.PoolSapling, nf).IsNone())
	require.Equal(t, []nullifier.Nullifier{{Pool: address.PoolSapling, Value: nf}}, r.Unresolved())
	require.Equal(t, 1, log.Count(diag.UnresolvedNullifier))
	require.Equal(t, 1, log.Count(diag.MissingMetadata))

	s := log.Summarize()
	require.Equal(t, []string{"sapling:" + nf.String()}, s.UnresolvedNullifiers)
}

func TestBuild_DuplicateNoteSameOwner(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	z := b.ShieldedAddress(address.PoolOrchard)
	nf := b.OwnedNote(address.PoolOrchard, z)
	b.Note(address.PoolOrchard, types.Outpoint{TxID: b.TxID()}, z.IVK, &nf, "")
	reg := buildRegistry(t, b)

	r, err := nullifier.Build(b.Wallet().Notes, reg, nil)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len(address.PoolOrchard))
}

func TestBuild_Collision(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	z1 := b.ShieldedAddress(address.PoolSapling)
	z2 := b.ShieldedAddress(address.PoolSapling)
	nf := b.OwnedNote(address.PoolSapling, z1)
	b.Note(address.PoolSapling, types.Outpoint{TxID: b.TxID()}, z2.IVK, &nf, "")
	reg := buildRegistry(t, b)

	_, err := nullifier.Build(b.Wallet().Notes, reg, nil)
	require.ErrorIs(t, err, nullifier.ErrNullifierCollision)

	var ce *nullifier.CollisionError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, reg.Resolve(z1.ID).UnsafeFromSome(), ce.First)
	require.Equal(t, reg.Resolve(z2.ID).UnsafeFromSome(), ce.Second)
	require.Equal(t, address.PoolSapling, ce.Nullifier.Pool)
}

func TestBuild_LaterOwnerClearsUnresolved(t *testing.T) {
	b := dumptest.New(types.Mainnet)
	z := b.ShieldedAddress(address.PoolSapling)
	nf := b.Hash()
	b.Note(address.PoolSapling, types.Outpoint{TxID: b.TxID()}, nil, &nf, "")
	b.Note(address.PoolSapling, types.Outpoint{TxID: b.TxID()}, z.IVK, &nf, "")
	reg := buildRegistry(t, b)

	log := diag.NewLog()
	r, err := nullifier.Build(b.Wallet().Notes, reg, log)
	require.NoError(t, err)
	require.Empty(t, r.Unresolved())
	require.Zero(t, log.Count(diag.UnresolvedNullifier))
}
