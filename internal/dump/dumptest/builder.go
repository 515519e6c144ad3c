// Package dumptest builds synthetic wallet exports for tests. All keys,
// addresses and ids are deterministic per builder.
package dumptest

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	"github.com/Klingon-tech/zmigrate/internal/keys"
	"github.com/Klingon-tech/zmigrate/pkg/crypto"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Mnemonic is a valid BIP-39 phrase for fixtures.
const Mnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// Builder accumulates a wallet export.
type Builder struct {
	net    types.Network
	w      dump.Wallet
	seq    uint32
	seedFP types.Hash
}

// New returns an empty builder for net.
func New(net types.Network) *Builder {
	b := &Builder{net: net}
	b.w.Network = net
	copy(b.seedFP[:], b.fill(types.HashSize))
	return b
}

// Network returns the builder's network.
func (b *Builder) Network() types.Network { return b.net }

// WithMnemonic sets the wallet mnemonic; unified accounts added afterwards
// carry its seed fingerprint.
func (b *Builder) WithMnemonic(m string) *Builder {
	b.w.Mnemonic = m
	b.w.MnemonicLanguage = "English"
	seed, err := keys.SeedMaterial{Mnemonic: m}.Fingerprint()
	if err == nil {
		b.seedFP = seed
	}
	return b
}

// Wallet returns the accumulated export.
func (b *Builder) Wallet() *dump.Wallet {
	w := b.w
	return &w
}

// Mutate gives direct access to the export under construction.
func (b *Builder) Mutate(fn func(w *dump.Wallet)) {
	fn(&b.w)
}

// fill returns n deterministic bytes unique to this call.
func (b *Builder) fill(n int) []byte {
	b.seq++
	var seq [4]byte
	binary.BigEndian.PutUint32(seq[:], b.seq)
	out := make([]byte, 0, n+types.HashSize)
	for i := 0; len(out) < n; i++ {
		h := crypto.TaggedHash("dumptest", seq[:], []byte{byte(i)})
		out = append(out, h[:]...)
	}
	return out[:n]
}

// Hash returns a fresh deterministic hash, e.g. for a nullifier.
func (b *Builder) Hash() types.Hash {
	var h types.Hash
	copy(h[:], b.fill(types.HashSize))
	return h
}

// TxID returns a fresh transaction id.
func (b *Builder) TxID() types.TxID {
	return types.TxID(b.Hash())
}

// UnifiedAccount adds an HD account and returns its viewing-key id and
// account key.
func (b *Builder) UnifiedAccount(index uint32) (types.Hash, account.Key) {
	rec := dump.UnifiedAccount{
		SeedFingerprint: b.seedFP,
		CoinType:        coinType(b.net),
		AccountIndex:    index,
		UFVKID:          b.Hash(),
	}
	b.w.UnifiedAccounts = append(b.w.UnifiedAccounts, rec)
	return rec.UFVKID, rec.Metadata().Key()
}

func coinType(net types.Network) uint32 {
	if net == types.Mainnet {
		return 133
	}
	return 1
}

// TKey is a transparent key pair.
type TKey struct {
	Address string
	PubKey  []byte
	PrivKey []byte
	Hash    []byte
}

// ID returns the address identity.
func (k TKey) ID() address.ID { return address.NewTransparent(k.Address) }

func (b *Builder) newTKey() TKey {
	priv := secp256k1.PrivKeyFromBytes(b.fill(32))
	pub := priv.PubKey().SerializeCompressed()
	hash := crypto.Hash160(pub)
	addr, err := address.EncodeP2PKH(hash, b.net)
	if err != nil {
		panic(err)
	}
	return TKey{Address: addr, PubKey: pub, PrivKey: priv.Serialize(), Hash: hash}
}

// KeyOption customises a key record.
type KeyOption func(*keyOpts)

type keyOpts struct {
	path      string
	group     string
	watchOnly bool
}

// WithPath sets the HD key path.
func WithPath(p string) KeyOption { return func(o *keyOpts) { o.path = p } }

// WithGroup sets the explicit grouping label.
func WithGroup(g string) KeyOption { return func(o *keyOpts) { o.group = g } }

// WatchOnly omits the spending key.
func WatchOnly() KeyOption { return func(o *keyOpts) { o.watchOnly = true } }

func applyOpts(opts []KeyOption) keyOpts {
	var o keyOpts
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// TransparentKey adds a transparent key to the wallet.
func (b *Builder) TransparentKey(opts ...KeyOption) TKey {
	o := applyOpts(opts)
	k := b.newTKey()
	rec := dump.TransparentKey{
		Address: k.Address,
		PubKey:  k.PubKey,
		KeyPath: o.path,
		Group:   o.group,
	}
	if !o.watchOnly {
		rec.PrivKey = k.PrivKey
	}
	b.w.TransparentKeys = append(b.w.TransparentKeys, rec)
	return k
}

// ImportTransparentKey adds a key record for an existing key pair, such as
// the transparent receiver of a unified address.
func (b *Builder) ImportTransparentKey(k TKey, opts ...KeyOption) {
	o := applyOpts(opts)
	rec := dump.TransparentKey{Address: k.Address, PubKey: k.PubKey, KeyPath: o.path, Group: o.group}
	if !o.watchOnly {
		rec.PrivKey = k.PrivKey
	}
	b.w.TransparentKeys = append(b.w.TransparentKeys, rec)
}

// ForeignTransparent returns a key the wallet does not hold.
func (b *Builder) ForeignTransparent() TKey {
	return b.newTKey()
}

// ZAddr is a shielded address with its viewing key.
type ZAddr struct {
	ID       address.ID
	Receiver []byte
	IVK      []byte
	SK       []byte
}

// Address returns the rendered address string.
func (z ZAddr) Address() string { return z.ID.Addr() }

func (b *Builder) newZAddr(pool address.Pool) ZAddr {
	z := ZAddr{IVK: b.fill(32), SK: b.fill(32)}
	switch pool {
	case address.PoolSprout:
		z.Receiver = b.fill(64)
		s := encodeSprout(z.Receiver, b.net)
		z.ID = address.NewSprout(s)
	case address.PoolSapling:
		z.Receiver = b.fill(address.ShieldedReceiverSize)
		id, err := address.FromReceiver(address.ReceiverSapling, z.Receiver, b.net)
		if err != nil {
			panic(err)
		}
		z.ID = id
	case address.PoolOrchard:
		z.Receiver = b.fill(address.ShieldedReceiverSize)
		id, err := address.FromReceiver(address.ReceiverOrchard, z.Receiver, b.net)
		if err != nil {
			panic(err)
		}
		z.ID = id
	default:
		panic("dumptest: not a shielded pool")
	}
	return z
}

// ShieldedAddress adds a standalone shielded address with an incoming
// viewing key and, unless WatchOnly, a spending key.
func (b *Builder) ShieldedAddress(pool address.Pool, opts ...KeyOption) ZAddr {
	o := applyOpts(opts)
	z := b.newZAddr(pool)
	rec := dump.ShieldedAddress{
		Pool:    pool,
		IVK:     z.IVK,
		KeyPath: o.path,
		Group:   o.group,
	}
	if pool == address.PoolOrchard {
		rec.Receiver = z.Receiver
	} else {
		rec.Address = z.Address()
	}
	if !o.watchOnly {
		rec.SpendingKey = z.SK
	}
	b.w.ShieldedAddresses = append(b.w.ShieldedAddresses, rec)
	return z
}

// ForeignShielded returns a shielded address the wallet does not hold.
func (b *Builder) ForeignShielded(pool address.Pool) ZAddr {
	return b.newZAddr(pool)
}

// UA is a unified address and its standalone receivers.
type UA struct {
	Address     string
	Meta        account.UnifiedAddressMetadata
	Receivers   map[address.ReceiverKind]address.ID
	Transparent TKey
}

// ID returns the unified address identity.
func (u UA) ID() address.ID {
	if u.Address == "" {
		return u.Meta.DerivationID()
	}
	return address.NewUnified(u.Address, u.Meta.Receivers)
}

func (b *Builder) newUA(ufvk types.Hash, kinds []address.ReceiverKind) UA {
	ua := UA{Receivers: make(map[address.ReceiverKind]address.ID)}
	raw := address.UnifiedAddress{Receivers: make(map[address.ReceiverKind][]byte)}
	for _, k := range kinds {
		var r []byte
		switch k {
		case address.ReceiverP2PKH:
			ua.Transparent = b.newTKey()
			r = ua.Transparent.Hash
		case address.ReceiverP2SH:
			r = b.fill(20)
		default:
			r = b.fill(address.ShieldedReceiverSize)
		}
		raw.Receivers[k] = r
		id, err := address.FromReceiver(k, r, b.net)
		if err != nil {
			panic(err)
		}
		ua.Receivers[k] = id
	}
	s, err := address.EncodeUnified(raw, b.net)
	if err != nil {
		panic(err)
	}
	ua.Address = s
	ua.Meta = account.UnifiedAddressMetadata{UFVKID: ufvk, Receivers: raw.Set()}
	copy(ua.Meta.DiversifierIndex[:], b.fill(address.DiversifierSize))
	return ua
}

// UnifiedAddress adds a rendered unified address for the account with the
// given viewing-key id.
func (b *Builder) UnifiedAddress(ufvk types.Hash, kinds ...address.ReceiverKind) UA {
	ua := b.newUA(ufvk, kinds)
	b.w.UnifiedAddresses = append(b.w.UnifiedAddresses, dumpUA(ua, true))
	return ua
}

// UnrenderedUnifiedAddress adds address metadata without a rendered
// string.
func (b *Builder) UnrenderedUnifiedAddress(ufvk types.Hash, kinds ...address.ReceiverKind) UA {
	ua := b.newUA(ufvk, kinds)
	ua.Address = ""
	b.w.UnifiedAddresses = append(b.w.UnifiedAddresses, dumpUA(ua, false))
	return ua
}

func dumpUA(ua UA, rendered bool) dump.UnifiedAddress {
	rec := dump.UnifiedAddress{
		UFVKID:           ua.Meta.UFVKID,
		DiversifierIndex: ua.Meta.DiversifierIndex[:],
	}
	for _, k := range ua.Meta.Receivers.Kinds() {
		rec.ReceiverTypes = append(rec.ReceiverTypes, k.String())
	}
	if rendered {
		rec.Address = ua.Address
	}
	return rec
}

// Label adds an address book entry.
func (b *Builder) Label(addr, name, purpose string) {
	if b.w.AddressBook == nil {
		b.w.AddressBook = make(map[string]dump.AddressBookEntry)
	}
	b.w.AddressBook[addr] = dump.AddressBookEntry{Name: name, Purpose: purpose}
}

// Note records a received note. nf may be nil.
func (b *Builder) Note(pool address.Pool, out types.Outpoint, ivk []byte, nf *types.Hash, addr string) {
	b.w.Notes = append(b.w.Notes, dump.Note{
		Pool:      pool,
		Outpoint:  out,
		IVK:       ivk,
		Nullifier: nf,
		Address:   addr,
	})
}

// OwnedNote records a note received by z and returns its nullifier.
func (b *Builder) OwnedNote(pool address.Pool, z ZAddr) types.Hash {
	nf := b.Hash()
	b.Note(pool, types.Outpoint{TxID: b.TxID()}, z.IVK, &nf, "")
	return nf
}

// NotePosition places a commitment in the note commitment tree of pool.
func (b *Builder) NotePosition(pool address.Pool, cm types.Hash, pos uint64) {
	b.w.NotePositions = append(b.w.NotePositions, dump.NotePosition{
		Pool:       pool,
		Commitment: cm,
		Position:   pos,
	})
}

// P2PKHScript returns the locking script paying hash.
func P2PKHScript(hash []byte) []byte {
	s, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		panic(err)
	}
	return s
}

// P2SHScript returns the locking script paying a script hash.
func P2SHScript(hash []byte) []byte {
	s, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUAL).
		Script()
	if err != nil {
		panic(err)
	}
	return s
}

// ScriptSig returns a P2PKH unlocking script with a dummy signature.
func ScriptSig(pub []byte) []byte {
	sig := make([]byte, 71)
	sig[0] = 0x30
	s, err := txscript.NewScriptBuilder().AddData(sig).AddData(pub).Script()
	if err != nil {
		panic(err)
	}
	return s
}
