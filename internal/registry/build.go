package registry

import (
	"fmt"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/diag"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	"github.com/Klingon-tech/zmigrate/internal/keys"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/pkg/crypto"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Material kinds used to derive legacy account ids.
const (
	legacyTransparent = "transparent-pubkey"
	legacyIVKSuffix   = "-ivk"
	legacySKSuffix    = "-sk"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// Grouping splits standalone keys into legacy accounts.
	Grouping account.Grouping
	// SeedFingerprint, when set, is checked against unified account
	// records.
	SeedFingerprint *types.Hash
}

type builder struct {
	r    *Registry
	w    *dump.Wallet
	opts BuildOptions
	log  *diag.Log

	// byIndex maps (coin type, account index) to a unified account.
	byIndex map[[2]uint32]account.Key
}

// Build indexes every address-bearing record of w and returns a sealed
// registry. Conflicting bindings abort with a *ConflictError; records that
// cannot be traced to a key are reported to log and left unregistered.
func Build(w *dump.Wallet, opts BuildOptions, log *diag.Log) (*Registry, error) {
	defer klog.Benchmark("registry build")()

	if opts.Grouping == "" {
		opts.Grouping = account.GroupByKey
	}
	b := &builder{
		r:       New(w.Network),
		w:       w,
		opts:    opts,
		log:     log,
		byIndex: make(map[[2]uint32]account.Key),
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"unified accounts", b.unifiedAccounts},
		{"unified addresses", b.unifiedAddresses},
		{"transparent keys", b.transparentKeys},
		{"shielded addresses", b.shieldedAddresses},
		{"address book", b.addressBook},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return nil, fmt.Errorf("registry %s: %w", s.name, err)
		}
	}

	b.r.Seal()
	klog.Registry.Debug().
		Int("accounts", b.r.AccountCount()).
		Int("addresses", b.r.AddressCount()).
		Msg("Address registry built")
	return b.r, nil
}

func (b *builder) missing(addr string, format string, args ...any) {
	b.log.Add(diag.Entry{
		Kind:    diag.MissingMetadata,
		Address: addr,
		Detail:  fmt.Sprintf(format, args...),
	})
}

func (b *builder) unifiedAccounts() error {
	for _, rec := range b.w.UnifiedAccounts {
		meta := rec.Metadata()
		acct := account.NewUnified(meta)

		if prev, ok := b.r.ufvks[meta.UFVKID]; ok && prev != acct.Key {
			return fmt.Errorf("%w: viewing key %s claimed by %s and %s",
				ErrConflictingRegistration, meta.UFVKID.Short(), prev, acct.Key)
		}
		if fp := b.opts.SeedFingerprint; fp != nil && *fp != meta.SeedFingerprint {
			b.missing("", "unified account %d derives from seed %s, not the wallet seed",
				meta.AccountIndex, meta.SeedFingerprint.Short())
		}

		if err := b.r.AddAccount(acct); err != nil {
			return err
		}
		b.r.ufvks[meta.UFVKID] = acct.Key
		b.byIndex[[2]uint32{meta.CoinType, meta.AccountIndex}] = acct.Key
	}
	return nil
}

func (b *builder) unifiedAddresses() error {
	for _, rec := range b.w.UnifiedAddresses {
		meta, err := rec.Metadata()
		if err != nil {
			b.missing(rec.Address, "unified address metadata: %v", err)
			continue
		}
		key, ok := b.r.ufvks[meta.UFVKID]
		if !ok {
			b.missing(rec.Address, "unified address references unknown viewing key %s", meta.UFVKID.Short())
			continue
		}

		if rec.Address == "" {
			// Without a rendered string the receivers cannot be
			// reconstructed; they are reached through their own key
			// records instead.
			if err := b.r.Register(meta.DerivationID(), key); err != nil {
				return err
			}
			continue
		}

		id, err := address.FromString(rec.Address, b.w.Network)
		if err != nil {
			b.missing(rec.Address, "unified address: %v", err)
			continue
		}
		if id.Kind() != address.Unified {
			b.missing(rec.Address, "unified address record holds a %s address", id.Kind())
			continue
		}
		if id.Receivers() != meta.Receivers {
			b.missing(rec.Address, "receiver types %s recorded, address encodes %s",
				meta.Receivers, id.Receivers())
		}
		if err := b.r.Register(id, key); err != nil {
			return err
		}

		receivers, err := address.ReceiverIDs(id, b.w.Network)
		if err != nil {
			b.missing(rec.Address, "unified address receivers: %v", err)
			continue
		}
		for _, rid := range receivers {
			if err := b.r.Register(rid, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// unifiedForPath returns the unified account whose transparent chain a
// BIP-44 path belongs to.
func (b *builder) unifiedForPath(path keys.KeyPath) (account.Key, bool) {
	if len(path) < 3 || path[0] != keys.PurposeBIP44 {
		return account.Key{}, false
	}
	coin, ok := path.CoinType()
	if !ok {
		return account.Key{}, false
	}
	idx, ok := path.Account()
	if !ok {
		return account.Key{}, false
	}
	key, ok := b.byIndex[[2]uint32{coin, idx}]
	return key, ok
}

// unifiedForZIP32 returns the unified account a shielded key belongs to.
// Only account-level paths such as m/32'/133'/0' qualify; legacy HD keys
// carry a further address component.
func (b *builder) unifiedForZIP32(path keys.KeyPath) (account.Key, bool) {
	if len(path) != 3 || path[0] != keys.PurposeZIP32 {
		return account.Key{}, false
	}
	coin, ok := path.CoinType()
	if !ok {
		return account.Key{}, false
	}
	idx, ok := path.Account()
	if !ok {
		return account.Key{}, false
	}
	key, ok := b.byIndex[[2]uint32{coin, idx}]
	return key, ok
}

func (b *builder) legacyAccount(key account.Key, group string) error {
	label := ""
	if b.opts.Grouping == account.GroupByLabel {
		label = group
	}
	if b.opts.Grouping == account.GroupSingle {
		label = "keys"
	}
	return b.r.AddAccount(account.NewLegacy(key, label))
}

func (b *builder) transparentKeys() error {
	for _, rec := range b.w.TransparentKeys {
		pub, err := crypto.ParsePubKey(rec.PubKey)
		if err != nil {
			b.missing(rec.Address, "transparent key: %v", err)
			continue
		}
		// The address commits to the serialization the wallet used.
		addr, err := address.EncodeP2PKH(crypto.Hash160(rec.PubKey), b.w.Network)
		if err != nil {
			return err
		}
		if rec.Address != "" && rec.Address != addr {
			b.missing(rec.Address, "transparent key record derives %s", addr)
			continue
		}
		id := address.NewTransparent(addr)

		var path keys.KeyPath
		if rec.KeyPath != "" {
			path, err = keys.ParseKeyPath(rec.KeyPath)
			if err != nil {
				b.missing(addr, "transparent key: %v", err)
			}
		}

		bound := b.r.Resolve(id)
		key := bound.UnwrapOr(account.Key{})
		if bound.IsNone() {
			if uk, ok := b.unifiedForPath(path); ok {
				key = uk
			} else {
				key = b.opts.Grouping.LegacyKey(legacyTransparent, pub, rec.Group)
				if err := b.legacyAccount(key, rec.Group); err != nil {
					return err
				}
			}
			if err := b.r.Register(id, key); err != nil {
				return err
			}
		}

		if path.IsInternal() {
			b.r.annotate(id, func(i *Info) { i.Internal = true })
		}
		if len(rec.PrivKey) > 0 {
			sk, err := keys.NewSpendingKey(address.PoolTransparent, rec.PrivKey)
			if err != nil {
				return err
			}
			if err := b.r.AddKey(key, sk); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) shieldedID(rec dump.ShieldedAddress) (address.ID, error) {
	if rec.Pool == address.PoolOrchard && rec.Address == "" {
		return address.FromReceiver(address.ReceiverOrchard, rec.Receiver, b.w.Network)
	}
	id, err := address.FromString(rec.Address, b.w.Network)
	if err != nil {
		return address.ID{}, err
	}
	// Orchard-only unified strings name a single Orchard receiver.
	if rec.Pool == address.PoolOrchard && id.Kind() == address.Unified {
		rids, err := address.ReceiverIDs(id, b.w.Network)
		if err != nil {
			return address.ID{}, err
		}
		if len(rids) == 1 && rids[0].Kind() == address.Orchard {
			return rids[0], nil
		}
	}
	if pool, ok := id.Pool(); !ok || pool != rec.Pool {
		return address.ID{}, fmt.Errorf("%s address listed under %s", id.Kind(), rec.Pool)
	}
	return id, nil
}

func (b *builder) shieldedAddresses() error {
	for _, rec := range b.w.ShieldedAddresses {
		id, err := b.shieldedID(rec)
		if err != nil {
			b.missing(rec.Address, "shielded address: %v", err)
			continue
		}
		if len(rec.IVK) == 0 && len(rec.SpendingKey) == 0 {
			b.missing(id.Addr(), "%s address has no key", rec.Pool)
			continue
		}

		var path keys.KeyPath
		if rec.KeyPath != "" {
			path, err = keys.ParseKeyPath(rec.KeyPath)
			if err != nil {
				b.missing(id.Addr(), "shielded address: %v", err)
			}
		}

		bound := b.r.Resolve(id)
		key := bound.UnwrapOr(account.Key{})
		if bound.IsNone() {
			if uk, ok := b.unifiedForZIP32(path); ok {
				key = uk
			} else {
				kind, material := rec.Pool.String()+legacyIVKSuffix, []byte(rec.IVK)
				if len(material) == 0 {
					kind, material = rec.Pool.String()+legacySKSuffix, rec.SpendingKey
				}
				key = b.opts.Grouping.LegacyKey(kind, material, rec.Group)
				if err := b.legacyAccount(key, rec.Group); err != nil {
					return err
				}
			}
			if err := b.r.Register(id, key); err != nil {
				return err
			}
		}

		if len(rec.IVK) > 0 {
			ivk, err := keys.NewIncomingViewingKey(rec.Pool, rec.IVK)
			if err != nil {
				return err
			}
			if err := b.r.AddKey(key, ivk); err != nil {
				return err
			}
			b.r.indexIVK(rec.Pool, rec.IVK, id)
		}
		if len(rec.SpendingKey) > 0 {
			sk, err := keys.NewSpendingKey(rec.Pool, rec.SpendingKey)
			if err != nil {
				return err
			}
			if err := b.r.AddKey(key, sk); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) addressBook() error {
	for addr, entry := range b.w.AddressBook {
		id, err := address.FromString(addr, b.w.Network)
		if err != nil {
			b.missing(addr, "address book: %v", err)
			continue
		}
		if !b.r.Resolve(id).IsSome() {
			// Foreign or watch-only addresses are not ours to claim.
			b.missing(addr, "address book entry has no key record")
			continue
		}
		if entry.Name != "" || entry.Purpose != "" {
			b.r.annotate(id, func(i *Info) { i.Labeled = true })
		}
	}
	return nil
}
