// Package registry maps every wallet address to the account that owns it.
//
// A Registry is populated once by Build and then sealed. After sealing it
// is read-only and may be shared by any number of goroutines without
// locking.
package registry

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/keys"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

var (
	// ErrConflictingRegistration is returned when an address is bound to
	// two different accounts.
	ErrConflictingRegistration = errors.New("conflicting address registration")
	// ErrSealed is returned by mutating calls after Seal.
	ErrSealed = errors.New("registry is sealed")
)

// ConflictError names both accounts claiming one address.
type ConflictError struct {
	Address  address.ID
	Existing account.Key
	Incoming account.Key
}

// Error implements error.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %s is bound to %s, cannot bind to %s",
		ErrConflictingRegistration, e.Address, e.Existing, e.Incoming)
}

// Unwrap returns ErrConflictingRegistration.
func (e *ConflictError) Unwrap() error {
	return ErrConflictingRegistration
}

// Info carries per-address facts used by change detection.
type Info struct {
	// Internal is set for addresses derived on an HD change chain.
	Internal bool
	// Labeled is set for addresses with an address book name or purpose.
	Labeled bool
}

type binding struct {
	key  account.Key
	info Info
}

type ivkKey struct {
	pool address.Pool
	ivk  string
}

type accountEntry struct {
	acct  account.Account
	addrs []address.ID
	ring  keys.Ring
}

// Registry is the address-to-account index.
type Registry struct {
	net      types.Network
	sealed   bool
	byAddr   map[address.ID]*binding
	accounts map[account.Key]*accountEntry
	ufvks    map[types.Hash]account.Key
	ivks     map[ivkKey]address.ID
}

// New returns an empty, unsealed registry.
func New(net types.Network) *Registry {
	return &Registry{
		net:      net,
		byAddr:   make(map[address.ID]*binding),
		accounts: make(map[account.Key]*accountEntry),
		ufvks:    make(map[types.Hash]account.Key),
		ivks:     make(map[ivkKey]address.ID),
	}
}

// Network returns the network addresses were parsed for.
func (r *Registry) Network() types.Network { return r.net }

// AddAccount records an account. Adding a known account is a no-op.
func (r *Registry) AddAccount(a account.Account) error {
	if r.sealed {
		return ErrSealed
	}
	if _, ok := r.accounts[a.Key]; !ok {
		r.accounts[a.Key] = &accountEntry{acct: a}
	}
	return nil
}

func (r *Registry) entry(key account.Key) *accountEntry {
	e, ok := r.accounts[key]
	if !ok {
		e = &accountEntry{acct: account.NewLegacy(key, "")}
		r.accounts[key] = e
	}
	return e
}

// Register binds id to key. Binding an address to the account it already
// belongs to is a no-op; binding it to a different account returns a
// *ConflictError and leaves the registry unchanged.
func (r *Registry) Register(id address.ID, key account.Key) error {
	if r.sealed {
		return ErrSealed
	}
	if b, ok := r.byAddr[id]; ok {
		if b.key != key {
			return &ConflictError{Address: id, Existing: b.key, Incoming: key}
		}
		return nil
	}
	r.byAddr[id] = &binding{key: key}
	e := r.entry(key)
	e.addrs = append(e.addrs, id)
	return nil
}

// annotate updates the Info of a registered address.
func (r *Registry) annotate(id address.ID, fn func(*Info)) bool {
	b, ok := r.byAddr[id]
	if !ok {
		return false
	}
	fn(&b.info)
	return true
}

// AddKey attaches key material to an account.
func (r *Registry) AddKey(key account.Key, m keys.Material) error {
	if r.sealed {
		return ErrSealed
	}
	r.entry(key).ring.Add(m)
	return nil
}

// indexIVK records the address a viewing key decrypts to. The first
// address seen for an ivk is kept.
func (r *Registry) indexIVK(pool address.Pool, ivk []byte, id address.ID) {
	k := ivkKey{pool: pool, ivk: hex.EncodeToString(ivk)}
	if _, ok := r.ivks[k]; !ok {
		r.ivks[k] = id
	}
}

// Seal freezes the registry and orders per-account address lists.
func (r *Registry) Seal() {
	if r.sealed {
		return
	}
	for _, e := range r.accounts {
		sort.Slice(e.addrs, func(i, j int) bool { return e.addrs[i].Compare(e.addrs[j]) < 0 })
	}
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool { return r.sealed }

// Resolve returns the account an address is explicitly bound to. None
// means no mapping is known, which is not the same as "not ours".
func (r *Registry) Resolve(id address.ID) fn.Option[account.Key] {
	if b, ok := r.byAddr[id]; ok {
		return fn.Some(b.key)
	}
	return fn.None[account.Key]()
}

// Info returns the bookkeeping facts of a registered address.
func (r *Registry) Info(id address.ID) fn.Option[Info] {
	if b, ok := r.byAddr[id]; ok {
		return fn.Some(b.info)
	}
	return fn.None[Info]()
}

// AccountForUFVK returns the unified account with the given viewing key id.
func (r *Registry) AccountForUFVK(ufvk types.Hash) fn.Option[account.Key] {
	if k, ok := r.ufvks[ufvk]; ok {
		return fn.Some(k)
	}
	return fn.None[account.Key]()
}

// AddressForIVK returns the address a shielded viewing key receives at.
func (r *Registry) AddressForIVK(pool address.Pool, ivk []byte) fn.Option[address.ID] {
	if id, ok := r.ivks[ivkKey{pool: pool, ivk: hex.EncodeToString(ivk)}]; ok {
		return fn.Some(id)
	}
	return fn.None[address.ID]()
}

// Account returns a known account.
func (r *Registry) Account(key account.Key) fn.Option[account.Account] {
	if e, ok := r.accounts[key]; ok {
		return fn.Some(e.acct)
	}
	return fn.None[account.Account]()
}

// Accounts returns every account ordered by key.
func (r *Registry) Accounts() []account.Account {
	out := make([]account.Account, 0, len(r.accounts))
	for _, e := range r.accounts {
		out = append(out, e.acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out
}

// AddressesFor returns the addresses owned by key, ordered.
func (r *Registry) AddressesFor(key account.Key) []address.ID {
	e, ok := r.accounts[key]
	if !ok {
		return nil
	}
	out := make([]address.ID, len(e.addrs))
	copy(out, e.addrs)
	return out
}

// Keys returns the preserved key material of key's account.
func (r *Registry) Keys(key account.Key) []keys.Material {
	e, ok := r.accounts[key]
	if !ok {
		return nil
	}
	return e.ring.Materials()
}

// AddressCount returns the number of registered addresses.
func (r *Registry) AddressCount() int { return len(r.byAddr) }

// AccountCount returns the number of accounts.
func (r *Registry) AccountCount() int { return len(r.accounts) }
