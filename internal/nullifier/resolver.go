// Package nullifier maps spent-note nullifiers to the account that
// received the note. One table is kept per shielded pool; a nullifier is
// only ever looked up in the table of its own pool.
package nullifier

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/diag"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// ErrNullifierCollision is returned when one nullifier resolves to two
// different owners.
var ErrNullifierCollision = errors.New("nullifier collision")

// Nullifier is a spent-note tag within a pool.
type Nullifier struct {
	Pool  address.Pool `json:"pool"`
	Value types.Hash   `json:"value"`
}

// String returns "pool:hex".
func (n Nullifier) String() string {
	return n.Pool.String() + ":" + n.Value.String()
}

// Compare orders by pool, then value.
func (n Nullifier) Compare(o Nullifier) int {
	if n.Pool != o.Pool {
		if n.Pool < o.Pool {
			return -1
		}
		return 1
	}
	return n.Value.Compare(o.Value)
}

// CollisionError names both owners of a nullifier.
type CollisionError struct {
	Nullifier Nullifier
	First     account.Key
	Second    account.Key
}

// Error implements error.
func (e *CollisionError) Error() string {
	return fmt.Sprintf("%v: %s owned by %s and %s", ErrNullifierCollision, e.Nullifier, e.First, e.Second)
}

// Unwrap returns ErrNullifierCollision.
func (e *CollisionError) Unwrap() error {
	return ErrNullifierCollision
}

// AddressLookup is the part of the address registry the resolver needs.
type AddressLookup interface {
	Network() types.Network
	Resolve(id address.ID) fn.Option[account.Key]
	AddressForIVK(pool address.Pool, ivk []byte) fn.Option[address.ID]
}

type table struct {
	owners     map[types.Hash]account.Key
	unresolved map[types.Hash]struct{}
}

func newTable() *table {
	return &table{
		owners:     make(map[types.Hash]account.Key),
		unresolved: make(map[types.Hash]struct{}),
	}
}

// Resolver answers which account spent a shielded note. It is read-only
// once built and safe for concurrent use.
type Resolver struct {
	tables map[address.Pool]*table
}

// New returns an empty resolver with one table per shielded pool.
func New() *Resolver {
	r := &Resolver{tables: make(map[address.Pool]*table, len(address.ShieldedPools))}
	for _, p := range address.ShieldedPools {
		r.tables[p] = newTable()
	}
	return r
}

// SpentNoteOwner returns the account that owned the note with nullifier
// nf in pool.
func (r *Resolver) SpentNoteOwner(pool address.Pool, nf types.Hash) fn.Option[account.Key] {
	t, ok := r.tables[pool]
	if !ok {
		return fn.None[account.Key]()
	}
	if k, ok := t.owners[nf]; ok {
		return fn.Some(k)
	}
	return fn.None[account.Key]()
}

// Len returns the number of resolved nullifiers in pool.
func (r *Resolver) Len(pool address.Pool) int {
	if t, ok := r.tables[pool]; ok {
		return len(t.owners)
	}
	return 0
}

// Unresolved returns the known nullifiers without an owner, ordered.
func (r *Resolver) Unresolved() []Nullifier {
	var out []Nullifier
	for pool, t := range r.tables {
		for nf := range t.unresolved {
			out = append(out, Nullifier{Pool: pool, Value: nf})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Build indexes every note that carries a nullifier. The receiving
// address is the note's explicit address or, failing that, the address
// its viewing key decrypts to. A nullifier claimed by two accounts is a
// *CollisionError; notes that cannot be traced are reported to log.
func Build(notes []dump.Note, reg AddressLookup, log *diag.Log) (*Resolver, error) {
	defer klog.Benchmark("nullifier index")()

	r := New()
	for _, n := range notes {
		t, ok := r.tables[n.Pool]
		if !ok {
			log.Add(diag.Entry{
				Kind:    diag.MissingMetadata,
				Pool:    n.Pool,
				Address: n.Address,
				Detail:  fmt.Sprintf("note %s is not in a shielded pool", n.Outpoint),
			})
			continue
		}
		if n.Nullifier == nil {
			log.Add(diag.Entry{
				Kind:    diag.MissingMetadata,
				Pool:    n.Pool,
				Address: n.Address,
				Detail:  fmt.Sprintf("note %s has no nullifier", n.Outpoint),
			})
			continue
		}
		nf := *n.Nullifier

		owner, ok := noteOwner(n, reg)
		if !ok {
			if _, known := t.owners[nf]; !known {
				t.unresolved[nf] = struct{}{}
			}
			continue
		}
		if prev, ok := t.owners[nf]; ok && prev != owner {
			return nil, &CollisionError{
				Nullifier: Nullifier{Pool: n.Pool, Value: nf},
				First:     prev,
				Second:    owner,
			}
		}
		t.owners[nf] = owner
		delete(t.unresolved, nf)
	}

	for _, u := range r.Unresolved() {
		nf := u.Value
		log.Add(diag.Entry{
			Kind:      diag.UnresolvedNullifier,
			Pool:      u.Pool,
			Nullifier: &nf,
			Detail:    "spent note has no known owner",
		})
	}

	klog.Resolver.Debug().
		Int("sprout", r.Len(address.PoolSprout)).
		Int("sapling", r.Len(address.PoolSapling)).
		Int("orchard", r.Len(address.PoolOrchard)).
		Int("unresolved", len(r.Unresolved())).
		Msg("Nullifier index built")
	return r, nil
}

// noteOwner finds the account that received n.
func noteOwner(n dump.Note, reg AddressLookup) (account.Key, bool) {
	if n.Address != "" {
		if id, err := address.FromString(n.Address, reg.Network()); err == nil {
			if k, ok := resolveInPool(id, n.Pool, reg); ok {
				return k, true
			}
		}
	}
	if len(n.IVK) > 0 {
		id := reg.AddressForIVK(n.Pool, n.IVK)
		if id.IsSome() {
			return resolveInPool(id.UnsafeFromSome(), n.Pool, reg)
		}
	}
	return account.Key{}, false
}

// resolveInPool resolves id, falling back to its receiver for pool when id
// is a unified address.
func resolveInPool(id address.ID, pool address.Pool, reg AddressLookup) (account.Key, bool) {
	if k := reg.Resolve(id); k.IsSome() {
		return k.UnsafeFromSome(), true
	}
	rids, err := address.ReceiverIDs(id, reg.Network())
	if err != nil {
		return account.Key{}, false
	}
	for _, rid := range rids {
		if p, ok := rid.Pool(); !ok || p != pool {
			continue
		}
		if k := reg.Resolve(rid); k.IsSome() {
			return k.UnsafeFromSome(), true
		}
	}
	return account.Key{}, false
}
