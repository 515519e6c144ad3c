// Package keys preserves wallet key material byte-for-byte and classifies
// it by kind and pool.
//
// Only spending keys and incoming viewing keys are stored. A full viewing
// key is a capability derived from a spending key on demand through an
// FVKDeriver; it is never held as separate material.
package keys

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/pkg/crypto"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

const tagFingerprint = "zmigrate/key-fingerprint"

var (
	// ErrEmptyKey is returned for zero-length key material.
	ErrEmptyKey = errors.New("empty key material")
	// ErrNoSpendingKey is returned when a viewing key must be derived but
	// the ring holds no spending key for the pool.
	ErrNoSpendingKey = errors.New("no spending key")
)

// Kind is the key material variant.
type Kind uint8

const (
	KindSpendingKey Kind = iota + 1
	KindIncomingViewingKey
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSpendingKey:
		return "spending_key"
	case KindIncomingViewingKey:
		return "incoming_viewing_key"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Material is a stored key.
type Material interface {
	Kind() Kind
	Pool() address.Pool
	// Bytes returns a copy of the raw key exactly as read from the wallet.
	Bytes() []byte
	// Fingerprint identifies the key without revealing it.
	Fingerprint() types.Hash
}

type raw struct {
	pool address.Pool
	data []byte
}

func (r raw) Pool() address.Pool { return r.pool }

func (r raw) Bytes() []byte { return bytes.Clone(r.data) }

func (r raw) fingerprint(k Kind) types.Hash {
	return crypto.TaggedHash(tagFingerprint, []byte{byte(k), byte(r.pool)}, r.data)
}

// SpendingKey grants spend authority in one pool.
type SpendingKey struct{ raw }

// NewSpendingKey copies b into a spending key.
func NewSpendingKey(pool address.Pool, b []byte) (SpendingKey, error) {
	if len(b) == 0 {
		return SpendingKey{}, ErrEmptyKey
	}
	return SpendingKey{raw{pool: pool, data: bytes.Clone(b)}}, nil
}

// Kind implements Material.
func (SpendingKey) Kind() Kind { return KindSpendingKey }

// Fingerprint implements Material.
func (k SpendingKey) Fingerprint() types.Hash { return k.fingerprint(KindSpendingKey) }

// IncomingViewingKey detects incoming notes in one shielded pool.
type IncomingViewingKey struct{ raw }

// NewIncomingViewingKey copies b into an incoming viewing key.
func NewIncomingViewingKey(pool address.Pool, b []byte) (IncomingViewingKey, error) {
	if len(b) == 0 {
		return IncomingViewingKey{}, ErrEmptyKey
	}
	return IncomingViewingKey{raw{pool: pool, data: bytes.Clone(b)}}, nil
}

// Kind implements Material.
func (IncomingViewingKey) Kind() Kind { return KindIncomingViewingKey }

// Fingerprint implements Material.
func (k IncomingViewingKey) Fingerprint() types.Hash {
	return k.fingerprint(KindIncomingViewingKey)
}

// Preserve returns a deep copy of m with identical bytes.
func Preserve(m Material) Material {
	switch k := m.(type) {
	case SpendingKey:
		return SpendingKey{raw{pool: k.pool, data: bytes.Clone(k.data)}}
	case IncomingViewingKey:
		return IncomingViewingKey{raw{pool: k.pool, data: bytes.Clone(k.data)}}
	default:
		panic(fmt.Sprintf("keys: unknown material %T", m))
	}
}

// FVKDeriver computes a full viewing key from a spending key. Derivation
// is pool-specific cryptography supplied by the caller.
type FVKDeriver interface {
	DeriveFVK(sk SpendingKey) ([]byte, error)
}

// Record is the serialized form of a Material.
type Record struct {
	Kind string       `json:"kind"`
	Pool address.Pool `json:"pool"`
	Key  string       `json:"key"`
}

// ToRecord serializes m.
func ToRecord(m Material) Record {
	return Record{Kind: m.Kind().String(), Pool: m.Pool(), Key: hex.EncodeToString(m.Bytes())}
}

// FromRecord is the inverse of ToRecord.
func FromRecord(r Record) (Material, error) {
	b, err := hex.DecodeString(r.Key)
	if err != nil {
		return nil, fmt.Errorf("key material: %w", err)
	}
	switch r.Kind {
	case KindSpendingKey.String():
		return NewSpendingKey(r.Pool, b)
	case KindIncomingViewingKey.String():
		return NewIncomingViewingKey(r.Pool, b)
	default:
		return nil, fmt.Errorf("key material: unknown kind %q", r.Kind)
	}
}

// Ring is the key collection of one account. The zero value is ready to
// use. Adding the same key twice keeps one copy.
type Ring struct {
	items []Material
	seen  map[types.Hash]struct{}
}

// Add stores a preserved copy of m. It reports whether m was new.
func (r *Ring) Add(m Material) bool {
	fp := m.Fingerprint()
	if _, ok := r.seen[fp]; ok {
		return false
	}
	if r.seen == nil {
		r.seen = make(map[types.Hash]struct{})
	}
	r.seen[fp] = struct{}{}
	r.items = append(r.items, Preserve(m))
	return true
}

// Len returns the number of stored keys.
func (r *Ring) Len() int { return len(r.items) }

// Materials returns the keys ordered by pool, kind, then fingerprint.
func (r *Ring) Materials() []Material {
	out := make([]Material, len(r.items))
	copy(out, r.items)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pool() != b.Pool() {
			return a.Pool() < b.Pool()
		}
		if a.Kind() != b.Kind() {
			return a.Kind() < b.Kind()
		}
		return a.Fingerprint().Compare(b.Fingerprint()) < 0
	})
	return out
}

// SpendingKey returns the first spending key for pool.
func (r *Ring) SpendingKey(pool address.Pool) (SpendingKey, bool) {
	for _, m := range r.Materials() {
		if sk, ok := m.(SpendingKey); ok && sk.Pool() == pool {
			return sk, true
		}
	}
	return SpendingKey{}, false
}

// FullViewingKey derives the pool's full viewing key from the ring's
// spending key. The result is not stored.
func (r *Ring) FullViewingKey(pool address.Pool, d FVKDeriver) ([]byte, error) {
	sk, ok := r.SpendingKey(pool)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoSpendingKey, pool)
	}
	return d.DeriveFVK(sk)
}
