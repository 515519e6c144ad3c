// Package address models every address form a legacy wallet can hold as a
// closed set of kinds, and converts between their string encodings.
package address

import (
	"fmt"
	"strings"
)

// Kind is the address form.
type Kind uint8

const (
	Transparent Kind = iota + 1
	Sprout
	Sapling
	Orchard
	Unified
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Transparent:
		return "transparent"
	case Sprout:
		return "sprout"
	case Sapling:
		return "sapling"
	case Orchard:
		return "orchard"
	case Unified:
		return "unified"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Pool returns the value pool an address of this kind receives into.
// Unified addresses span several pools and report false.
func (k Kind) Pool() (Pool, bool) {
	switch k {
	case Transparent:
		return PoolTransparent, true
	case Sprout:
		return PoolSprout, true
	case Sapling:
		return PoolSapling, true
	case Orchard:
		return PoolOrchard, true
	default:
		return 0, false
	}
}

// Pool is a value pool with its own note and nullifier scheme.
type Pool uint8

const (
	PoolTransparent Pool = iota + 1
	// PoolSprout is the legacy shielded pool.
	PoolSprout
	// PoolSapling is the first-generation shielded pool.
	PoolSapling
	// PoolOrchard is the second-generation shielded pool.
	PoolOrchard
)

// ShieldedPools lists the pools that have nullifiers, in a fixed order.
var ShieldedPools = []Pool{PoolSprout, PoolSapling, PoolOrchard}

// String returns the pool name.
func (p Pool) String() string {
	switch p {
	case PoolTransparent:
		return "transparent"
	case PoolSprout:
		return "sprout"
	case PoolSapling:
		return "sapling"
	case PoolOrchard:
		return "orchard"
	default:
		return fmt.Sprintf("pool(%d)", uint8(p))
	}
}

// IsShielded reports whether the pool tracks nullifiers.
func (p Pool) IsShielded() bool {
	return p == PoolSprout || p == PoolSapling || p == PoolOrchard
}

// ParsePool is the inverse of Pool.String.
func ParsePool(s string) (Pool, error) {
	switch s {
	case "transparent":
		return PoolTransparent, nil
	case "sprout":
		return PoolSprout, nil
	case "sapling":
		return PoolSapling, nil
	case "orchard":
		return PoolOrchard, nil
	default:
		return 0, fmt.Errorf("unknown pool %q", s)
	}
}

// MarshalText encodes the pool by name.
func (p Pool) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a pool name.
func (p *Pool) UnmarshalText(text []byte) error {
	parsed, err := ParsePool(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ReceiverKind is a unified address receiver type. Values are the ZIP-316
// typecodes.
type ReceiverKind uint8

const (
	ReceiverP2PKH   ReceiverKind = 0x00
	ReceiverP2SH    ReceiverKind = 0x01
	ReceiverSapling ReceiverKind = 0x02
	ReceiverOrchard ReceiverKind = 0x03
)

var receiverKinds = []ReceiverKind{ReceiverP2PKH, ReceiverP2SH, ReceiverSapling, ReceiverOrchard}

// String returns the receiver kind name.
func (r ReceiverKind) String() string {
	switch r {
	case ReceiverP2PKH:
		return "p2pkh"
	case ReceiverP2SH:
		return "p2sh"
	case ReceiverSapling:
		return "sapling"
	case ReceiverOrchard:
		return "orchard"
	default:
		return fmt.Sprintf("receiver(%d)", uint8(r))
	}
}

// Kind returns the standalone address kind of a receiver.
func (r ReceiverKind) Kind() Kind {
	switch r {
	case ReceiverSapling:
		return Sapling
	case ReceiverOrchard:
		return Orchard
	default:
		return Transparent
	}
}

// ReceiverSet is a bit set of receiver kinds.
type ReceiverSet uint8

// NewReceiverSet builds a set from kinds.
func NewReceiverSet(kinds ...ReceiverKind) ReceiverSet {
	var s ReceiverSet
	for _, k := range kinds {
		s = s.Add(k)
	}
	return s
}

// Add returns s with k included.
func (s ReceiverSet) Add(k ReceiverKind) ReceiverSet {
	return s | 1<<k
}

// Has reports whether k is in the set.
func (s ReceiverSet) Has(k ReceiverKind) bool {
	return s&(1<<k) != 0
}

// Kinds returns the members in typecode order.
func (s ReceiverSet) Kinds() []ReceiverKind {
	var out []ReceiverKind
	for _, k := range receiverKinds {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// String joins member names with '+', or returns "none".
func (s ReceiverSet) String() string {
	kinds := s.Kinds()
	if len(kinds) == 0 {
		return "none"
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, "+")
}

// ParseReceiverSet is the inverse of ReceiverSet.String.
func ParseReceiverSet(s string) (ReceiverSet, error) {
	if s == "none" {
		return 0, nil
	}
	var set ReceiverSet
	for _, name := range strings.Split(s, "+") {
		found := false
		for _, k := range receiverKinds {
			if k.String() == name {
				set = set.Add(k)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown receiver kind %q", name)
		}
	}
	return set, nil
}
