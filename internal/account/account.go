// Package account defines account identities and the metadata that ties
// unified addresses to their HD accounts.
package account

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/pkg/crypto"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Domain tags for account id derivation.
const (
	tagUnified      = "zmigrate/account/unified"
	tagLegacyKey    = "zmigrate/account/legacy-key"
	tagLegacyGroup  = "zmigrate/account/legacy-group"
	tagLegacySingle = "zmigrate/account/legacy-single"
)

// Family distinguishes HD unified accounts from standalone legacy keys.
type Family uint8

const (
	Legacy Family = iota + 1
	Unified
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case Legacy:
		return "legacy"
	case Unified:
		return "unified"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// Key is the stable identity of an account. It is comparable and ordered.
type Key struct {
	family Family
	id     types.Hash
}

// Family returns the account family.
func (k Key) Family() Family { return k.family }

// ID returns the 32-byte account id.
func (k Key) ID() types.Hash { return k.id }

// IsZero reports whether k is the zero value.
func (k Key) IsZero() bool { return k == Key{} }

// String renders "<family>:<hex id>".
func (k Key) String() string {
	return k.family.String() + ":" + k.id.String()
}

// Short renders the family and the first id bytes, for logs.
func (k Key) Short() string {
	return k.family.String() + ":" + k.id.Short()
}

// Compare orders keys by family, then id.
func (k Key) Compare(o Key) int {
	if k.family != o.family {
		if k.family < o.family {
			return -1
		}
		return 1
	}
	return k.id.Compare(o.id)
}

// ParseKey is the inverse of String.
func ParseKey(s string) (Key, error) {
	fam, id, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("malformed account key %q", s)
	}
	h, err := types.HexToHash(id)
	if err != nil {
		return Key{}, fmt.Errorf("account key %q: %w", s, err)
	}
	switch fam {
	case "legacy":
		return Key{family: Legacy, id: h}, nil
	case "unified":
		return Key{family: Unified, id: h}, nil
	default:
		return Key{}, fmt.Errorf("account key %q: unknown family", s)
	}
}

// MarshalText encodes the key with String.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a key with ParseKey.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// LegacyKeyFor returns the legacy account owning a standalone key. material
// is the key's identity bytes (public key, viewing key) and kind names
// what they are, so equal bytes of different kinds never share an account.
func LegacyKeyFor(kind string, material []byte) Key {
	return Key{family: Legacy, id: crypto.TaggedHash(tagLegacyKey, []byte(kind), material)}
}

// LegacyGroupKey returns the legacy account for an explicit grouping label.
func LegacyGroupKey(group string) Key {
	return Key{family: Legacy, id: crypto.TaggedHash(tagLegacyGroup, []byte(group))}
}

// SingleLegacyKey returns the one legacy account used when all standalone
// keys are grouped together.
func SingleLegacyKey() Key {
	return Key{family: Legacy, id: crypto.TaggedHash(tagLegacySingle)}
}

// UnifiedAccountMetadata identifies one HD account of the wallet seed.
type UnifiedAccountMetadata struct {
	SeedFingerprint types.Hash `json:"seed_fingerprint"`
	CoinType        uint32     `json:"coin_type"`
	AccountIndex    uint32     `json:"account_index"`
	UFVKID          types.Hash `json:"ufvk_id"`
}

// Key derives the unified account key. Every field participates, so two
// accounts differing in any of them never collide.
func (m UnifiedAccountMetadata) Key() Key {
	var nums [8]byte
	binary.LittleEndian.PutUint32(nums[:4], m.CoinType)
	binary.LittleEndian.PutUint32(nums[4:], m.AccountIndex)
	return Key{
		family: Unified,
		id:     crypto.TaggedHash(tagUnified, m.SeedFingerprint[:], nums[:], m.UFVKID[:]),
	}
}

// UnifiedAddressMetadata records one diversified address of a unified
// account. Several records may share a UFVKID.
type UnifiedAddressMetadata struct {
	UFVKID           types.Hash
	DiversifierIndex [address.DiversifierSize]byte
	Receivers        address.ReceiverSet
}

// DerivationID returns the address identity used when the wallet holds no
// rendered string for this address.
func (m UnifiedAddressMetadata) DerivationID() address.ID {
	return address.NewUnifiedDerivation(m.UFVKID, m.DiversifierIndex, m.Receivers)
}

// DiversifierHex returns the diversifier index as hex.
func (m UnifiedAddressMetadata) DiversifierHex() string {
	return hex.EncodeToString(m.DiversifierIndex[:])
}

// Account is a migrated account.
type Account struct {
	Key     Key                     `json:"key"`
	Name    string                  `json:"name"`
	Unified *UnifiedAccountMetadata `json:"unified,omitempty"`
}

// NewUnified returns the account for unified metadata.
func NewUnified(m UnifiedAccountMetadata) Account {
	meta := m
	return Account{
		Key:     m.Key(),
		Name:    fmt.Sprintf("Account #%d", m.AccountIndex),
		Unified: &meta,
	}
}

// NewLegacy returns a legacy account. label, when set, names the account.
func NewLegacy(key Key, label string) Account {
	name := "Legacy " + key.id.Short()
	if label != "" {
		name = "Legacy " + label
	}
	return Account{Key: key, Name: name}
}
