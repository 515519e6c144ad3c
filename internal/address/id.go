package address

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// DiversifierSize is the length of a diversifier index.
const DiversifierSize = 11

// derivationPrefix marks a unified address known only by its derivation.
const derivationPrefix = "ufvk:"

// ID identifies one address. It is comparable and usable as a map key;
// two IDs are equal when kind, rendered string and receiver set match.
// For unified IDs the receiver set is fixed by the rendered string, so
// identity reduces to kind plus string.
type ID struct {
	kind      Kind
	addr      string
	receivers ReceiverSet
}

// NewTransparent returns the ID of a P2PKH or P2SH address.
func NewTransparent(addr string) ID {
	return ID{kind: Transparent, addr: addr}
}

// NewSprout returns the ID of a Sprout address.
func NewSprout(addr string) ID {
	return ID{kind: Sprout, addr: addr}
}

// NewSapling returns the ID of a Sapling address.
func NewSapling(addr string) ID {
	return ID{kind: Sapling, addr: addr}
}

// NewOrchard returns the ID of an Orchard receiver. Orchard receivers have
// no standalone encoding; addr is the receiver rendered as an Orchard-only
// unified address (see FromReceiver).
func NewOrchard(addr string) ID {
	return ID{kind: Orchard, addr: addr}
}

// NewUnified returns the ID of a rendered unified address.
func NewUnified(addr string, receivers ReceiverSet) ID {
	return ID{kind: Unified, addr: addr, receivers: receivers}
}

// NewUnifiedDerivation returns the ID of a unified address that the wallet
// records only as (viewing key, diversifier index).
func NewUnifiedDerivation(ufvkID types.Hash, diversifier [DiversifierSize]byte, receivers ReceiverSet) ID {
	addr := derivationPrefix + ufvkID.String() + "/" + hex.EncodeToString(diversifier[:])
	return ID{kind: Unified, addr: addr, receivers: receivers}
}

// Kind returns the address form.
func (id ID) Kind() Kind { return id.kind }

// Addr returns the rendered address string.
func (id ID) Addr() string { return id.addr }

// Receivers returns the receiver kinds of a unified address.
func (id ID) Receivers() ReceiverSet { return id.receivers }

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == ID{} }

// IsDerivation reports whether id is a unified address without a rendered
// string.
func (id ID) IsDerivation() bool {
	return id.kind == Unified && strings.HasPrefix(id.addr, derivationPrefix)
}

// Pool returns the pool of a single-pool address.
func (id ID) Pool() (Pool, bool) {
	return id.kind.Pool()
}

func kindPrefix(k Kind) string {
	switch k {
	case Transparent:
		return "t"
	case Sprout:
		return "sprout"
	case Sapling:
		return "zs"
	case Orchard:
		return "o"
	case Unified:
		return "u"
	default:
		return "?"
	}
}

// String renders the ID as "<prefix>:<address>", or
// "u:<receivers>:<address>" for unified addresses.
func (id ID) String() string {
	if id.kind == Unified {
		return "u:" + id.receivers.String() + ":" + id.addr
	}
	return kindPrefix(id.kind) + ":" + id.addr
}

// ParseID is the inverse of String.
func ParseID(s string) (ID, error) {
	prefix, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return ID{}, fmt.Errorf("%w: malformed id %q", ErrInvalidAddress, s)
	}
	switch prefix {
	case "t":
		return NewTransparent(rest), nil
	case "sprout":
		return NewSprout(rest), nil
	case "zs":
		return NewSapling(rest), nil
	case "o":
		return NewOrchard(rest), nil
	case "u":
		set, addr, ok := strings.Cut(rest, ":")
		if !ok || addr == "" {
			return ID{}, fmt.Errorf("%w: malformed unified id %q", ErrInvalidAddress, s)
		}
		receivers, err := ParseReceiverSet(set)
		if err != nil {
			return ID{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return NewUnified(addr, receivers), nil
	default:
		return ID{}, fmt.Errorf("%w: unknown id prefix %q", ErrInvalidAddress, prefix)
	}
}

// Compare gives a total order: by kind, then string, then receivers.
func (id ID) Compare(o ID) int {
	switch {
	case id.kind != o.kind:
		if id.kind < o.kind {
			return -1
		}
		return 1
	case id.addr != o.addr:
		return strings.Compare(id.addr, o.addr)
	case id.receivers != o.receivers:
		if id.receivers < o.receivers {
			return -1
		}
		return 1
	}
	return 0
}

// MarshalText encodes the ID with String.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes an ID with ParseID.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
