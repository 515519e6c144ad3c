package keys

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tyler-smith/go-bip32"
)

// Path levels and purposes.
const (
	PurposeBIP44 = bip32.FirstHardenedChild + 44
	PurposeZIP32 = bip32.FirstHardenedChild + 32

	// ChangeExternal is the receiving chain.
	ChangeExternal = 0
	// ChangeInternal is the change chain.
	ChangeInternal = 1
)

// KeyPath is a parsed HD derivation path such as "m/44'/133'/0'/1/7".
// Hardened components carry bip32.FirstHardenedChild.
type KeyPath []uint32

// ParseKeyPath parses "m/..." with ' or h marking hardened components.
func ParseKeyPath(s string) (KeyPath, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("key path %q: must start with m", s)
	}
	path := make(KeyPath, 0, len(parts)-1)
	for _, p := range parts[1:] {
		hardened := strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h")
		if hardened {
			p = p[:len(p)-1]
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil || n >= uint64(bip32.FirstHardenedChild) {
			return nil, fmt.Errorf("key path %q: bad component %q", s, p)
		}
		idx := uint32(n)
		if hardened {
			idx += bip32.FirstHardenedChild
		}
		path = append(path, idx)
	}
	return path, nil
}

// String renders the path with ' for hardened components.
func (p KeyPath) String() string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, c := range p {
		sb.WriteByte('/')
		if c >= bip32.FirstHardenedChild {
			sb.WriteString(strconv.FormatUint(uint64(c-bip32.FirstHardenedChild), 10))
			sb.WriteByte('\'')
			continue
		}
		sb.WriteString(strconv.FormatUint(uint64(c), 10))
	}
	return sb.String()
}

// IsInternal reports whether the path is on a BIP-44 change chain.
func (p KeyPath) IsInternal() bool {
	return len(p) >= 4 && p[0] == PurposeBIP44 && p[3] == ChangeInternal
}

// Account returns the hardened account index of a BIP-44 or ZIP-32 path.
func (p KeyPath) Account() (uint32, bool) {
	if len(p) < 3 || (p[0] != PurposeBIP44 && p[0] != PurposeZIP32) {
		return 0, false
	}
	if p[2] < bip32.FirstHardenedChild {
		return 0, false
	}
	return p[2] - bip32.FirstHardenedChild, true
}

// CoinType returns the unhardened coin type of a BIP-44 or ZIP-32 path.
func (p KeyPath) CoinType() (uint32, bool) {
	if len(p) < 2 || (p[0] != PurposeBIP44 && p[0] != PurposeZIP32) || p[1] < bip32.FirstHardenedChild {
		return 0, false
	}
	return p[1] - bip32.FirstHardenedChild, true
}
