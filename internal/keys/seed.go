package keys

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dchest/blake2b"
	"github.com/tyler-smith/go-bip39"

	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// ErrInvalidMnemonic is returned for a mnemonic that fails BIP-39 checks.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

const seedFingerprintPerson = "Zcash_HD_Seed_FP"

// SeedMaterial is the wallet's HD seed: a BIP-39 mnemonic phrase for
// unified accounts and, in older wallets, a raw legacy HD seed.
type SeedMaterial struct {
	Mnemonic   string `json:"mnemonic,omitempty"`
	Language   string `json:"language,omitempty"`
	LegacySeed []byte `json:"legacy_seed,omitempty"`
}

// NewSeedMaterial validates mnemonic and preserves both inputs verbatim.
// Either may be empty.
func NewSeedMaterial(mnemonic, language string, legacySeed []byte) (SeedMaterial, error) {
	if mnemonic != "" && !bip39.IsMnemonicValid(normalizeMnemonic(mnemonic)) {
		return SeedMaterial{}, ErrInvalidMnemonic
	}
	return SeedMaterial{
		Mnemonic:   mnemonic,
		Language:   language,
		LegacySeed: bytes.Clone(legacySeed),
	}, nil
}

// IsEmpty reports whether no seed is present.
func (s SeedMaterial) IsEmpty() bool {
	return s.Mnemonic == "" && len(s.LegacySeed) == 0
}

// Seed returns the BIP-39 seed of the mnemonic with an empty passphrase.
func (s SeedMaterial) Seed() ([]byte, error) {
	if s.Mnemonic == "" {
		return nil, fmt.Errorf("%w: no mnemonic", ErrInvalidMnemonic)
	}
	seed, err := bip39.NewSeedWithErrorChecking(normalizeMnemonic(s.Mnemonic), "")
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}

// Fingerprint returns the ZIP-32 seed fingerprint of the mnemonic seed,
// the value unified account metadata records.
func (s SeedMaterial) Fingerprint() (types.Hash, error) {
	seed, err := s.Seed()
	if err != nil {
		return types.Hash{}, err
	}
	defer clear(seed)
	return SeedFingerprint(seed)
}

// SeedFingerprint computes BLAKE2b-256("Zcash_HD_Seed_FP", len(seed) || seed).
func SeedFingerprint(seed []byte) (types.Hash, error) {
	if len(seed) < 32 || len(seed) > 252 {
		return types.Hash{}, fmt.Errorf("seed length %d out of range", len(seed))
	}
	h, err := blake2b.New(&blake2b.Config{Size: types.HashSize, Person: []byte(seedFingerprintPerson)})
	if err != nil {
		return types.Hash{}, err
	}
	h.Write([]byte{byte(len(seed))})
	h.Write(seed)
	var fp types.Hash
	copy(fp[:], h.Sum(nil))
	return fp, nil
}

func normalizeMnemonic(m string) string {
	return strings.Join(strings.Fields(m), " ")
}
