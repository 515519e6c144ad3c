package types

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Bech32Variant selects the checksum constant.
type Bech32Variant uint8

const (
	// Bech32 is the BIP-173 checksum (Sapling addresses).
	Bech32 Bech32Variant = iota
	// Bech32m is the BIP-350 checksum (unified addresses).
	Bech32m
)

// String returns the variant name.
func (v Bech32Variant) String() string {
	if v == Bech32m {
		return "bech32m"
	}
	return "bech32"
}

// Bech32Encode encodes a human-readable part and data bytes. Unlike BIP-173
// there is no 90 character limit; unified addresses exceed it.
func Bech32Encode(hrp string, data []byte, variant Bech32Variant) (string, error) {
	if len(hrp) == 0 {
		return "", fmt.Errorf("bech32: empty HRP")
	}
	for _, c := range hrp {
		if c < 33 || c > 126 {
			return "", fmt.Errorf("bech32: invalid HRP character %q", c)
		}
	}

	conv, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("bech32: convert bits: %w", err)
	}
	if variant == Bech32m {
		return bech32.EncodeM(hrp, conv)
	}
	return bech32.Encode(hrp, conv)
}

// Bech32Decode decodes a bech32 or bech32m string of any length into the
// human-readable part and data bytes, reporting which checksum matched.
func Bech32Decode(s string) (string, []byte, Bech32Variant, error) {
	hrp, data5, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return "", nil, 0, fmt.Errorf("bech32: %w", err)
	}

	// DecodeNoLimit accepts either checksum; re-encoding tells which.
	variant := Bech32m
	if plain, err := bech32.Encode(hrp, data5); err == nil && plain == strings.ToLower(s) {
		variant = Bech32
	}

	data8, err := bech32.ConvertBits(data5, 5, 8, false)
	if err != nil {
		return "", nil, 0, fmt.Errorf("bech32: convert bits: %w", err)
	}
	return hrp, data8, variant, nil
}
