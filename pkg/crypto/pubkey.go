package crypto

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Serialized secp256k1 public key lengths.
const (
	CompressedPubKeySize   = 33
	UncompressedPubKeySize = 65
)

// Hash160 returns RIPEMD160(SHA256(b)), the transparent address payload.
func Hash160(b []byte) []byte {
	return btcutil.Hash160(b)
}

// ParsePubKey validates a serialized secp256k1 public key and returns its
// compressed form.
func ParsePubKey(b []byte) ([]byte, error) {
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse pubkey: %w", err)
	}
	return pk.SerializeCompressed(), nil
}

// PubKeyFromScriptSig returns the last public key pushed by a P2PKH-style
// scriptSig, in the serialization it was pushed with. ok is false when no
// push is a valid key.
func PubKeyFromScriptSig(scriptSig []byte) (pubKey []byte, ok bool) {
	pushes, err := txscript.PushedData(scriptSig)
	if err != nil {
		return nil, false
	}
	for i := len(pushes) - 1; i >= 0; i-- {
		p := pushes[i]
		switch {
		case len(p) == CompressedPubKeySize && (p[0] == 0x02 || p[0] == 0x03):
		case len(p) == UncompressedPubKeySize && p[0] == 0x04:
		default:
			continue
		}
		if _, err := secp256k1.ParsePubKey(p); err != nil {
			continue
		}
		return p, true
	}
	return nil, false
}
