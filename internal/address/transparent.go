package address

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/Klingon-tech/zmigrate/pkg/types"
)

const (
	hash160Size   = 20
	sproutPayload = 64
)

// EncodeP2PKH renders a pubkey hash as a transparent address.
func EncodeP2PKH(hash []byte, net types.Network) (string, error) {
	return encodeTwoByte(paramsFor(net).p2pkh, hash, hash160Size)
}

// EncodeP2SH renders a script hash as a transparent address.
func EncodeP2SH(hash []byte, net types.Network) (string, error) {
	return encodeTwoByte(paramsFor(net).p2sh, hash, hash160Size)
}

// encodeTwoByte emits base58check with a two-byte version prefix. base58
// CheckEncode takes a single version byte, so the second prefix byte is
// carried at the front of the payload.
func encodeTwoByte(prefix [2]byte, payload []byte, size int) (string, error) {
	if len(payload) != size {
		return "", fmt.Errorf("%w: payload must be %d bytes, got %d", ErrInvalidAddress, size, len(payload))
	}
	buf := make([]byte, 0, 1+len(payload))
	buf = append(buf, prefix[1])
	buf = append(buf, payload...)
	return base58.CheckEncode(buf, prefix[0]), nil
}

// base58Kind is the result of decoding a base58check address.
type base58Kind struct {
	kind    Kind
	script  bool
	payload []byte
}

// decodeBase58 decodes a transparent or Sprout address for net.
func decodeBase58(s string, net types.Network) (base58Kind, error) {
	body, version, err := base58.CheckDecode(s)
	if err != nil || len(body) < 1 {
		return base58Kind{}, ErrUnknownAddress
	}
	prefix := [2]byte{version, body[0]}
	payload := body[1:]

	p := paramsFor(net)
	switch {
	case prefix == p.p2pkh && len(payload) == hash160Size:
		return base58Kind{kind: Transparent, payload: payload}, nil
	case prefix == p.p2sh && len(payload) == hash160Size:
		return base58Kind{kind: Transparent, script: true, payload: payload}, nil
	case prefix == p.sprout && len(payload) == sproutPayload:
		return base58Kind{kind: Sprout, payload: payload}, nil
	}

	for _, other := range []types.Network{types.Mainnet, types.Testnet, types.Regtest} {
		op := paramsFor(other)
		if prefix == op.p2pkh || prefix == op.p2sh || prefix == op.sprout {
			return base58Kind{}, fmt.Errorf("%w: %s address on %s", ErrWrongNetwork, other, net)
		}
	}
	return base58Kind{}, ErrUnknownAddress
}
