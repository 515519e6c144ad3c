package address

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/zmigrate/pkg/types"
)

var (
	// ErrUnknownAddress is returned for strings that are not a known
	// address encoding.
	ErrUnknownAddress = errors.New("unknown address encoding")
	// ErrInvalidAddress is returned for malformed addresses of a known kind.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrWrongNetwork is returned for valid addresses of another network.
	ErrWrongNetwork = errors.New("address for another network")
	// ErrUnsupported is returned for address kinds the migration does not
	// handle (TEX addresses).
	ErrUnsupported = errors.New("unsupported address kind")
)

// Classify detects the kind of an encoded address.
func Classify(s string, net types.Network) (Kind, error) {
	id, err := FromString(s, net)
	if err != nil {
		return 0, err
	}
	return id.kind, nil
}

// FromString parses an encoded address into an ID, validating its encoding
// against net.
func FromString(s string, net types.Network) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, ErrUnknownAddress
	}

	if b58, err := decodeBase58(s, net); err == nil {
		if b58.kind == Sprout {
			return NewSprout(s), nil
		}
		return NewTransparent(s), nil
	} else if !errors.Is(err, ErrUnknownAddress) {
		return ID{}, err
	}

	hrp, data, variant, err := types.Bech32Decode(s)
	if err != nil {
		return ID{}, ErrUnknownAddress
	}
	p := paramsFor(net)
	switch hrp {
	case p.saplingHRP:
		if variant != types.Bech32 || len(data) != ShieldedReceiverSize {
			return ID{}, fmt.Errorf("%w: sapling address %q", ErrInvalidAddress, s)
		}
		return NewSapling(strings.ToLower(s)), nil
	case p.unifiedHRP:
		if variant != types.Bech32m {
			return ID{}, fmt.Errorf("%w: unified address must use bech32m", ErrInvalidAddress)
		}
		ua, err := decodeUnifiedPayload(hrp, data)
		if err != nil {
			return ID{}, err
		}
		return NewUnified(strings.ToLower(s), ua.Set()), nil
	case p.texHRP:
		return ID{}, fmt.Errorf("%w: tex address %q", ErrUnsupported, s)
	}
	if other, ok := networkForHRP(hrp); ok {
		return ID{}, fmt.Errorf("%w: %s address on %s", ErrWrongNetwork, other, net)
	}
	return ID{}, ErrUnknownAddress
}

// EncodeSapling renders a raw Sapling receiver as an address.
func EncodeSapling(raw []byte, net types.Network) (string, error) {
	if len(raw) != ShieldedReceiverSize {
		return "", fmt.Errorf("%w: sapling receiver must be %d bytes, got %d", ErrInvalidAddress, ShieldedReceiverSize, len(raw))
	}
	return types.Bech32Encode(paramsFor(net).saplingHRP, raw, types.Bech32)
}

// FromReceiver renders one raw receiver as the standalone ID it is known
// by elsewhere in the wallet.
func FromReceiver(kind ReceiverKind, raw []byte, net types.Network) (ID, error) {
	switch kind {
	case ReceiverP2PKH:
		s, err := EncodeP2PKH(raw, net)
		if err != nil {
			return ID{}, err
		}
		return NewTransparent(s), nil
	case ReceiverP2SH:
		s, err := EncodeP2SH(raw, net)
		if err != nil {
			return ID{}, err
		}
		return NewTransparent(s), nil
	case ReceiverSapling:
		s, err := EncodeSapling(raw, net)
		if err != nil {
			return ID{}, err
		}
		return NewSapling(s), nil
	case ReceiverOrchard:
		s, err := EncodeUnified(UnifiedAddress{
			Receivers: map[ReceiverKind][]byte{ReceiverOrchard: raw},
		}, net)
		if err != nil {
			return ID{}, err
		}
		return NewOrchard(s), nil
	default:
		return ID{}, fmt.Errorf("%w: receiver kind %d", ErrUnsupported, kind)
	}
}

// ReceiverIDs expands a rendered unified address into the standalone IDs
// of its receivers, in typecode order. Derivation-only IDs and non-unified
// IDs yield nil.
func ReceiverIDs(id ID, net types.Network) ([]ID, error) {
	if id.kind != Unified || id.IsDerivation() {
		return nil, nil
	}
	ua, err := DecodeUnified(id.addr, net)
	if err != nil {
		return nil, err
	}
	out := make([]ID, 0, len(ua.Receivers))
	for _, k := range ua.Set().Kinds() {
		rid, err := FromReceiver(k, ua.Receivers[k], net)
		if err != nil {
			return nil, err
		}
		out = append(out, rid)
	}
	return out, nil
}
