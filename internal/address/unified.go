package address

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/wire"
	"github.com/dchest/blake2b"

	"github.com/Klingon-tech/zmigrate/pkg/types"
)

const (
	// ShieldedReceiverSize is the raw size of a Sapling or Orchard receiver
	// (11-byte diversifier plus 32-byte transmission key).
	ShieldedReceiverSize = 43

	uaPaddingSize   = 16
	f4MinLen        = 48
	f4MaxLen        = 4194368
	f4HashLen       = 64
	f4PersonH       = "UA_F4Jumble_H"
	f4PersonG       = "UA_F4Jumble_G"
	maxReceiverSize = 1 << 16
)

// receiverSize is the fixed payload size of each known typecode.
var receiverSize = map[ReceiverKind]int{
	ReceiverP2PKH:   hash160Size,
	ReceiverP2SH:    hash160Size,
	ReceiverSapling: ShieldedReceiverSize,
	ReceiverOrchard: ShieldedReceiverSize,
}

// UnifiedAddress is a decoded unified address. Receivers of unknown
// typecodes are kept so the address re-encodes identically.
type UnifiedAddress struct {
	Receivers map[ReceiverKind][]byte
	Unknown   map[uint64][]byte
}

// Set returns the receiver kinds present.
func (u UnifiedAddress) Set() ReceiverSet {
	var s ReceiverSet
	for k := range u.Receivers {
		s = s.Add(k)
	}
	return s
}

// EncodeUnified renders receivers as a unified address for net.
func EncodeUnified(u UnifiedAddress, net types.Network) (string, error) {
	hrp := paramsFor(net).unifiedHRP

	type item struct {
		code uint64
		data []byte
	}
	var items []item
	for k, data := range u.Receivers {
		if want := receiverSize[k]; len(data) != want {
			return "", fmt.Errorf("%w: %s receiver must be %d bytes, got %d", ErrInvalidAddress, k, want, len(data))
		}
		items = append(items, item{uint64(k), data})
	}
	for code, data := range u.Unknown {
		items = append(items, item{code, data})
	}
	if len(items) == 0 {
		return "", fmt.Errorf("%w: unified address needs at least one receiver", ErrInvalidAddress)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].code < items[j].code })

	var buf bytes.Buffer
	for _, it := range items {
		if err := wire.WriteVarInt(&buf, 0, it.code); err != nil {
			return "", err
		}
		if err := wire.WriteVarInt(&buf, 0, uint64(len(it.data))); err != nil {
			return "", err
		}
		buf.Write(it.data)
	}
	buf.Write(hrpPadding(hrp))

	jumbled, err := f4Jumble(buf.Bytes())
	if err != nil {
		return "", err
	}
	return types.Bech32Encode(hrp, jumbled, types.Bech32m)
}

// DecodeUnified parses a unified address for net.
func DecodeUnified(s string, net types.Network) (UnifiedAddress, error) {
	hrp, data, variant, err := types.Bech32Decode(s)
	if err != nil {
		return UnifiedAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if variant != types.Bech32m {
		return UnifiedAddress{}, fmt.Errorf("%w: unified address must use bech32m", ErrInvalidAddress)
	}
	if want := paramsFor(net).unifiedHRP; hrp != want {
		if other, ok := networkForHRP(hrp); ok {
			return UnifiedAddress{}, fmt.Errorf("%w: %s address on %s", ErrWrongNetwork, other, net)
		}
		return UnifiedAddress{}, ErrUnknownAddress
	}
	return decodeUnifiedPayload(hrp, data)
}

func decodeUnifiedPayload(hrp string, data []byte) (UnifiedAddress, error) {
	raw, err := f4Unjumble(data)
	if err != nil {
		return UnifiedAddress{}, err
	}
	if len(raw) < uaPaddingSize || !bytes.Equal(raw[len(raw)-uaPaddingSize:], hrpPadding(hrp)) {
		return UnifiedAddress{}, fmt.Errorf("%w: bad unified address padding", ErrInvalidAddress)
	}
	r := bytes.NewReader(raw[:len(raw)-uaPaddingSize])

	ua := UnifiedAddress{Receivers: make(map[ReceiverKind][]byte)}
	var prev int64 = -1
	for r.Len() > 0 {
		code, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return UnifiedAddress{}, fmt.Errorf("%w: typecode: %v", ErrInvalidAddress, err)
		}
		size, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return UnifiedAddress{}, fmt.Errorf("%w: receiver length: %v", ErrInvalidAddress, err)
		}
		if int64(code) <= prev {
			return UnifiedAddress{}, fmt.Errorf("%w: receivers out of order", ErrInvalidAddress)
		}
		prev = int64(code)
		if size > maxReceiverSize || int(size) > r.Len() {
			return UnifiedAddress{}, fmt.Errorf("%w: receiver length %d", ErrInvalidAddress, size)
		}
		payload := make([]byte, size)
		if _, err := r.Read(payload); err != nil {
			return UnifiedAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}

		if code <= uint64(ReceiverOrchard) {
			kind := ReceiverKind(code)
			if want := receiverSize[kind]; len(payload) != want {
				return UnifiedAddress{}, fmt.Errorf("%w: %s receiver must be %d bytes, got %d", ErrInvalidAddress, kind, want, len(payload))
			}
			ua.Receivers[kind] = payload
			continue
		}
		if ua.Unknown == nil {
			ua.Unknown = make(map[uint64][]byte)
		}
		ua.Unknown[code] = payload
	}
	if len(ua.Receivers) == 0 && len(ua.Unknown) == 0 {
		return UnifiedAddress{}, fmt.Errorf("%w: no receivers", ErrInvalidAddress)
	}
	if ua.Receivers[ReceiverP2PKH] != nil && ua.Receivers[ReceiverP2SH] != nil {
		return UnifiedAddress{}, fmt.Errorf("%w: both p2pkh and p2sh receivers", ErrInvalidAddress)
	}
	return ua, nil
}

func hrpPadding(hrp string) []byte {
	pad := make([]byte, uaPaddingSize)
	copy(pad, hrp)
	return pad
}

// f4Jumble is the ZIP-316 unkeyed 4-round Feistel permutation.
func f4Jumble(m []byte) ([]byte, error) {
	if len(m) < f4MinLen || len(m) > f4MaxLen {
		return nil, fmt.Errorf("%w: f4jumble input length %d", ErrInvalidAddress, len(m))
	}
	lL := min(f4HashLen, len(m)/2)
	a := m[:lL]
	b := m[lL:]

	x, err := xorWith(b, func() ([]byte, error) { return f4G(0, a, len(b)) })
	if err != nil {
		return nil, err
	}
	y, err := xorWith(a, func() ([]byte, error) { return f4H(0, x, lL) })
	if err != nil {
		return nil, err
	}
	d, err := xorWith(x, func() ([]byte, error) { return f4G(1, y, len(b)) })
	if err != nil {
		return nil, err
	}
	c, err := xorWith(y, func() ([]byte, error) { return f4H(1, d, lL) })
	if err != nil {
		return nil, err
	}
	return append(c, d...), nil
}

// f4Unjumble inverts f4Jumble.
func f4Unjumble(m []byte) ([]byte, error) {
	if len(m) < f4MinLen || len(m) > f4MaxLen {
		return nil, fmt.Errorf("%w: f4jumble input length %d", ErrInvalidAddress, len(m))
	}
	lL := min(f4HashLen, len(m)/2)
	c := m[:lL]
	d := m[lL:]

	y, err := xorWith(c, func() ([]byte, error) { return f4H(1, d, lL) })
	if err != nil {
		return nil, err
	}
	x, err := xorWith(d, func() ([]byte, error) { return f4G(1, y, len(d)) })
	if err != nil {
		return nil, err
	}
	a, err := xorWith(y, func() ([]byte, error) { return f4H(0, x, lL) })
	if err != nil {
		return nil, err
	}
	b, err := xorWith(x, func() ([]byte, error) { return f4G(0, a, len(d)) })
	if err != nil {
		return nil, err
	}
	return append(a, b...), nil
}

func xorWith(v []byte, mask func() ([]byte, error)) ([]byte, error) {
	m, err := mask()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	for i := range v {
		out[i] = v[i] ^ m[i]
	}
	return out, nil
}

func f4H(i byte, u []byte, size int) ([]byte, error) {
	person := append([]byte(f4PersonH), i, 0, 0)
	h, err := blake2b.New(&blake2b.Config{Size: uint8(size), Person: person})
	if err != nil {
		return nil, fmt.Errorf("f4jumble H: %w", err)
	}
	h.Write(u)
	return h.Sum(nil), nil
}

func f4G(i byte, u []byte, size int) ([]byte, error) {
	out := make([]byte, 0, size+f4HashLen)
	for j := 0; len(out) < size; j++ {
		person := append([]byte(f4PersonG), i, byte(j), byte(j>>8))
		h, err := blake2b.New(&blake2b.Config{Size: f4HashLen, Person: person})
		if err != nil {
			return nil, fmt.Errorf("f4jumble G: %w", err)
		}
		h.Write(u)
		out = h.Sum(out)
	}
	return out[:size], nil
}
