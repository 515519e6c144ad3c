package types

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TxID identifies a transaction. It is stored in internal byte order and
// displayed byte-reversed, matching node RPC output.
type TxID chainhash.Hash

// TxIDFromString parses a display-order (reversed) transaction id.
func TxIDFromString(s string) (TxID, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return TxID{}, fmt.Errorf("invalid txid %q: %w", s, err)
	}
	if len(s) != chainhash.MaxHashStringSize {
		return TxID{}, fmt.Errorf("invalid txid %q: want %d hex chars", s, chainhash.MaxHashStringSize)
	}
	return TxID(*h), nil
}

// String returns the display-order hex id.
func (t TxID) String() string {
	return chainhash.Hash(t).String()
}

// IsZero returns true if the id is all zeros.
func (t TxID) IsZero() bool {
	return t == TxID{}
}

// Compare orders ids by their display form so sorted output reads naturally.
func (t TxID) Compare(o TxID) int {
	for i := HashSize - 1; i >= 0; i-- {
		switch {
		case t[i] < o[i]:
			return -1
		case t[i] > o[i]:
			return 1
		}
	}
	return 0
}

// MarshalJSON encodes the id in display order.
func (t TxID) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a display-order hex id.
func (t *TxID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := TxIDFromString(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalText lets TxID be used as a JSON map key.
func (t TxID) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (t *TxID) UnmarshalText(text []byte) error {
	parsed, err := TxIDFromString(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
