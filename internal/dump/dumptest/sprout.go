package dumptest

import (
	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// encodeSprout renders a 64-byte Sprout payment address.
func encodeSprout(payload []byte, net types.Network) string {
	prefix := [2]byte{0x16, 0x9a}
	if net != types.Mainnet {
		prefix = [2]byte{0x16, 0xb6}
	}
	return base58.CheckEncode(append([]byte{prefix[1]}, payload...), prefix[0])
}
