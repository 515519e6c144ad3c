// derive_address.go prints the pubkey and transparent address for a
// hex-encoded private key file, for building test wallet exports.
// Usage: go run scripts/derive_address.go <keyfile> [mainnet|testnet|regtest]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/pkg/crypto"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_address <keyfile> [network]")
		os.Exit(1)
	}
	net := types.Mainnet
	if len(os.Args) > 2 {
		var err error
		if net, err = types.ParseNetwork(os.Args[2]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(keyBytes) != 32 {
		fmt.Fprintln(os.Stderr, "key file must hold 32 hex-encoded bytes")
		os.Exit(1)
	}
	pub := secp256k1.PrivKeyFromBytes(keyBytes).PubKey().SerializeCompressed()
	addr, err := address.EncodeP2PKH(crypto.Hash160(pub), net)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(pub))
	fmt.Printf("address=%s\n", addr)
}
