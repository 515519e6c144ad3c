package address

import "github.com/Klingon-tech/zmigrate/pkg/types"

// params holds the per-network encoding constants.
type params struct {
	p2pkh      [2]byte
	p2sh       [2]byte
	sprout     [2]byte
	saplingHRP string
	unifiedHRP string
	texHRP     string
}

var (
	mainnetParams = params{
		p2pkh:      [2]byte{0x1c, 0xb8},
		p2sh:       [2]byte{0x1c, 0xbd},
		sprout:     [2]byte{0x16, 0x9a},
		saplingHRP: "zs",
		unifiedHRP: "u",
		texHRP:     "tex",
	}
	testnetParams = params{
		p2pkh:      [2]byte{0x1d, 0x25},
		p2sh:       [2]byte{0x1c, 0xba},
		sprout:     [2]byte{0x16, 0xb6},
		saplingHRP: "ztestsapling",
		unifiedHRP: "utest",
		texHRP:     "textest",
	}
	regtestParams = params{
		p2pkh:      [2]byte{0x1d, 0x25},
		p2sh:       [2]byte{0x1c, 0xba},
		sprout:     [2]byte{0x16, 0xb6},
		saplingHRP: "zregtestsapling",
		unifiedHRP: "uregtest",
		texHRP:     "texregtest",
	}
)

func paramsFor(net types.Network) params {
	switch net {
	case types.Testnet:
		return testnetParams
	case types.Regtest:
		return regtestParams
	default:
		return mainnetParams
	}
}

// networkForHRP reports which network a bech32 prefix belongs to, if any.
func networkForHRP(hrp string) (types.Network, bool) {
	for _, net := range []types.Network{types.Mainnet, types.Testnet, types.Regtest} {
		p := paramsFor(net)
		if hrp == p.saplingHRP || hrp == p.unifiedHRP || hrp == p.texHRP {
			return net, true
		}
	}
	return 0, false
}
