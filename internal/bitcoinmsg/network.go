// Package bitcoinmsg provides the low-level primitives shared by the proxy's
// Bitcoin P2P message framer: network magic values, the double-SHA-256
// checksum, a 32-byte hash formatter, and a buffer-oriented varint reader.
package bitcoinmsg

import (
	"github.com/pkg/errors"
)

// Magic is the 4-byte tag that opens every Bitcoin P2P frame.
type Magic [4]byte

// Network identifies which Bitcoin network a proxy instance expects.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Signet  Network = "signet"
	Regtest Network = "regtest"
)

var magics = map[Network]Magic{
	Mainnet: {0xF9, 0xBE, 0xB4, 0xD9},
	Testnet: {0x0B, 0x11, 0x09, 0x07},
	Signet:  {0x0A, 0x03, 0xCF, 0x40},
	Regtest: {0xFA, 0xBF, 0xB5, 0xDA},
}

// ErrUnknownNetwork is returned by MagicFor when given a network name outside
// the four recognized values.
var ErrUnknownNetwork = errors.New("unknown network")

// MagicFor returns the 4-byte magic for a configured network name.
func MagicFor(network Network) (Magic, error) {
	magic, exists := magics[network]
	if !exists {
		return Magic{}, errors.Wrap(ErrUnknownNetwork, string(network))
	}
	return magic, nil
}
