package cluster

import (
	"fmt"
	"strings"
)

// Network identifies which Solana network a cluster belongs to.
// NetworkCustom is an explicit variant for user-defined endpoints; a
// Network is never empty once it has been normalized.
type Network string

const (
	// NetworkMainnet is mainnet-beta.
	NetworkMainnet Network = "mainnet-beta"

	// NetworkTestnet is the public testnet.
	NetworkTestnet Network = "testnet"

	// NetworkDevnet is the public devnet.
	NetworkDevnet Network = "devnet"

	// NetworkCustom is any endpoint that is not one of the well-known networks.
	NetworkCustom Network = "custom"
)

// Networks lists every network variant in display order.
var Networks = []Network{NetworkDevnet, NetworkTestnet, NetworkMainnet, NetworkCustom}

// ParseNetwork converts user input into a Network.
// Empty input maps to NetworkCustom, mirroring records that were saved
// without a network. "mainnet" is accepted as an alias for mainnet-beta.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(NetworkCustom):
		return NetworkCustom, nil
	case string(NetworkDevnet):
		return NetworkDevnet, nil
	case string(NetworkTestnet):
		return NetworkTestnet, nil
	case string(NetworkMainnet), "mainnet":
		return NetworkMainnet, nil
	default:
		return "", fmt.Errorf("%w %q: must be one of devnet, testnet, mainnet-beta, custom", ErrInvalidNetwork, s)
	}
}

// Valid reports whether n is one of the known variants.
func (n Network) Valid() bool {
	switch n {
	case NetworkDevnet, NetworkTestnet, NetworkMainnet, NetworkCustom:
		return true
	}
	return false
}

// String returns the wire name of the network.
func (n Network) String() string {
	if n == "" {
		return string(NetworkCustom)
	}
	return string(n)
}

// UnmarshalText normalizes the network on decode so a missing value becomes NetworkCustom.
func (n *Network) UnmarshalText(text []byte) error {
	parsed, err := ParseNetwork(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// MarshalText always writes a concrete variant.
func (n Network) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}
