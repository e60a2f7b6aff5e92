package cluster

import "github.com/gagliardetto/solana-go/rpc"

// Defaults returns the bootstrap cluster set seeded on first run.
// The first entry is the one activated.
func Defaults() []Cluster {
	return []Cluster{
		{Name: "Devnet", Network: NetworkDevnet, Endpoint: rpc.DevNet.RPC},
		{Name: "Testnet", Network: NetworkTestnet, Endpoint: rpc.TestNet.RPC},
		{Name: "Mainnet", Network: NetworkMainnet, Endpoint: rpc.MainNetBeta.RPC},
	}
}
