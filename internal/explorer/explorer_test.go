package explorer

import (
	"errors"
	"testing"

	"github.com/rbias/solboard/internal/cluster"
)

func TestResolve(t *testing.T) {
	r, err := NewResolver("")
	if err != nil {
		t.Fatalf("NewResolver() failed: %v", err)
	}

	tests := []struct {
		name    string
		cluster cluster.Cluster
		path    string
		want    string
	}{
		{
			name:    "mainnet has no parameter",
			cluster: cluster.Cluster{Network: cluster.NetworkMainnet, Endpoint: "https://api.mainnet-beta.solana.com"},
			path:    "address/abc",
			want:    "https://explorer.solana.com/address/abc",
		},
		{
			name:    "devnet",
			cluster: cluster.Cluster{Network: cluster.NetworkDevnet, Endpoint: "https://api.devnet.solana.com"},
			path:    "tx/sig",
			want:    "https://explorer.solana.com/tx/sig?cluster=devnet",
		},
		{
			name:    "testnet with leading slash",
			cluster: cluster.Cluster{Network: cluster.NetworkTestnet, Endpoint: "https://api.testnet.solana.com"},
			path:    "/block/12",
			want:    "https://explorer.solana.com/block/12?cluster=testnet",
		},
		{
			name:    "custom encodes endpoint",
			cluster: cluster.Cluster{Network: cluster.NetworkCustom, Endpoint: "http://localhost:8899"},
			path:    "address/abc",
			want:    "https://explorer.solana.com/address/abc?cluster=custom&customUrl=http%3A%2F%2Flocalhost%3A8899",
		},
		{
			name:    "empty network treated as custom",
			cluster: cluster.Cluster{Endpoint: "http://127.0.0.1:8899"},
			path:    "",
			want:    "https://explorer.solana.com/?cluster=custom&customUrl=http%3A%2F%2F127.0.0.1%3A8899",
		},
		{
			name:    "existing query is merged",
			cluster: cluster.Cluster{Network: cluster.NetworkDevnet},
			path:    "address/abc?tab=tokens",
			want:    "https://explorer.solana.com/address/abc?cluster=devnet&tab=tokens",
		},
		{
			name:    "fragment stays after the query",
			cluster: cluster.Cluster{Network: cluster.NetworkDevnet},
			path:    "tx/abc#logs",
			want:    "https://explorer.solana.com/tx/abc?cluster=devnet#logs",
		},
		{
			name:    "cluster in path query is overridden",
			cluster: cluster.Cluster{Network: cluster.NetworkTestnet},
			path:    "tx/abc?cluster=mainnet-beta",
			want:    "https://explorer.solana.com/tx/abc?cluster=testnet",
		},
		{
			name:    "mainnet keeps path query",
			cluster: cluster.Cluster{Network: cluster.NetworkMainnet},
			path:    "address/abc?tab=tokens#top",
			want:    "https://explorer.solana.com/address/abc?tab=tokens#top",
		},
		{
			name:    "spaces are escaped",
			cluster: cluster.Cluster{Network: cluster.NetworkMainnet},
			path:    "address/a b",
			want:    "https://explorer.solana.com/address/a%20b",
		},
		{
			name:    "double leading slash is not a host",
			cluster: cluster.Cluster{Network: cluster.NetworkMainnet},
			path:    "//evil.example.com/x",
			want:    "https://explorer.solana.com/evil.example.com/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.cluster, tt.path)
			if err != nil {
				t.Fatalf("Resolve() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveUnsupportedNetwork(t *testing.T) {
	r, _ := NewResolver("")
	_, err := r.Resolve(cluster.Cluster{Network: "moonnet"}, "address/x")
	if !errors.Is(err, ErrUnsupportedNetwork) {
		t.Fatalf("Resolve() error = %v, want ErrUnsupportedNetwork", err)
	}
}

func TestResolveInvalidPath(t *testing.T) {
	r, _ := NewResolver("")
	_, err := r.Resolve(cluster.Cluster{Network: cluster.NetworkDevnet}, "address/%zz")
	if !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("Resolve() error = %v, want ErrInvalidPath", err)
	}
}

func TestResolveBaseURLWithPath(t *testing.T) {
	r, err := NewResolver("https://example.com/explorer/")
	if err != nil {
		t.Fatalf("NewResolver() failed: %v", err)
	}
	got, err := r.Resolve(cluster.Cluster{Network: cluster.NetworkDevnet}, "tx/abc#logs")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if want := "https://example.com/explorer/tx/abc?cluster=devnet#logs"; got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestEveryNetworkHasAnEntry(t *testing.T) {
	for _, n := range cluster.Networks {
		if _, ok := clusterParams[n]; !ok {
			t.Errorf("network %q missing from explorer table", n)
		}
	}
}

func TestNewResolverBaseURL(t *testing.T) {
	r, err := NewResolver("https://explorer.example.com/")
	if err != nil {
		t.Fatalf("NewResolver() failed: %v", err)
	}
	got, _ := r.AddressURL(cluster.Cluster{Network: cluster.NetworkDevnet}, "abc")
	if got != "https://explorer.example.com/address/abc?cluster=devnet" {
		t.Errorf("AddressURL() = %q", got)
	}

	for _, bad := range []string{"not a url", "/relative", "http://"} {
		if _, err := NewResolver(bad); err == nil {
			t.Errorf("NewResolver(%q) expected error", bad)
		}
	}
}

func TestHelpers(t *testing.T) {
	r, _ := NewResolver("")
	main := cluster.Cluster{Network: cluster.NetworkMainnet}

	tx, _ := r.TxURL(main, "5sig")
	if tx != "https://explorer.solana.com/tx/5sig" {
		t.Errorf("TxURL() = %q", tx)
	}
	block, _ := r.BlockURL(main, 42)
	if block != "https://explorer.solana.com/block/42" {
		t.Errorf("BlockURL() = %q", block)
	}
}
