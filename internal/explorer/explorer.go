// Package explorer builds links into the public Solana block explorer for the
// active cluster.
package explorer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rbias/solboard/internal/cluster"
)

// DefaultBaseURL is the public Solana explorer.
const DefaultBaseURL = "https://explorer.solana.com"

var (
	// ErrUnsupportedNetwork is returned for a network missing from the link table.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrInvalidPath is returned for an explorer path that is not a relative URL.
	ErrInvalidPath = errors.New("invalid explorer path")
)

// clusterParams maps every network variant to the query the explorer expects.
// Mainnet is the explorer's default and needs no parameter; custom clusters
// pass their RPC URL so the explorer can talk to them directly.
var clusterParams = map[cluster.Network]func(c cluster.Cluster) url.Values{
	cluster.NetworkMainnet: func(cluster.Cluster) url.Values { return nil },
	cluster.NetworkDevnet: func(cluster.Cluster) url.Values {
		return url.Values{"cluster": {"devnet"}}
	},
	cluster.NetworkTestnet: func(cluster.Cluster) url.Values {
		return url.Values{"cluster": {"testnet"}}
	},
	cluster.NetworkCustom: func(c cluster.Cluster) url.Values {
		return url.Values{"cluster": {"custom"}, "customUrl": {c.Endpoint}}
	},
}

// Resolver builds explorer URLs against a base URL.
type Resolver struct {
	base *url.URL
}

// NewResolver creates a Resolver. An empty baseURL selects DefaultBaseURL.
func NewResolver(baseURL string) (*Resolver, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid explorer base URL %q", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return &Resolver{base: u}, nil
}

// Resolve returns the explorer link for path on the given cluster, for
// example "address/<pubkey>" or "tx/<signature>". A query or fragment on path
// is kept; the cluster parameters always win over ones already in the query.
func (r *Resolver) Resolve(c cluster.Cluster, path string) (string, error) {
	network := c.Network
	if network == "" {
		network = cluster.NetworkCustom
	}

	params, ok := clusterParams[network]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}

	// Rooting the path keeps a colon in the first segment from reading as a scheme.
	ref, err := url.Parse("/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidPath, path, err)
	}
	if ref.Host != "" || ref.User != nil {
		return "", fmt.Errorf("%w %q: must be relative", ErrInvalidPath, path)
	}

	link := *r.base
	link.Path = r.base.Path + ref.Path
	if ref.RawPath != "" {
		link.RawPath = r.base.EscapedPath() + ref.RawPath
	}

	query := ref.Query()
	for k, v := range params(c) {
		query[k] = v
	}
	link.RawQuery = query.Encode()
	link.Fragment = ref.Fragment
	return link.String(), nil
}

// AddressURL links to an account page.
func (r *Resolver) AddressURL(c cluster.Cluster, address string) (string, error) {
	return r.Resolve(c, "address/"+url.PathEscape(address))
}

// TxURL links to a transaction page.
func (r *Resolver) TxURL(c cluster.Cluster, signature string) (string, error) {
	return r.Resolve(c, "tx/"+url.PathEscape(signature))
}

// BlockURL links to a block page.
func (r *Resolver) BlockURL(c cluster.Cluster, slot uint64) (string, error) {
	return r.Resolve(c, fmt.Sprintf("block/%d", slot))
}
