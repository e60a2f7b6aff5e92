// Package cluster provides the cluster registry: the persisted, ordered list
// of known Solana RPC endpoints and the single active one that every outgoing
// client call uses.
package cluster

import (
	"fmt"
	"net/url"
	"strings"
)

// Cluster is a named network endpoint configuration.
type Cluster struct {
	// Name is the unique key of the cluster within the registry (required).
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Network is the well-known network this endpoint serves, or NetworkCustom.
	Network Network `json:"network" yaml:"network" mapstructure:"network"`

	// Endpoint is the JSON-RPC URL (required, http or https).
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// Active is derived by the registry on read and is never persisted.
	Active bool `json:"active" yaml:"active" mapstructure:"-"`
}

// Validate checks the cluster for a non-empty name and a usable endpoint.
// A missing network is normalized to NetworkCustom rather than rejected.
func (c *Cluster) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}

	if err := ValidateEndpoint(c.Endpoint); err != nil {
		return fmt.Errorf("cluster %s: %w", c.Name, err)
	}

	if c.Network == "" {
		c.Network = NetworkCustom
	}
	if !c.Network.Valid() {
		return fmt.Errorf("cluster %s: %w %q", c.Name, ErrInvalidNetwork, c.Network)
	}

	return nil
}

// ValidateEndpoint checks that endpoint is an absolute http(s) URL with a host,
// which is what an RPC connection needs before it can be constructed.
func ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidEndpoint)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidEndpoint, endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, endpoint)
	}

	return nil
}
