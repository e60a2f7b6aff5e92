package mcpserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/probe"
)

// ClusterInfo is a cluster as reported by the tools.
type ClusterInfo struct {
	Name        string `json:"name" jsonschema:"unique cluster name"`
	Network     string `json:"network" jsonschema:"devnet, testnet, mainnet-beta or custom"`
	Endpoint    string `json:"endpoint" jsonschema:"JSON-RPC URL"`
	Active      bool   `json:"active" jsonschema:"whether this is the active cluster"`
	ExplorerURL string `json:"explorerUrl,omitempty" jsonschema:"explorer home for this cluster"`
}

type ListClustersInput struct{}

type ListClustersOutput struct {
	Clusters   []ClusterInfo `json:"clusters"`
	ActiveName string        `json:"activeName"`
}

type SelectClusterInput struct {
	Name string `json:"name" jsonschema:"name of the cluster to activate"`
}

type AddClusterInput struct {
	Name     string `json:"name" jsonschema:"unique cluster name"`
	Network  string `json:"network,omitempty" jsonschema:"devnet, testnet, mainnet-beta or custom (default custom)"`
	Endpoint string `json:"endpoint" jsonschema:"JSON-RPC URL starting with http:// or https://"`
}

type DeleteClusterInput struct {
	Name string `json:"name" jsonschema:"name of the cluster to remove"`
}

// ClusterOutput wraps a single cluster.
type ClusterOutput struct {
	Cluster ClusterInfo `json:"cluster"`
}

type DeleteClusterOutput struct {
	Deleted string `json:"deleted"`
}

type ExplorerLinkInput struct {
	Path    string `json:"path" jsonschema:"explorer path, e.g. address/<pubkey>, tx/<signature> or block/<slot>"`
	Cluster string `json:"cluster,omitempty" jsonschema:"cluster name; the active cluster when omitted"`
}

type ExplorerLinkOutput struct {
	Cluster string `json:"cluster"`
	URL     string `json:"url"`
}

type CheckHealthInput struct {
	Cluster string `json:"cluster,omitempty" jsonschema:"cluster name; the active cluster when omitted"`
	Refresh bool   `json:"refresh,omitempty" jsonschema:"discard any cached result and probe again"`
}

type CheckHealthOutput struct {
	Cluster    string `json:"cluster"`
	Endpoint   string `json:"endpoint"`
	Status     string `json:"status"`
	SolanaCore string `json:"solanaCore,omitempty"`
	FeatureSet int64  `json:"featureSet,omitempty"`
	CheckedAt  string `json:"checkedAt,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) info(c cluster.Cluster) ClusterInfo {
	out := ClusterInfo{
		Name:     c.Name,
		Network:  c.Network.String(),
		Endpoint: c.Endpoint,
		Active:   c.Active,
	}
	if link, err := s.resolver.Resolve(c, ""); err == nil {
		out.ExplorerURL = link
	}
	return out
}

// lookup returns the named cluster, or the active one when name is empty.
func (s *Server) lookup(ctx context.Context, name string) (cluster.Cluster, error) {
	s.sync(ctx)
	if name == "" {
		return s.registry.Active()
	}
	return s.registry.Get(name)
}

// sync adopts writes made by other processes sharing the store.
func (s *Server) sync(ctx context.Context) {
	if err := s.registry.Sync(ctx); err != nil {
		slog.Warn("failed to sync cluster registry", "error", err)
	}
}

func (s *Server) listClusters(ctx context.Context, req *mcp.CallToolRequest, in ListClustersInput) (*mcp.CallToolResult, ListClustersOutput, error) {
	s.sync(ctx)
	state := s.registry.Snapshot()
	out := ListClustersOutput{
		Clusters:   make([]ClusterInfo, 0, len(state.Clusters)),
		ActiveName: state.ActiveName,
	}
	for _, c := range state.Clusters {
		out.Clusters = append(out.Clusters, s.info(c))
	}
	return nil, out, nil
}

func (s *Server) selectCluster(ctx context.Context, req *mcp.CallToolRequest, in SelectClusterInput) (*mcp.CallToolResult, ClusterOutput, error) {
	if err := s.registry.SetActive(ctx, in.Name); err != nil {
		return nil, ClusterOutput{}, err
	}
	active, err := s.registry.Active()
	if err != nil {
		return nil, ClusterOutput{}, err
	}
	return nil, ClusterOutput{Cluster: s.info(active)}, nil
}

func (s *Server) addCluster(ctx context.Context, req *mcp.CallToolRequest, in AddClusterInput) (*mcp.CallToolResult, ClusterOutput, error) {
	network, err := cluster.ParseNetwork(in.Network)
	if err != nil {
		return nil, ClusterOutput{}, err
	}

	c := cluster.Cluster{Name: in.Name, Network: network, Endpoint: in.Endpoint}
	if err := s.registry.Add(ctx, c); err != nil {
		return nil, ClusterOutput{}, err
	}
	added, err := s.registry.Get(in.Name)
	if err != nil {
		return nil, ClusterOutput{}, err
	}
	return nil, ClusterOutput{Cluster: s.info(added)}, nil
}

func (s *Server) deleteCluster(ctx context.Context, req *mcp.CallToolRequest, in DeleteClusterInput) (*mcp.CallToolResult, DeleteClusterOutput, error) {
	if err := s.registry.Delete(ctx, in.Name); err != nil {
		return nil, DeleteClusterOutput{}, err
	}
	return nil, DeleteClusterOutput{Deleted: in.Name}, nil
}

func (s *Server) explorerLink(ctx context.Context, req *mcp.CallToolRequest, in ExplorerLinkInput) (*mcp.CallToolResult, ExplorerLinkOutput, error) {
	c, err := s.lookup(ctx, in.Cluster)
	if err != nil {
		return nil, ExplorerLinkOutput{}, err
	}
	link, err := s.resolver.Resolve(c, in.Path)
	if err != nil {
		return nil, ExplorerLinkOutput{}, err
	}
	return nil, ExplorerLinkOutput{Cluster: c.Name, URL: link}, nil
}

// checkHealth reports an unreachable endpoint as a status, not a tool error,
// so the agent sees which cluster failed and why.
func (s *Server) checkHealth(ctx context.Context, req *mcp.CallToolRequest, in CheckHealthInput) (*mcp.CallToolResult, CheckHealthOutput, error) {
	c, err := s.lookup(ctx, in.Cluster)
	if err != nil {
		return nil, CheckHealthOutput{}, err
	}

	check := s.checker.Check
	if in.Refresh {
		check = s.checker.Refresh
	}

	out := CheckHealthOutput{Cluster: c.Name, Endpoint: c.Endpoint}
	info, err := check(ctx, c)
	if err != nil {
		if ctx.Err() != nil {
			return nil, CheckHealthOutput{}, ctx.Err()
		}
		out.Status = string(probe.StatusUnreachable)
		out.Error = err.Error()
		return nil, out, nil
	}

	out.Status = string(probe.StatusHealthy)
	out.SolanaCore = info.SolanaCore
	out.FeatureSet = info.FeatureSet
	if !info.CheckedAt.IsZero() {
		out.CheckedAt = info.CheckedAt.Format(time.RFC3339)
	}
	return nil, out, nil
}
