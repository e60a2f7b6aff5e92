// Package mcpserver exposes the cluster registry as MCP tools so agents can
// list, select and manage clusters, build explorer links and check health.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/explorer"
	"github.com/rbias/solboard/internal/probe"
)

// Registry is the subset of *cluster.Registry the tools use.
type Registry interface {
	Sync(ctx context.Context) error
	Snapshot() cluster.State
	Active() (cluster.Cluster, error)
	Get(name string) (cluster.Cluster, error)
	SetActive(ctx context.Context, name string) error
	Add(ctx context.Context, c cluster.Cluster) error
	Delete(ctx context.Context, name string) error
}

// Checker probes a cluster. *probe.Prober satisfies it.
type Checker interface {
	Check(ctx context.Context, c cluster.Cluster) (*probe.VersionInfo, error)
	Refresh(ctx context.Context, c cluster.Cluster) (*probe.VersionInfo, error)
}

// Options configures a Server.
type Options struct {
	Name     string
	Version  string
	Registry Registry
	Resolver *explorer.Resolver
	Checker  Checker
}

// Server wraps an MCP server with the cluster tools registered.
type Server struct {
	registry Registry
	resolver *explorer.Resolver
	checker  Checker
	mcp      *mcp.Server
}

// New creates a Server with every tool registered.
func New(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("mcp server requires a cluster registry")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("mcp server requires an explorer resolver")
	}
	if opts.Checker == nil {
		return nil, fmt.Errorf("mcp server requires a health checker")
	}
	if opts.Name == "" {
		opts.Name = "solboard"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		registry: opts.Registry,
		resolver: opts.Resolver,
		checker:  opts.Checker,
		mcp:      mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil),
	}
	s.registerTools()
	return s, nil
}

// MCP returns the underlying server, for connecting custom transports.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run serves the tools over stdin/stdout until ctx is canceled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting MCP server on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_clusters",
		Description: "List every registered Solana cluster and which one is active.",
	}, s.listClusters)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "select_cluster",
		Description: "Make the named cluster the active one.",
	}, s.selectCluster)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_cluster",
		Description: "Register a new cluster. It is not activated.",
	}, s.addCluster)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_cluster",
		Description: "Remove a cluster. The active cluster cannot be removed.",
	}, s.deleteCluster)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "explorer_link",
		Description: "Build a Solana explorer URL for a path such as address/<pubkey> or tx/<signature>.",
	}, s.explorerLink)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "check_health",
		Description: "Query getVersion on a cluster's RPC endpoint to see whether it is reachable.",
	}, s.checkHealth)
}
