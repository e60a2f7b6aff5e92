package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/explorer"
	"github.com/rbias/solboard/internal/probe"
)

var (
	outputFormat  string
	addNetwork    string
	checkRefresh  bool
	headerStyle   = lipgloss.NewStyle().Bold(true)
	activeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	endpointStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	healthyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	downStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage registered clusters",
}

var clusterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered clusters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, registry *cluster.Registry, resolver *explorer.Resolver) error {
			return renderClusters(cmd.OutOrStdout(), registry.Snapshot(), resolver, outputFormat)
		})
	},
}

var clusterAddCmd = &cobra.Command{
	Use:   "add NAME ENDPOINT",
	Short: "Register a cluster without activating it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		network, err := cluster.ParseNetwork(addNetwork)
		if err != nil {
			return err
		}
		return withRegistry(cmd, func(ctx context.Context, registry *cluster.Registry, _ *explorer.Resolver) error {
			c := cluster.Cluster{Name: args[0], Network: network, Endpoint: args[1]}
			if err := registry.Add(ctx, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added cluster %q (%s)\n", c.Name, c.Network)
			return nil
		})
	},
}

var clusterDeleteCmd = &cobra.Command{
	Use:     "delete NAME",
	Aliases: []string{"rm"},
	Short:   "Remove a cluster (the active cluster cannot be removed)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, registry *cluster.Registry, _ *explorer.Resolver) error {
			if err := registry.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted cluster %q\n", args[0])
			return nil
		})
	},
}

var clusterUseCmd = &cobra.Command{
	Use:   "use NAME",
	Short: "Make a cluster the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, registry *cluster.Registry, _ *explorer.Resolver) error {
			if err := registry.SetActive(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active cluster is now %q\n", args[0])
			return nil
		})
	},
}

var clusterCheckCmd = &cobra.Command{
	Use:   "check [NAME]",
	Short: "Query getVersion on a cluster (the active one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClusterCheck,
}

func init() {
	clusterListCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	clusterAddCmd.Flags().StringVar(&addNetwork, "network", "custom", "Network: devnet, testnet, mainnet-beta, custom")
	clusterCheckCmd.Flags().BoolVar(&checkRefresh, "refresh", false, "Ignore any cached result")

	clusterCmd.AddCommand(clusterListCmd, clusterAddCmd, clusterDeleteCmd, clusterUseCmd, clusterCheckCmd)
}

// withRegistry loads config and the registry, runs fn and closes the store.
func withRegistry(cmd *cobra.Command, fn func(ctx context.Context, registry *cluster.Registry, resolver *explorer.Resolver) error) error {
	cfg, _, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	registry, store, err := openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, registry, resolver)
}

func runClusterCheck(cmd *cobra.Command, args []string) error {
	cfg, tuning, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	registry, store, err := openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var target cluster.Cluster
	if len(args) == 1 {
		target, err = registry.Get(args[0])
	} else {
		target, err = registry.Active()
	}
	if err != nil {
		return err
	}

	prober := probe.NewProber(tuning.ProbeConfig())
	check := prober.Check
	if checkRefresh {
		check = prober.Refresh
	}

	info, err := check(ctx, target)
	printCheckResult(cmd.OutOrStdout(), target, info, err)
	return err
}

func printCheckResult(w io.Writer, c cluster.Cluster, info *probe.VersionInfo, err error) {
	if err != nil {
		fmt.Fprintf(w, "%s %s (%s): %v\n", downStyle.Render("✗"), c.Name, c.Endpoint, err)
		return
	}
	fmt.Fprintf(w, "%s %s (%s) solana-core %s, feature-set %d\n",
		healthyStyle.Render("✓"), c.Name, c.Endpoint, info.SolanaCore, info.FeatureSet)
}

// clusterListing is the json/yaml form of `cluster list`.
type clusterListing struct {
	ActiveName string         `json:"activeName" yaml:"activeName"`
	Clusters   []clusterEntry `json:"clusters" yaml:"clusters"`
}

type clusterEntry struct {
	Name        string `json:"name" yaml:"name"`
	Network     string `json:"network" yaml:"network"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	Active      bool   `json:"active" yaml:"active"`
	ExplorerURL string `json:"explorerUrl,omitempty" yaml:"explorerUrl,omitempty"`
}

func listingFor(state cluster.State, resolver *explorer.Resolver) clusterListing {
	out := clusterListing{
		ActiveName: state.ActiveName,
		Clusters:   make([]clusterEntry, 0, len(state.Clusters)),
	}
	for _, c := range state.Clusters {
		entry := clusterEntry{
			Name:     c.Name,
			Network:  c.Network.String(),
			Endpoint: c.Endpoint,
			Active:   c.Name == state.ActiveName,
		}
		if link, err := resolver.Resolve(c, ""); err == nil {
			entry.ExplorerURL = link
		}
		out.Clusters = append(out.Clusters, entry)
	}
	return out
}

func renderClusters(w io.Writer, state cluster.State, resolver *explorer.Resolver, format string) error {
	listing := listingFor(state, resolver)

	switch strings.ToLower(format) {
	case "", "table":
		fmt.Fprint(w, clusterTable(listing))
		return nil
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(listing)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(listing); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unknown output format %q: must be table, json or yaml", format)
	}
}

// clusterTable renders the listing as aligned columns, marking the active row.
func clusterTable(listing clusterListing) string {
	headers := []string{"", "NAME", "NETWORK", "ENDPOINT"}
	rows := make([][]string, 0, len(listing.Clusters))
	for _, c := range listing.Clusters {
		marker := ""
		if c.Active {
			marker = "*"
		}
		rows = append(rows, []string{marker, c.Name, c.Network, c.Endpoint})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style func(col int) lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = style(i).Width(widths[i]).Render(cell)
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteString("\n")
	}

	writeRow(headers, func(int) lipgloss.Style { return headerStyle })
	for _, row := range rows {
		active := row[0] != ""
		writeRow(row, func(col int) lipgloss.Style {
			switch {
			case active && col <= 1:
				return activeStyle
			case col == 3:
				return endpointStyle
			default:
				return lipgloss.NewStyle()
			}
		})
	}
	return b.String()
}
