package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/explorer"
)

var (
	explorerCluster string
	explorerAddress string
	explorerTx      string
	explorerBlock   uint64
)

var explorerCmd = &cobra.Command{
	Use:   "explorer [PATH]",
	Short: "Print a block explorer link for the active cluster",
	Long: `Print a block explorer link for the active cluster (or --cluster).

PATH is appended to the explorer base URL, e.g. "address/<pubkey>". The
--address, --tx and --block flags build the common paths for you.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, registry *cluster.Registry, resolver *explorer.Resolver) error {
			var (
				target cluster.Cluster
				err    error
			)
			if explorerCluster != "" {
				target, err = registry.Get(explorerCluster)
			} else {
				target, err = registry.Active()
			}
			if err != nil {
				return err
			}

			link, err := explorerLink(resolver, target, args, cmd.Flags().Changed("block"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		})
	},
}

func init() {
	explorerCmd.Flags().StringVar(&explorerCluster, "cluster", "", "Cluster name (default: the active cluster)")
	explorerCmd.Flags().StringVar(&explorerAddress, "address", "", "Link to an account")
	explorerCmd.Flags().StringVar(&explorerTx, "tx", "", "Link to a transaction signature")
	explorerCmd.Flags().Uint64Var(&explorerBlock, "block", 0, "Link to a block by slot")
	explorerCmd.MarkFlagsMutuallyExclusive("address", "tx", "block")
}

func explorerLink(resolver *explorer.Resolver, c cluster.Cluster, args []string, block bool) (string, error) {
	switch {
	case explorerAddress != "":
		return resolver.AddressURL(c, explorerAddress)
	case explorerTx != "":
		return resolver.TxURL(c, explorerTx)
	case block:
		return resolver.BlockURL(c, explorerBlock)
	case len(args) == 1:
		return resolver.Resolve(c, args[0])
	default:
		return resolver.Resolve(c, "")
	}
}
