package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rbias/solboard/internal/mcpserver"
	"github.com/rbias/solboard/internal/probe"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the cluster tools over MCP on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol, so logs go to stderr.
	cfg, tuning, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, store, err := openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}

	srv, err := mcpserver.New(mcpserver.Options{
		Version:  Version,
		Registry: registry,
		Resolver: resolver,
		Checker:  probe.NewProber(tuning.ProbeConfig()),
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
