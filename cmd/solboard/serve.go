package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/config"
	"github.com/rbias/solboard/internal/events"
	"github.com/rbias/solboard/internal/probe"
	"github.com/rbias/solboard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, change stream and dashboard",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides config file and SOLBOARD_LISTEN_ADDR)")
	config.BindFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, tuning, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}
	slog.Info("tuning configuration loaded")

	// Print startup banner
	printStartupBanner(os.Stdout, cfg, tuning, config.GetConfigFile())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	registry, store, err := openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}

	broker := events.NewBroker(tuning.Events.BufferSize)
	defer broker.Close()

	unsubscribe := registry.Subscribe(func(change cluster.Change) {
		slog.Info("cluster registry changed",
			"kind", change.Kind,
			"cluster", change.Name,
			"active", change.State.ActiveName)
		broker.PublishChange(change)
	})
	defer unsubscribe()

	monitor := probe.NewMonitor(probe.NewProber(tuning.ProbeConfig()), registry)
	monitor.OnReport(broker.PublishHealth)
	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start health monitor: %w", err)
	}
	defer monitor.Stop()

	srv, err := server.New(server.Options{
		Addr:     cfg.ListenAddr,
		Registry: registry,
		Resolver: resolver,
		Health:   monitor,
		Events:   broker,
	})
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", tuning.ShutdownTimeout())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), tuning.ShutdownTimeout())
	defer shutdownCancel()

	// Close the event streams first so open SSE connections do not hold up shutdown.
	broker.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		return err
	}

	slog.Info("shutdown complete")
	return nil
}
