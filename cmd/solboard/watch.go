package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rbias/solboard/internal/config"
	"github.com/rbias/solboard/internal/events"
)

var watchStreams []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow registry changes and health reports from a running server",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().String("server", "", "Server base URL (overrides config file and SOLBOARD_SERVER_URL)")
	watchCmd.Flags().StringSliceVar(&watchStreams, "stream", events.Streams, "Streams to follow: "+strings.Join(events.Streams, ", "))
	config.BindFlags(watchCmd.Flags())
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, tuning, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	endpoint := strings.TrimRight(cfg.ServerURL, "/") + "/api/events"
	client := events.NewClient(endpoint, tuning.Events.BufferSize)
	slog.Info("watching change stream", "endpoint", endpoint, "streams", watchStreams)

	out := cmd.OutOrStdout()
	var (
		wg    sync.WaitGroup
		outMu sync.Mutex
	)
	for _, stream := range watchStreams {
		eventChan, err := client.Subscribe(ctx, stream)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range eventChan {
				outMu.Lock()
				printEvent(out, event)
				outMu.Unlock()
			}
		}()
	}

	wg.Wait()
	return nil
}

func printEvent(w io.Writer, event *events.Event) {
	switch {
	case event.Change != nil:
		c := event.Change
		fmt.Fprintf(w, "%s [%s] %s %s (active: %s)\n",
			c.At.Format("15:04:05"), event.Stream, c.Kind, c.Name, c.State.ActiveName)
	case event.Health != nil:
		h := event.Health
		line := fmt.Sprintf("[%s] %s %s", event.Stream, h.Cluster.Name, h.Status)
		if h.Version != nil && h.Version.SolanaCore != "" {
			line += " solana-core " + h.Version.SolanaCore
		}
		if h.Error != "" {
			line += ": " + h.Error
		}
		fmt.Fprintln(w, line)
	default:
		fmt.Fprintf(w, "[%s] %s %s\n", event.Stream, event.Type, event.ID)
	}
}
