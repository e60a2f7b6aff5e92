package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/config"
	"github.com/rbias/solboard/internal/explorer"
	"github.com/rbias/solboard/internal/storage"
)

var (
	// Version information (set via ldflags at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// Command-line flags
	configFile string
	tuningFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "solboard",
	Short:         "Solboard - Solana cluster registry",
	Long:          "Manage the Solana clusters a dashboard talks to, build explorer links and check RPC endpoint health",
	RunE:          runRoot,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Version flag
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	// Configuration file flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: searches for config.yaml in ., ./configs, $HOME/.solboard, /etc/solboard)")
	rootCmd.PersistentFlags().StringVar(&tuningFile, "tuning", "", "Path to tuning file (default: searches for tuning.yaml)")

	// Override flags (take precedence over config file and env vars)
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config file and SOLBOARD_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("storage", "", "Storage backend: "+strings.Join(storage.Types, ", "))
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for filesystem, badger and sqlite storage")
	rootCmd.PersistentFlags().String("database-path", "", "SQLite database path")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")
	rootCmd.PersistentFlags().String("explorer-base-url", "", "Block explorer base URL")

	// Bind flags to viper for precedence handling
	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(clusterCmd, explorerCmd, serveCmd, watchCmd, mcpCmd, migrateCmd)
}

func runRoot(cmd *cobra.Command, args []string) error {
	versionFlag, _ := cmd.Flags().GetBool("version")
	if versionFlag {
		printVersion(cmd.OutOrStdout())
		return nil
	}
	return cmd.Help()
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "solboard version %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

// loadConfig loads the configuration and sets up logging. One-shot commands
// log to stderr so their stdout stays machine readable.
func loadConfig(logOut io.Writer) (*config.Config, *config.TuningConfig, error) {
	// Load configuration with precedence: flags > env vars > config file > defaults
	cfg, err := config.LoadWithConfigFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Load tuning configuration (optional - uses defaults if not found)
	var tuning *config.TuningConfig
	if tuningFile != "" {
		tuning, err = config.LoadTuningWithFile(tuningFile)
	} else {
		tuning, err = config.LoadTuning()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tuning configuration: %w", err)
	}

	setupLogging(cfg.LogLevel, logOut)
	slog.Debug("configuration loaded", "config_file", config.GetConfigFile())
	return cfg, tuning, nil
}

// openRegistry opens the configured store and loads the registry from it.
// The caller closes the returned store.
func openRegistry(ctx context.Context, cfg *config.Config) (*cluster.Registry, storage.Store, error) {
	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry, err := cluster.NewRegistry(ctx, store,
		cluster.WithStateKey(cfg.Storage.StateKey),
		cluster.WithDefaults(cfg.Seeds()))
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to load cluster registry: %w", err)
	}

	slog.Debug("cluster registry ready",
		"store", cfg.Storage.Type,
		"cluster_count", registry.Len())
	return registry, store, nil
}

func newResolver(cfg *config.Config) (*explorer.Resolver, error) {
	resolver, err := explorer.NewResolver(cfg.ExplorerBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create explorer resolver: %w", err)
	}
	return resolver, nil
}

// setupLogging configures the global slog logger based on the specified level.
func setupLogging(level string, out io.Writer) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func printStartupBanner(w io.Writer, cfg *config.Config, tuning *config.TuningConfig, configFile string) {
	configSource := configFile
	if configSource == "" {
		configSource = "(defaults only)"
	}

	seeds := "built-in (Devnet, Testnet, Mainnet)"
	if len(cfg.Clusters) > 0 {
		seeds = fmt.Sprintf("%d from config", len(cfg.Clusters))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║         Solboard - Solana Cluster Registry                    ║")
	fmt.Fprintf(w, "║         Version: %-45s║\n", truncateString(Version, 45))
	fmt.Fprintf(w, "║         Built:   %-45s║\n", truncateString(BuildTime, 45))
	fmt.Fprintln(w, "╠═══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Config File:    %-45s║\n", truncateString(configSource, 45))
	fmt.Fprintln(w, "╠═══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Listen:         %-45s║\n", truncateString(cfg.ListenAddr, 45))
	fmt.Fprintf(w, "║  Storage:        %-45s║\n", truncateString(cfg.Storage.Type, 45))
	fmt.Fprintf(w, "║  State Key:      %-45s║\n", truncateString(cfg.Storage.StateKey, 45))
	fmt.Fprintf(w, "║  Seed Clusters:  %-45s║\n", truncateString(seeds, 45))
	fmt.Fprintf(w, "║  Explorer:       %-45s║\n", truncateString(cfg.ExplorerBaseURL, 45))
	fmt.Fprintln(w, "╠═══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Probe Timeout:  %-45s║\n", fmt.Sprintf("%ds", tuning.Probe.TimeoutSeconds))
	fmt.Fprintf(w, "║  Probe Retries:  %-45s║\n", fmt.Sprintf("%d", tuning.Probe.Retries))
	fmt.Fprintf(w, "║  Log Level:      %-45s║\n", cfg.LogLevel)
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
}

// truncateString truncates a string to maxLen, adding "..." if truncated
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
