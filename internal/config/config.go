// Package config loads solboard configuration from flags, environment
// variables, a config file and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/explorer"
	"github.com/rbias/solboard/internal/storage"
)

// EnvPrefix is prepended to every environment variable, e.g. SOLBOARD_LOG_LEVEL.
const EnvPrefix = "SOLBOARD"

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config holds the application configuration.
type Config struct {
	LogLevel        string          `mapstructure:"log_level"`
	ListenAddr      string          `mapstructure:"listen_addr"`
	ServerURL       string          `mapstructure:"server_url"`
	ExplorerBaseURL string          `mapstructure:"explorer_base_url"`
	Storage         StorageSettings `mapstructure:"storage"`

	// Clusters replaces the built-in Devnet/Testnet/Mainnet seed list when
	// the registry is created on empty storage.
	Clusters []cluster.Cluster `mapstructure:"clusters"`
}

// StorageSettings selects and configures the registry backend.
type StorageSettings struct {
	Type         string        `mapstructure:"type"`
	DataDir      string        `mapstructure:"data_dir"`
	StateKey     string        `mapstructure:"state_key"`
	DatabasePath string        `mapstructure:"database_path"`
	DatabaseURL  string        `mapstructure:"database_url"`
	Azure        AzureSettings `mapstructure:"azure"`
}

// AzureSettings configures the Azure Blob Storage backend.
type AzureSettings struct {
	ConnectionString string `mapstructure:"connection_string"`
	Account          string `mapstructure:"account"`
	Key              string `mapstructure:"key"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"log-level":         "log_level",
	"listen":            "listen_addr",
	"server":            "server_url",
	"explorer-base-url": "explorer_base_url",
	"storage":           "storage.type",
	"data-dir":          "storage.data_dir",
	"database-path":     "storage.database_path",
	"database-url":      "storage.database_url",
}

// BindFlags binds whichever of the known flags exist in flags to their config
// keys so that flags override env vars and the config file.
func BindFlags(flags *pflag.FlagSet) {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// Load reads configuration from the default search paths.
func Load() (*Config, error) {
	return LoadWithConfigFile("")
}

// LoadWithConfigFile reads configuration from configFile, or from config.yaml
// in ., ./configs, $HOME/.solboard and /etc/solboard when configFile is empty.
// A missing file is only an error when it was named explicitly.
func LoadWithConfigFile(configFile string) (*Config, error) {
	setDefaults()
	bindEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("$HOME/.solboard")
		viper.AddConfigPath("/etc/solboard")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfigFile returns the config file that was read, or "" if none was found.
func GetConfigFile() string {
	return viper.ConfigFileUsed()
}

func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("server_url", "http://localhost:8080")
	viper.SetDefault("explorer_base_url", explorer.DefaultBaseURL)
	viper.SetDefault("storage.type", storage.TypeFilesystem)
	viper.SetDefault("storage.data_dir", defaultDataDir())
	viper.SetDefault("storage.state_key", cluster.DefaultStateKey)
	viper.SetDefault("storage.database_path", "")
	viper.SetDefault("storage.database_url", "")
	viper.SetDefault("storage.azure.connection_string", "")
	viper.SetDefault("storage.azure.account", "")
	viper.SetDefault("storage.azure.key", "")
	viper.SetDefault("storage.azure.container", "")
	viper.SetDefault("storage.azure.prefix", "")
}

func bindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// The Azure SDK's conventional variables are honored as well.
	_ = viper.BindEnv("storage.azure.connection_string", "SOLBOARD_STORAGE_AZURE_CONNECTION_STRING", "AZURE_STORAGE_CONNECTION_STRING")
	_ = viper.BindEnv("storage.azure.account", "SOLBOARD_STORAGE_AZURE_ACCOUNT", "AZURE_STORAGE_ACCOUNT")
	_ = viper.BindEnv("storage.azure.key", "SOLBOARD_STORAGE_AZURE_KEY", "AZURE_STORAGE_KEY")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".solboard"
	}
	return filepath.Join(home, ".solboard")
}

// Validate checks the configuration and normalizes seed cluster networks.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("log_level must be one of %s, got %q", strings.Join(validLogLevels, ", "), c.LogLevel)
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if err := cluster.ValidateEndpoint(c.ServerURL); err != nil {
		return fmt.Errorf("server_url: %w", err)
	}
	if _, err := explorer.NewResolver(c.ExplorerBaseURL); err != nil {
		return fmt.Errorf("explorer_base_url: %w", err)
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Clusters))
	for i := range c.Clusters {
		seed := &c.Clusters[i]
		network, err := cluster.ParseNetwork(string(seed.Network))
		if err != nil {
			return fmt.Errorf("clusters[%d]: %w", i, err)
		}
		seed.Network = network
		if err := seed.Validate(); err != nil {
			return fmt.Errorf("clusters[%d]: %w", i, err)
		}
		if seen[seed.Name] {
			return fmt.Errorf("clusters[%d]: %w: %q", i, cluster.ErrDuplicateName, seed.Name)
		}
		seen[seed.Name] = true
	}

	return nil
}

func (s *StorageSettings) validate() error {
	if s.Type == "" {
		s.Type = storage.TypeFilesystem
	}
	if !slices.Contains(storage.Types, s.Type) {
		return fmt.Errorf("storage.type must be one of %s, got %q", strings.Join(storage.Types, ", "), s.Type)
	}
	if s.StateKey == "" {
		return fmt.Errorf("storage.state_key is required")
	}

	switch s.Type {
	case storage.TypeFilesystem, storage.TypeBadger:
		if s.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for %s storage", s.Type)
		}
	case storage.TypeSQLite:
		if s.DatabasePath == "" && s.DataDir == "" {
			return fmt.Errorf("storage.database_path or storage.data_dir is required for sqlite storage")
		}
	case storage.TypePostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url is required for postgres storage")
		}
	case storage.TypeAzure:
		if s.Azure.Container == "" {
			return fmt.Errorf("storage.azure.container is required for azure storage")
		}
		if s.Azure.ConnectionString == "" && (s.Azure.Account == "" || s.Azure.Key == "") {
			return fmt.Errorf("azure storage requires storage.azure.connection_string or storage.azure.account and storage.azure.key")
		}
	}
	return nil
}

// Seeds returns the configured seed clusters, or nil to use the built-in defaults.
func (c *Config) Seeds() []cluster.Cluster {
	if len(c.Clusters) == 0 {
		return nil
	}
	return c.Clusters
}

// The getters below satisfy storage.StorageConfig, storage.SQLConfig and storage.AzureConfig.

func (c *Config) GetStorageType() string           { return c.Storage.Type }
func (c *Config) GetDataDir() string               { return c.Storage.DataDir }
func (c *Config) GetDatabasePath() string          { return c.Storage.DatabasePath }
func (c *Config) GetDatabaseURL() string           { return c.Storage.DatabaseURL }
func (c *Config) GetAzureConnectionString() string { return c.Storage.Azure.ConnectionString }
func (c *Config) GetAzureAccount() string          { return c.Storage.Azure.Account }
func (c *Config) GetAzureKey() string              { return c.Storage.Azure.Key }
func (c *Config) GetAzureContainer() string        { return c.Storage.Azure.Container }
func (c *Config) GetAzurePrefix() string           { return c.Storage.Azure.Prefix }

// MigrationConfig returns the migration settings for the configured SQL backend.
func (c *Config) MigrationConfig() (*storage.MigrationConfig, error) {
	switch c.Storage.Type {
	case storage.TypeSQLite:
		path := c.Storage.DatabasePath
		if path == "" {
			path = filepath.Join(c.Storage.DataDir, "solboard.db")
		}
		return &storage.MigrationConfig{DatabaseType: storage.TypeSQLite, DatabasePath: path}, nil
	case storage.TypePostgres:
		return &storage.MigrationConfig{DatabaseType: storage.TypePostgres, DatabaseURL: c.Storage.DatabaseURL}, nil
	default:
		return nil, fmt.Errorf("migrations apply to sqlite and postgres storage, not %q", c.Storage.Type)
	}
}
