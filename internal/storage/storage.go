// Package storage provides key-value backends for persisting the cluster registry document.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rbias/solboard/internal/storage/postgres"
	"github.com/rbias/solboard/internal/storage/sqlite"
)

// Backend types accepted by NewStorage.
const (
	TypeFilesystem = "filesystem"
	TypeMemory     = "memory"
	TypeBadger     = "badger"
	TypeSQLite     = "sqlite"
	TypePostgres   = "postgres"
	TypeAzure      = "azure"
)

// Types lists every supported backend type.
var Types = []string{TypeFilesystem, TypeMemory, TypeBadger, TypeSQLite, TypePostgres, TypeAzure}

// ErrInvalidKey is returned for keys that cannot be stored by a backend.
var ErrInvalidKey = errors.New("invalid storage key")

// Store is a durable key-value store.
type Store interface {
	// Get returns the value stored under key, or nil and no error if the key
	// has never been written.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the value stored under key.
	Put(ctx context.Context, key string, value []byte) error

	// Close releases any resources held by the store.
	Close() error
}

// StorageConfig represents the configuration needed to initialize storage backends.
// This interface allows us to accept different config types without importing
// the concrete config package (avoiding circular dependencies).
type StorageConfig interface {
	// GetStorageType returns one of the Type* constants
	GetStorageType() string
	// GetDataDir returns the directory for file-based backends
	GetDataDir() string
}

// SQLConfig provides database settings for the sqlite and postgres backends.
type SQLConfig interface {
	StorageConfig
	GetDatabasePath() string
	GetDatabaseURL() string
}

// AzureConfig provides Azure-specific configuration needed to initialize AzureStore.
type AzureConfig interface {
	StorageConfig
	GetAzureConnectionString() string
	GetAzureAccount() string
	GetAzureKey() string
	GetAzureContainer() string
	GetAzurePrefix() string
}

// NewStorage creates the Store selected by cfg. SQL backends are migrated to
// the latest schema before they are opened.
func NewStorage(ctx context.Context, cfg StorageConfig) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage configuration is required")
	}

	switch cfg.GetStorageType() {
	case TypeFilesystem, "":
		return NewFilesystemStore(cfg.GetDataDir())

	case TypeMemory:
		return NewMemoryStore(), nil

	case TypeBadger:
		return NewBadgerStore(filepath.Join(cfg.GetDataDir(), "badger"))

	case TypeSQLite:
		sqlCfg, ok := cfg.(SQLConfig)
		if !ok {
			return nil, fmt.Errorf("sqlite storage selected but config doesn't implement SQLConfig interface")
		}
		path := sqlCfg.GetDatabasePath()
		if path == "" {
			path = filepath.Join(cfg.GetDataDir(), "solboard.db")
		}
		if err := RunMigrations(&MigrationConfig{DatabaseType: TypeSQLite, DatabasePath: path}); err != nil {
			return nil, err
		}
		dbCfg := sqlite.DefaultConfig()
		dbCfg.Path = path
		store, err := sqlite.New(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
		return store, nil

	case TypePostgres:
		sqlCfg, ok := cfg.(SQLConfig)
		if !ok {
			return nil, fmt.Errorf("postgres storage selected but config doesn't implement SQLConfig interface")
		}
		if err := RunMigrations(&MigrationConfig{DatabaseType: TypePostgres, DatabaseURL: sqlCfg.GetDatabaseURL()}); err != nil {
			return nil, err
		}
		store, err := postgres.New(ctx, &postgres.Config{ConnectionString: sqlCfg.GetDatabaseURL()})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		return store, nil

	case TypeAzure:
		azureCfg, ok := cfg.(AzureConfig)
		if !ok {
			return nil, fmt.Errorf("azure storage selected but config doesn't implement AzureConfig interface")
		}
		store, err := NewAzureStore(&AzureStoreConfig{
			ConnectionString: azureCfg.GetAzureConnectionString(),
			AccountName:      azureCfg.GetAzureAccount(),
			AccountKey:       azureCfg.GetAzureKey(),
			Container:        azureCfg.GetAzureContainer(),
			Prefix:           azureCfg.GetAzurePrefix(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Azure storage: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage type %q (want one of %s)", cfg.GetStorageType(), strings.Join(Types, ", "))
	}
}

// validateKey rejects keys that would escape a directory or blob prefix.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
