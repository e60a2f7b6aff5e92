package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationConfig says which SQL backend to migrate and where its schema lives.
type MigrationConfig struct {
	// MigrationsPath overrides the embedded migrations with a directory on disk
	MigrationsPath string
	// sqlite or postgres
	DatabaseType string
	// sqlite file
	DatabasePath string
	// postgres DSN
	DatabaseURL string
}

// RunMigrations brings the schema up to the newest version. Being current already is not an error.
func RunMigrations(cfg *MigrationConfig) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RollbackMigrations undoes the given number of migrations,
// or every migration when steps is 0.
func RollbackMigrations(cfg *MigrationConfig, steps int) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if steps == 0 {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback all migrations: %w", err)
		}
		return nil
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback %d migration(s): %w", steps, err)
	}
	return nil
}

// GetMigrationVersion returns the current migration version and whether it is dirty.
// A database that has never been migrated reports version 0.
func GetMigrationVersion(cfg *MigrationConfig) (uint, bool, error) {
	m, err := newMigrate(cfg)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// newMigrate opens the database and the migrations source for cfg.
// Closing the returned instance closes the database.
func newMigrate(cfg *MigrationConfig) (*migrate.Migrate, error) {
	if cfg == nil {
		return nil, fmt.Errorf("migration configuration is required")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := createMigrationDriver(db, cfg.DatabaseType)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceName, sourceInstance, err := openSource(cfg)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to open migrations source: %w", err)
	}

	m, err := migrate.NewWithInstance(sourceName, sourceInstance, cfg.DatabaseType, driver)
	if err != nil {
		sourceInstance.Close()
		driver.Close()
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// openSource returns the embedded migrations for the database type, or the
// directory named by MigrationsPath.
func openSource(cfg *MigrationConfig) (string, source.Driver, error) {
	if cfg.MigrationsPath == "" {
		d, err := iofs.New(migrationsFS, "migrations/"+cfg.DatabaseType)
		return "iofs", d, err
	}

	migrationsPath := cfg.MigrationsPath
	if !filepath.IsAbs(migrationsPath) {
		absPath, err := filepath.Abs(migrationsPath)
		if err != nil {
			return "", nil, fmt.Errorf("failed to resolve migrations path: %w", err)
		}
		migrationsPath = absPath
	}

	d, err := (&file.File{}).Open(fmt.Sprintf("file://%s", migrationsPath))
	return "file", d, err
}

func openDatabase(cfg *MigrationConfig) (*sql.DB, error) {
	switch cfg.DatabaseType {
	case TypeSQLite:
		if cfg.DatabasePath == "" {
			return nil, fmt.Errorf("database path is required for SQLite")
		}
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := ensureDir(dir); err != nil {
				return nil, err
			}
		}
		db, err := sql.Open("sqlite", cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		return db, nil

	case TypePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL is required for PostgreSQL")
		}
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}
}

func createMigrationDriver(db *sql.DB, dbType string) (database.Driver, error) {
	switch dbType {
	case TypeSQLite:
		driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite migration driver: %w", err)
		}
		return driver, nil

	case TypePostgres:
		driver, err := postgres.WithInstance(db, &postgres.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL migration driver: %w", err)
		}
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
