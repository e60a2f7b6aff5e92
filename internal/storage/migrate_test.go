package storage

import (
	"path/filepath"
	"testing"
)

func TestSQLiteMigrations(t *testing.T) {
	cfg := &MigrationConfig{
		DatabaseType: TypeSQLite,
		DatabasePath: filepath.Join(t.TempDir(), "migrate.db"),
	}

	version, dirty, err := GetMigrationVersion(cfg)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if version != 0 || dirty {
		t.Fatalf("fresh database version = %d dirty = %v, want 0 false", version, dirty)
	}

	if err := RunMigrations(cfg); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	// Running again is a no-op
	if err := RunMigrations(cfg); err != nil {
		t.Fatalf("RunMigrations() second run error = %v", err)
	}

	version, dirty, err = GetMigrationVersion(cfg)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 false", version, dirty)
	}

	if err := RollbackMigrations(cfg, 0); err != nil {
		t.Fatalf("RollbackMigrations() error = %v", err)
	}
	version, _, err = GetMigrationVersion(cfg)
	if err != nil {
		t.Fatalf("GetMigrationVersion() after rollback error = %v", err)
	}
	if version != 0 {
		t.Errorf("version after rollback = %d, want 0", version)
	}
}

func TestMigrationConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *MigrationConfig
	}{
		{name: "nil config", cfg: nil},
		{name: "unsupported type", cfg: &MigrationConfig{DatabaseType: "mysql"}},
		{name: "sqlite without path", cfg: &MigrationConfig{DatabaseType: TypeSQLite}},
		{name: "postgres without url", cfg: &MigrationConfig{DatabaseType: TypePostgres}},
		{name: "missing migrations dir", cfg: &MigrationConfig{
			DatabaseType:   TypeSQLite,
			DatabasePath:   filepath.Join(t.TempDir(), "x.db"),
			MigrationsPath: filepath.Join(t.TempDir(), "does-not-exist"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := RunMigrations(tt.cfg); err == nil {
				t.Error("RunMigrations() expected error")
			}
		})
	}
}
