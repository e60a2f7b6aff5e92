package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rbias/solboard/internal/storage"
)

var migrationsPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the schema of the sqlite and postgres backends",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		migrationCfg, err := loadMigrationConfig()
		if err != nil {
			return err
		}
		if err := storage.RunMigrations(migrationCfg); err != nil {
			return err
		}
		return printMigrationVersion(cmd, migrationCfg)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [STEPS]",
	Short: "Roll back STEPS migrations (all when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 0
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("STEPS must be a positive integer, got %q", args[0])
			}
			steps = n
		}

		migrationCfg, err := loadMigrationConfig()
		if err != nil {
			return err
		}
		if err := storage.RollbackMigrations(migrationCfg, steps); err != nil {
			return err
		}
		return printMigrationVersion(cmd, migrationCfg)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		migrationCfg, err := loadMigrationConfig()
		if err != nil {
			return err
		}
		return printMigrationVersion(cmd, migrationCfg)
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrationsPath, "migrations-path", "", "Read migrations from this directory instead of the built-in set")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

func loadMigrationConfig() (*storage.MigrationConfig, error) {
	cfg, _, err := loadConfig(os.Stderr)
	if err != nil {
		return nil, err
	}
	migrationCfg, err := cfg.MigrationConfig()
	if err != nil {
		return nil, err
	}
	migrationCfg.MigrationsPath = migrationsPath
	return migrationCfg, nil
}

func printMigrationVersion(cmd *cobra.Command, migrationCfg *storage.MigrationConfig) error {
	version, dirty, err := storage.GetMigrationVersion(migrationCfg)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema version %d (%s)\n", migrationCfg.DatabaseType, version, state)
	return nil
}
