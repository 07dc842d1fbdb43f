package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/database"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection counts and storage tiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printOutput(cmd.OutOrStdout(), newClient().Stats(cmd.Context()))
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Flush memory-only writes and refresh the cache now",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := newClient().Sync(cmd.Context())
		if err := printOutput(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if report.Remaining > 0 {
			return fmt.Errorf("%d collections are still held only in memory", report.Remaining)
		}
		return nil
	},
}

// migrateCmd manages the postgres blob schema directly, using the server's
// environment configuration
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the postgres blob store schema",
}

func withDB(fn func(db *database.DB, path string) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := database.New(&cfg.Database, newLogger())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	return fn(db, cfg.Database.MigrationsPath)
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *database.DB, path string) error { return db.RunMigrations(path) })
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *database.DB, path string) error { return db.MigrateDown(path) })
	},
}

var migrateGotoCmd = &cobra.Command{
	Use:   "goto VERSION",
	Short: "Migrate up or down to VERSION",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withDB(func(db *database.DB, path string) error { return db.MigrateToVersion(path, uint(version)) })
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateGotoCmd)
	rootCmd.AddCommand(statsCmd, syncCmd, migrateCmd)
}
