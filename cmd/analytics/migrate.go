package main

import (
	"fmt"
	"log/slog"

	"github.com/aevon-lab/analytics/internal/core/storage/postgres"
	"github.com/aevon-lab/analytics/internal/core/storage/sqlite"
	"github.com/aevon-lab/analytics/internal/migrations"
)

// MigrateCmd applies pending migrations regardless of database.auto_migrate.
type MigrateCmd struct{}

func (m *MigrateCmd) Run(root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	switch cfg.Database.Type {
	case "postgres":
		adapter, err := postgres.NewAdapter(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer adapter.Close()
		return migrations.RunMigrations(adapter.DB(), migrations.DialectPostgres, true)
	case "sqlite":
		store, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()
		return migrations.RunMigrations(store.DB(), migrations.DialectSQLite, true)
	default:
		slog.Info("Nothing to migrate", "database", cfg.Database.Type)
		return nil
	}
}
