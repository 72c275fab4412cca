package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/analytics/internal/core/config"
	"github.com/aevon-lab/analytics/internal/core/storage"
	"github.com/aevon-lab/analytics/internal/core/storage/memory"
	"github.com/aevon-lab/analytics/internal/core/storage/postgres"
	"github.com/aevon-lab/analytics/internal/core/storage/sqlite"
	"github.com/aevon-lab/analytics/internal/migrations"
	"github.com/aevon-lab/analytics/internal/server"
)

// openedStore is the event repository chosen by database.type.
type openedStore struct {
	repo   storage.EventRepository
	health server.HealthChecker
	close  func() error
}

// openStore connects, migrates and validates the configured repository.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*openedStore, error) {
	switch cfg.Type {
	case "postgres":
		adapter, err := postgres.NewAdapter(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := migrations.RunMigrations(adapter.DB(), migrations.DialectPostgres, cfg.AutoMigrate); err != nil {
			adapter.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		if err := adapter.Prepare(); err != nil {
			adapter.Close()
			return nil, err
		}
		return &openedStore{repo: adapter, health: adapter, close: adapter.Close}, nil

	case "sqlite":
		store, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := migrations.RunMigrations(store.DB(), migrations.DialectSQLite, cfg.AutoMigrate); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		if err := store.ValidateSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return &openedStore{repo: store, health: store, close: store.Close}, nil

	case "memory":
		slog.Warn("Using in-memory event store; events are lost on restart")
		return &openedStore{repo: memory.NewStore(), close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unsupported database.type %q", cfg.Type)
	}
}
