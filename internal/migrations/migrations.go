package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Dialect selects the migration set and database driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

//go:embed postgres/*.sql sqlite/*.sql
var MigrationFiles embed.FS

// Files returns the embedded migration files for a dialect.
func Files(dialect Dialect) (fs.FS, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
		return fs.Sub(MigrationFiles, string(dialect))
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}
}

// RunMigrations executes all pending migrations against the provided database.
// If autoMigrate is false, it only logs the current version and applies nothing.
func RunMigrations(db *sql.DB, dialect Dialect, autoMigrate bool) error {
	files, err := Files(dialect)
	if err != nil {
		return err
	}

	sourceDriver, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	dbDriver, err := databaseDriver(db, dialect)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, string(dialect), dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	if dirty {
		slog.Warn("[Migrations] Database is in dirty state - migration was interrupted",
			"dialect", dialect,
			"version", version,
			"action", "attempting automatic recovery",
		)

		// Every migration is idempotent (IF [NOT] EXISTS), so forcing the recorded
		// version and re-running Up is safe.
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to recover dirty migration state at version %d: %w", version, err)
		}
		slog.Info("[Migrations] Recovered dirty migration state", "version", version)
	}

	if !autoMigrate {
		slog.Info("[Migrations] Auto-migration disabled, skipping migrations",
			"dialect", dialect,
			"current_version", version,
			"dirty", dirty,
		)
		return nil
	}

	slog.Info("[Migrations] Running database migrations", "dialect", dialect, "current_version", version)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("[Migrations] Database schema is up to date", "version", version)
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get updated migration version: %w", err)
	}

	slog.Info("[Migrations] Database migrations completed successfully",
		"from_version", version,
		"to_version", newVersion,
	)

	return nil
}

func databaseDriver(db *sql.DB, dialect Dialect) (database.Driver, error) {
	switch dialect {
	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{})
	case DialectSQLite:
		return sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}
}
