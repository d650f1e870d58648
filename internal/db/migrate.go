// Package db applies the embedded schema migrations with goose
// (github.com/pressly/goose/v3).
//
// Migration files live in internal/db/migrations/ and are embedded via
// //go:embed. The daemon applies pending migrations on startup when
// RUN_MIGRATIONS is set; tests apply them to an in-process SQLite database.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // register the "sqlite" database/sql driver

	"github.com/persistorai/anonforum/internal/dbpool"
)

// Driver names accepted by Open and GooseDialect.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// GooseDialect maps a configured driver to its goose dialect.
func GooseDialect(driver string) (goose.Dialect, error) {
	switch driver {
	case DriverPostgres:
		return goose.DialectPostgres, nil
	case DriverSQLite:
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open opens a database/sql handle for driver. SQLite handles are limited to
// one connection so writers never contend for the file lock.
func Open(driver, dsn string) (*sql.DB, error) {
	var sqlDriver string

	switch driver {
	case DriverPostgres:
		sqlDriver = "pgx"
	case DriverSQLite:
		sqlDriver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDB, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	return sqlDB, nil
}

// RunMigrations applies all pending migrations from fsys to sqlDB.
func RunMigrations(ctx context.Context, sqlDB *sql.DB, dialect goose.Dialect, log *logrus.Logger, fsys fs.FS) error {
	provider, err := goose.NewProvider(dialect, sqlDB, fsys)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", r.Source.Version, r.Source.Path, r.Error)
		}

		log.WithFields(logrus.Fields{
			"version":  r.Source.Version,
			"file":     r.Source.Path,
			"duration": r.Duration,
		}).Info("migration applied")
	}

	if len(results) == 0 {
		log.Debug("all migrations already applied")
	}

	return nil
}

// RunPoolMigrations applies migrations to the database behind a pgx pool.
// goose requires a *sql.DB, so a short-lived handle is opened through the
// pgx stdlib driver with the pool's connection string.
func RunPoolMigrations(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger, fsys fs.FS) error {
	sqlDB, err := Open(DriverPostgres, pool.ConnString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return RunMigrations(ctx, sqlDB, goose.DialectPostgres, log, fsys)
}
