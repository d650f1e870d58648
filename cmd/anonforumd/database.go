package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/config"
	"github.com/persistorai/anonforum/internal/db"
	"github.com/persistorai/anonforum/internal/db/migrations"
	"github.com/persistorai/anonforum/internal/dbpool"
	"github.com/persistorai/anonforum/internal/metrics"
	"github.com/persistorai/anonforum/internal/store"
)

const poolStatsInterval = 15 * time.Second

// database is the configured backend. Postgres goes through a pgx pool,
// SQLite through database/sql.
type database struct {
	store.DB

	driver string
	pool   *dbpool.Pool
	sqlDB  *sql.DB
}

func openDatabase(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*database, error) {
	switch cfg.DBDriver {
	case db.DriverPostgres:
		pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}

		return &database{
			DB:     store.NewPGRecords(pool, cfg.TablePrefix, log),
			driver: cfg.DBDriver,
			pool:   pool,
		}, nil

	case db.DriverSQLite:
		sqlDB, err := db.Open(cfg.DBDriver, cfg.DatabaseURL.Value())
		if err != nil {
			return nil, err
		}

		d := &database{
			DB:     store.NewSQLRecords(sqlDB, store.DialectSQLite, cfg.TablePrefix, log),
			driver: cfg.DBDriver,
			sqlDB:  sqlDB,
		}
		if err := d.Ping(ctx); err != nil {
			sqlDB.Close()

			return nil, fmt.Errorf("pinging database: %w", err)
		}

		return d, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

// migrate applies the embedded migrations.
func (d *database) migrate(ctx context.Context, log *logrus.Logger) error {
	if d.pool != nil {
		return db.RunPoolMigrations(ctx, d.pool, log, migrations.FS)
	}

	dialect, err := db.GooseDialect(d.driver)
	if err != nil {
		return err
	}

	return db.RunMigrations(ctx, d.sqlDB, dialect, log, migrations.FS)
}

// reportPoolStats publishes pool usage until ctx is done. It is a no-op for
// SQLite.
func (d *database) reportPoolStats(ctx context.Context) {
	if d.pool == nil {
		return
	}

	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()

	for {
		st := d.pool.Stats()
		metrics.DBConnections.WithLabelValues("acquired").Set(float64(st.Acquired))
		metrics.DBConnections.WithLabelValues("idle").Set(float64(st.Idle))
		metrics.DBConnections.WithLabelValues("max").Set(float64(st.Max))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *database) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
	if d.sqlDB != nil {
		d.sqlDB.Close()
	}
}
