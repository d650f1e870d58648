// Package dbpool manages the PostgreSQL connection pool the backup reads
// from.
package dbpool

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	applicationName = "anonforumd"

	// A single backup query never legitimately runs longer than this.
	statementTimeout = 30 * time.Second

	// One connection streams a backup while another answers health checks.
	minPoolSize = 2
)

// Pool is the PostgreSQL pool used by the store.
type Pool struct {
	pool *pgxpool.Pool
}

// Stats is a snapshot of pool usage.
type Stats struct {
	Acquired int32
	Idle     int32
	Max      int32
}

// NewPool connects to databaseURL and verifies the connection.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*Pool, error) {
	cfg, err := poolConfig(databaseURL, maxConns)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

func poolConfig(databaseURL string, maxConns int32) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	params := cfg.ConnConfig.RuntimeParams
	if params["application_name"] == "" {
		params["application_name"] = applicationName
	}
	params["statement_timeout"] = strconv.FormatInt(statementTimeout.Milliseconds(), 10)

	cfg.MaxConns = max(maxConns, minPoolSize)
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 10 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	return cfg, nil
}

// Exec runs a statement that returns no rows.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

// Query runs a statement that returns rows.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

// HealthCheck pings the database over a pooled connection.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}

	return nil
}

// Stats reports current pool usage.
func (p *Pool) Stats() Stats {
	s := p.pool.Stat()

	return Stats{Acquired: s.AcquiredConns(), Idle: s.IdleConns(), Max: s.MaxConns()}
}

// ConnString returns the URL the pool was created from. Migrations open a
// separate database/sql handle with it.
func (p *Pool) ConnString() string {
	return p.pool.Config().ConnString()
}

// Close releases every connection.
func (p *Pool) Close() {
	p.pool.Close()
}
