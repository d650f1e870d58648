package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/backup"
	"github.com/persistorai/anonforum/internal/dbpool"
)

// PGRecords is the PostgreSQL backend.
type PGRecords struct {
	Base
	Pool *dbpool.Pool
}

// NewPGRecords creates a PGRecords reading tables named prefix+name.
func NewPGRecords(pool *dbpool.Pool, prefix string, log *logrus.Logger) *PGRecords {
	return &PGRecords{Base: Base{Prefix: prefix, Log: log}, Pool: pool}
}

// GetRecords implements backup.Records.
func (s *PGRecords) GetRecords(ctx context.Context, table string, where []backup.Filter, orderBy []string) ([]backup.Row, error) {
	query, args, err := buildSelect(table, where, orderBy)
	if err != nil {
		return nil, err
	}

	return s.Query(ctx, query, args...)
}

// Query implements backup.Records.
func (s *PGRecords) Query(ctx context.Context, query string, args ...any) ([]backup.Row, error) {
	q, err := prepare(DialectPostgres, s.Prefix, query)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("scanning records: %w", err)
	}

	out := make([]backup.Row, len(maps))
	for i, m := range maps {
		out[i] = backup.Row(m)
	}

	return out, nil
}

// Exec implements DB.
func (s *PGRecords) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	q, err := prepare(DialectPostgres, s.Prefix, query)
	if err != nil {
		return 0, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("executing statement: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Ping implements DB.
func (s *PGRecords) Ping(ctx context.Context) error {
	return s.Pool.HealthCheck(ctx)
}
