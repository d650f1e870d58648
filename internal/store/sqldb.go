package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/backup"
)

// SQLRecords is the database/sql backend.
type SQLRecords struct {
	Base
	DB      *sql.DB
	Dialect Dialect
}

// NewSQLRecords creates an SQLRecords reading tables named prefix+name.
func NewSQLRecords(db *sql.DB, dialect Dialect, prefix string, log *logrus.Logger) *SQLRecords {
	return &SQLRecords{Base: Base{Prefix: prefix, Log: log}, DB: db, Dialect: dialect}
}

// GetRecords implements backup.Records.
func (s *SQLRecords) GetRecords(ctx context.Context, table string, where []backup.Filter, orderBy []string) ([]backup.Row, error) {
	query, args, err := buildSelect(table, where, orderBy)
	if err != nil {
		return nil, err
	}

	return s.Query(ctx, query, args...)
}

// Query implements backup.Records.
func (s *SQLRecords) Query(ctx context.Context, query string, args ...any) ([]backup.Row, error) {
	q, err := prepare(s.Dialect, s.Prefix, query)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out []backup.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning records: %w", err)
		}

		row := make(backup.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)

				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return out, nil
}

// Exec implements DB.
func (s *SQLRecords) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	q, err := prepare(s.Dialect, s.Prefix, query)
	if err != nil {
		return 0, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("executing statement: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}

	return n, nil
}

// Ping implements DB.
func (s *SQLRecords) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
