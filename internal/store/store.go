// Package store provides data access for forum backups.
//
// Two interchangeable backends implement [DB]: [PGRecords] on a pgx pool and
// [SQLRecords] on database/sql (SQLite for local use). Queries are written
// once with "?" placeholders and "{table}" names; each backend rewrites them
// for its dialect and the configured table prefix. The focused stores in this
// package (activities, posts, clients, backup runs) are built on DB and never
// import each other.
package store

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/backup"
)

const defaultQueryTimeout = 30 * time.Second

// DB is the query surface shared by both backends.
type DB interface {
	backup.Records

	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error
}

// Base contains shared dependencies for both backends.
type Base struct {
	Prefix string
	Log    *logrus.Logger
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}
