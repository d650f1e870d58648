// Package migrations embeds the SQL schema migrations.
//
// The SQL is kept portable between PostgreSQL and SQLite: explicit BIGINT
// keys, TEXT columns and no dialect-specific defaults.
package migrations

import "embed"

// FS contains the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS
