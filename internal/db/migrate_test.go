package db_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persistorai/anonforum/internal/db"
	"github.com/persistorai/anonforum/internal/db/migrations"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

func TestRunMigrations_SQLite(t *testing.T) {
	ctx := context.Background()

	sqlDB, err := db.Open(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	dialect, err := db.GooseDialect(db.DriverSQLite)
	require.NoError(t, err)

	require.NoError(t, db.RunMigrations(ctx, sqlDB, dialect, testLogger(), migrations.FS))

	for _, table := range []string{
		"anonforum", "anonforum_discussions", "anonforum_posts", "rating",
		"anonforum_subscriptions", "anonforum_digests", "anonforum_read",
		"anonforum_track_prefs", "course_modules", "context", "modules",
		"api_clients", "backup_runs",
	} {
		var name string
		err := sqlDB.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	var module string
	require.NoError(t, sqlDB.QueryRowContext(ctx, "SELECT name FROM modules WHERE id = 1").Scan(&module))
	assert.Equal(t, "anonforum", module)

	// A second run applies nothing.
	require.NoError(t, db.RunMigrations(ctx, sqlDB, dialect, testLogger(), migrations.FS))
}

func TestGooseDialect(t *testing.T) {
	_, err := db.GooseDialect(db.DriverPostgres)
	assert.NoError(t, err)

	_, err = db.GooseDialect("mysql")
	assert.Error(t, err)

	_, err = db.Open("mysql", "")
	assert.Error(t, err)
}

func TestSchemaVersion(t *testing.T) {
	assert.Equal(t, 2, db.SchemaVersion())
}
