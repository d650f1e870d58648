package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persistorai/anonforum/internal/backup"
	"github.com/persistorai/anonforum/internal/store"
)

func newMockRecords(t *testing.T, dialect store.Dialect, prefix string) (*store.SQLRecords, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return store.NewSQLRecords(sqlDB, dialect, prefix, log), mock
}

func TestSQLRecords_GetRecordsQueryShape(t *testing.T) {
	recs, mock := newMockRecords(t, store.DialectPostgres, "mdl_")

	mock.ExpectQuery("SELECT * FROM mdl_anonforum_posts WHERE discussion = $1 ORDER BY id ASC").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject"}).
			AddRow(int64(100), []byte("Welcome")).
			AddRow(int64(101), nil))

	rows, err := recs.GetRecords(context.Background(), "anonforum_posts",
		[]backup.Filter{{Column: "discussion", Value: int64(5)}}, []string{"id ASC"})
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, backup.Row{"id": int64(100), "subject": "Welcome"}, rows[0], "[]byte columns become strings")
	assert.Nil(t, rows[1]["subject"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRecords_QueryExpandsTables(t *testing.T) {
	recs, mock := newMockRecords(t, store.DialectSQLite, "")

	mock.ExpectQuery("SELECT * FROM anonforum_discussions WHERE forum = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	rows, err := recs.Query(context.Background(), "SELECT * FROM {anonforum_discussions} WHERE forum = ?", int64(1))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRecords_QueryError(t *testing.T) {
	recs, mock := newMockRecords(t, store.DialectSQLite, "")

	mock.ExpectQuery("SELECT * FROM rating").WillReturnError(errors.New("disk I/O error"))

	_, err := recs.GetRecords(context.Background(), "rating", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying records")
}

func TestSQLRecords_Exec(t *testing.T) {
	recs, mock := newMockRecords(t, store.DialectPostgres, "")

	mock.ExpectExec("DELETE FROM backup_runs WHERE id = $1").
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := recs.Exec(context.Background(), "DELETE FROM {backup_runs} WHERE id = ?", "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRecords_RejectsBadTable(t *testing.T) {
	recs, _ := newMockRecords(t, store.DialectSQLite, "")

	_, err := recs.Query(context.Background(), "SELECT * FROM {bad name}")
	require.ErrorIs(t, err, store.ErrInvalidIdentifier)
}
