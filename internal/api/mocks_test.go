package api_test

import (
	"context"
	"io"

	"github.com/persistorai/anonforum/internal/backup"
	"github.com/persistorai/anonforum/internal/models"
	"github.com/persistorai/anonforum/internal/service"
)

// mockBackupService implements api.BackupService for testing.
type mockBackupService struct {
	structureFn    func(includeUserInfo bool) models.StructureNode
	activityFn     func(ctx context.Context, activityID int64) (*models.Activity, error)
	exportFn       func(ctx context.Context, activityID int64, includeUserInfo bool) (*service.Archive, error)
	backupFn       func(ctx context.Context, clientID string, activityID int64, req models.BackupRequest) (*models.BackupRun, error)
	backupCourseFn func(ctx context.Context, clientID string, courseID int64, req models.BackupRequest) (*models.CourseBackup, error)
	getRunFn       func(ctx context.Context, clientID, runID string) (*models.BackupRun, error)
	listRunsFn     func(ctx context.Context, clientID string, activityID int64, limit int) ([]models.BackupRun, error)
	openArchiveFn  func(ctx context.Context, clientID, runID string) (io.ReadCloser, *models.BackupRun, error)
}

func (m *mockBackupService) Structure(includeUserInfo bool) models.StructureNode {
	return m.structureFn(includeUserInfo)
}

func (m *mockBackupService) Activity(ctx context.Context, activityID int64) (*models.Activity, error) {
	return m.activityFn(ctx, activityID)
}

func (m *mockBackupService) ExportArchive(ctx context.Context, activityID int64, includeUserInfo bool) (*service.Archive, error) {
	return m.exportFn(ctx, activityID, includeUserInfo)
}

func (m *mockBackupService) Backup(ctx context.Context, clientID string, activityID int64, req models.BackupRequest) (*models.BackupRun, error) {
	return m.backupFn(ctx, clientID, activityID, req)
}

func (m *mockBackupService) BackupCourse(ctx context.Context, clientID string, courseID int64, req models.BackupRequest) (*models.CourseBackup, error) {
	return m.backupCourseFn(ctx, clientID, courseID, req)
}

func (m *mockBackupService) GetRun(ctx context.Context, clientID, runID string) (*models.BackupRun, error) {
	return m.getRunFn(ctx, clientID, runID)
}

func (m *mockBackupService) ListRuns(ctx context.Context, clientID string, activityID int64, limit int) ([]models.BackupRun, error) {
	return m.listRunsFn(ctx, clientID, activityID, limit)
}

func (m *mockBackupService) OpenArchive(ctx context.Context, clientID, runID string) (io.ReadCloser, *models.BackupRun, error) {
	return m.openArchiveFn(ctx, clientID, runID)
}

// mockQueue implements api.BackupQueue for testing.
type mockQueue struct {
	enqueueFn func(ctx context.Context, clientID string, activityID int64, req models.BackupRequest) (*models.BackupRun, error)
	pending   int
}

func (m *mockQueue) Enqueue(ctx context.Context, clientID string, activityID int64, req models.BackupRequest) (*models.BackupRun, error) {
	return m.enqueueFn(ctx, clientID, activityID, req)
}

func (m *mockQueue) Pending() int { return m.pending }

// mockPostService implements api.PostService for testing.
type mockPostService struct {
	listFn func(ctx context.Context, q models.PostQuery) (*models.PostPage, error)
}

func (m *mockPostService) ListUserPosts(ctx context.Context, q models.PostQuery) (*models.PostPage, error) {
	return m.listFn(ctx, q)
}

// mockHealthDB implements api.HealthDB for testing.
type mockHealthDB struct {
	pingErr  error
	queryErr error
}

func (m *mockHealthDB) Ping(context.Context) error { return m.pingErr }

func (m *mockHealthDB) Query(context.Context, string, ...any) ([]backup.Row, error) {
	return nil, m.queryErr
}

// mockClientLookup implements middleware.ClientLookup for testing.
type mockClientLookup struct {
	keys map[string]string
}

func (m *mockClientLookup) GetClientByAPIKey(_ context.Context, apiKey string) (string, error) {
	id, ok := m.keys[apiKey]
	if !ok {
		return "", models.ErrClientNotFound
	}

	return id, nil
}
