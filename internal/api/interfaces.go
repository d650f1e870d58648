package api

import (
	"context"
	"io"

	"github.com/persistorai/anonforum/internal/backup"
	"github.com/persistorai/anonforum/internal/models"
	"github.com/persistorai/anonforum/internal/service"
)

// BackupService defines the backup operations used by BackupHandler.
type BackupService interface {
	Structure(includeUserInfo bool) models.StructureNode
	Activity(ctx context.Context, activityID int64) (*models.Activity, error)
	ExportArchive(ctx context.Context, activityID int64, includeUserInfo bool) (*service.Archive, error)
	Backup(ctx context.Context, clientID string, activityID int64, req models.BackupRequest) (*models.BackupRun, error)
	BackupCourse(ctx context.Context, clientID string, courseID int64, req models.BackupRequest) (*models.CourseBackup, error)
	GetRun(ctx context.Context, clientID, runID string) (*models.BackupRun, error)
	ListRuns(ctx context.Context, clientID string, activityID int64, limit int) ([]models.BackupRun, error)
	OpenArchive(ctx context.Context, clientID, runID string) (io.ReadCloser, *models.BackupRun, error)
}

// BackupQueue accepts backups to run in the background.
type BackupQueue interface {
	Enqueue(ctx context.Context, clientID string, activityID int64, req models.BackupRequest) (*models.BackupRun, error)
	Pending() int
}

// PostService lists the posts a user wrote.
type PostService interface {
	ListUserPosts(ctx context.Context, q models.PostQuery) (*models.PostPage, error)
}

// HealthDB is the database surface probed by the health endpoints.
type HealthDB interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, query string, args ...any) ([]backup.Row, error)
}
