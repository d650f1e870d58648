package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/persistorai/anonforum/internal/backup"
	"github.com/persistorai/anonforum/internal/models"
)

const runColumns = `id, client_id, activity_id, module_id, course_id, userinfo, status,
	location, size, row_count, element_rows, error, started_at, finished_at`

// RunStore records backup runs.
type RunStore struct {
	DB DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db DB) *RunStore {
	return &RunStore{DB: db}
}

// CreateRun inserts a run in the running state.
func (s *RunStore) CreateRun(ctx context.Context, clientID string, run *models.BackupRun) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO {backup_runs}
		(id, client_id, activity_id, module_id, course_id, userinfo, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, clientID, run.ActivityID, run.ModuleID, run.CourseID,
		boolInt(run.UserInfo), string(run.Status), run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("creating backup run %s: %w", run.ID, err)
	}

	return nil
}

// FinishRun stores the final state of a run.
func (s *RunStore) FinishRun(ctx context.Context, run *models.BackupRun) error {
	elementRows, err := json.Marshal(run.ElementRows)
	if err != nil {
		return fmt.Errorf("marshalling element rows: %w", err)
	}

	var finished int64
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UnixMilli()
	}

	n, err := s.DB.Exec(ctx, `UPDATE {backup_runs}
		   SET status = ?, location = ?, size = ?, row_count = ?, element_rows = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), run.Location, run.Size, run.Rows, string(elementRows), run.Error, finished, run.ID)
	if err != nil {
		return fmt.Errorf("finishing backup run %s: %w", run.ID, err)
	}
	if n == 0 {
		return models.ErrBackupNotFound
	}

	return nil
}

// GetRun returns a run visible to clientID.
func (s *RunStore) GetRun(ctx context.Context, clientID, runID string) (*models.BackupRun, error) {
	rows, err := s.DB.Query(ctx,
		"SELECT "+runColumns+" FROM {backup_runs} WHERE id = ? AND client_id = ?", runID, clientID)
	if err != nil {
		return nil, fmt.Errorf("getting backup run %s: %w", runID, err)
	}
	if len(rows) == 0 {
		return nil, models.ErrBackupNotFound
	}

	return scanRun(rows[0])
}

// ListRuns returns the most recent runs of clientID, optionally limited to one
// activity (activityID > 0).
func (s *RunStore) ListRuns(ctx context.Context, clientID string, activityID int64, limit int) ([]models.BackupRun, error) {
	query := "SELECT " + runColumns + " FROM {backup_runs} WHERE client_id = ?"
	args := []any{clientID}
	if activityID > 0 {
		query += " AND activity_id = ?"
		args = append(args, activityID)
	}
	query += " ORDER BY started_at DESC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing backup runs: %w", err)
	}

	out := make([]models.BackupRun, 0, len(rows))
	for _, row := range rows {
		run, err := scanRun(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}

	return out, nil
}

func scanRun(row backup.Row) (*models.BackupRun, error) {
	run := models.BackupRun{
		ID:       stringCol(row, "id"),
		Status:   models.BackupStatus(stringCol(row, "status")),
		Location: stringCol(row, "location"),
		Error:    stringCol(row, "error"),
	}

	ints := make(map[string]int64, 8)
	for _, col := range []string{"activity_id", "module_id", "course_id", "userinfo", "size", "row_count", "started_at", "finished_at"} {
		v, err := int64Col(row, col)
		if err != nil {
			return nil, err
		}
		ints[col] = v
	}

	run.ActivityID = ints["activity_id"]
	run.ModuleID = ints["module_id"]
	run.CourseID = ints["course_id"]
	run.UserInfo = ints["userinfo"] != 0
	run.Size = ints["size"]
	run.Rows = int(ints["row_count"])
	run.StartedAt = time.UnixMilli(ints["started_at"]).UTC()
	if f := ints["finished_at"]; f > 0 {
		t := time.UnixMilli(f).UTC()
		run.FinishedAt = &t
	}

	if raw := stringCol(row, "element_rows"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &run.ElementRows); err != nil {
			return nil, fmt.Errorf("unmarshalling element rows: %w", err)
		}
	}

	return &run, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
