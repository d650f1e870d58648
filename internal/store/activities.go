package store

import (
	"context"
	"fmt"

	"github.com/persistorai/anonforum/internal/backup"
	"github.com/persistorai/anonforum/internal/models"
)

const activitySelect = `
	SELECT f.id, f.course, f.name, cm.id AS cmid, ctx.id AS contextid
	  FROM {anonforum} f
	  JOIN {course_modules} cm ON cm.instance = f.id
	  JOIN {modules} m ON m.id = cm.module AND m.name = ?
	  JOIN {context} ctx ON ctx.instanceid = cm.id AND ctx.contextlevel = ?`

// ActivityStore resolves forum instances to their course module and context.
type ActivityStore struct {
	DB DB
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(db DB) *ActivityStore {
	return &ActivityStore{DB: db}
}

// GetActivity returns the forum instance with the given id.
func (s *ActivityStore) GetActivity(ctx context.Context, activityID int64) (*models.Activity, error) {
	rows, err := s.DB.Query(ctx, activitySelect+" WHERE f.id = ?",
		"anonforum", models.ContextLevelModule, activityID)
	if err != nil {
		return nil, fmt.Errorf("looking up activity %d: %w", activityID, err)
	}
	if len(rows) == 0 {
		return nil, models.ErrActivityNotFound
	}

	return scanActivity(rows[0])
}

// ListCourseActivities returns every forum instance of a course ordered by
// course module id.
func (s *ActivityStore) ListCourseActivities(ctx context.Context, courseID int64) ([]models.Activity, error) {
	rows, err := s.DB.Query(ctx, activitySelect+" WHERE f.course = ? ORDER BY cm.id ASC",
		"anonforum", models.ContextLevelModule, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing activities of course %d: %w", courseID, err)
	}

	out := make([]models.Activity, 0, len(rows))
	for _, row := range rows {
		a, err := scanActivity(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}

	return out, nil
}

func scanActivity(row backup.Row) (*models.Activity, error) {
	var a models.Activity
	var err error

	if a.ID, err = int64Col(row, "id"); err != nil {
		return nil, err
	}
	if a.CourseID, err = int64Col(row, "course"); err != nil {
		return nil, err
	}
	if a.ModuleID, err = int64Col(row, "cmid"); err != nil {
		return nil, err
	}
	if a.ContextID, err = int64Col(row, "contextid"); err != nil {
		return nil, err
	}
	a.Name = stringCol(row, "name")

	return &a, nil
}
