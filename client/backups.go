package client

import (
	"context"
	"io"
	"net/url"
	"strconv"
)

// CourseService backs up every forum of a course.
type CourseService struct {
	c *Client
}

// Backup backs up every forum activity of a course.
func (s *CourseService) Backup(ctx context.Context, courseID int64, opts *BackupOptions) (*CourseBackup, error) {
	var resp CourseBackup
	path := "/api/v1/courses/" + strconv.FormatInt(courseID, 10) + "/backup"
	if err := s.c.post(ctx, path, opts.request(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BackupService reads the recorded backup runs of the calling API client.
type BackupService struct {
	c *Client
}

// List returns recent runs, newest first. activityID 0 lists every activity
// and limit 0 uses the server default.
func (s *BackupService) List(ctx context.Context, activityID int64, limit int) ([]BackupRun, error) {
	params := url.Values{}
	if activityID > 0 {
		params.Set("activity", strconv.FormatInt(activityID, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Backups []BackupRun `json:"backups"`
	}
	if err := s.c.get(ctx, "/api/v1/backups", params, &resp); err != nil {
		return nil, err
	}
	return resp.Backups, nil
}

// Get returns one run.
func (s *BackupService) Get(ctx context.Context, id string) (*BackupRun, error) {
	var run BackupRun
	if err := s.c.get(ctx, "/api/v1/backups/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Archive copies the stored archive of a completed run to w.
func (s *BackupService) Archive(ctx context.Context, id string, w io.Writer) (*Download, error) {
	return s.c.download(ctx, "/api/v1/backups/"+url.PathEscape(id)+"/archive", nil, w)
}
