package client

import (
	"context"
	"io"
	"net/url"
	"strconv"
)

// ActivityService backs up single forum activities.
type ActivityService struct {
	c *Client
}

func activityPath(id int64, suffix string) string {
	return "/api/v1/activities/" + strconv.FormatInt(id, 10) + suffix
}

func userInfoParams(opts *BackupOptions) url.Values {
	params := url.Values{}
	if opts != nil && opts.ExcludeUserInfo {
		params.Set("userinfo", "false")
	}
	return params
}

// Structure returns the element tree used to back up an activity.
func (s *ActivityService) Structure(ctx context.Context, id int64, opts *BackupOptions) (*ActivityStructure, error) {
	var resp ActivityStructure
	if err := s.c.get(ctx, activityPath(id, "/structure"), userInfoParams(opts), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Backup backs up an activity to the server's destination and waits for it.
func (s *ActivityService) Backup(ctx context.Context, id int64, opts *BackupOptions) (*BackupRun, error) {
	var run BackupRun
	if err := s.c.post(ctx, activityPath(id, "/backup"), opts.request(), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// BackupAsync queues a backup and returns the running run. Poll
// Backups.Get or subscribe to Events for its outcome.
func (s *ActivityService) BackupAsync(ctx context.Context, id int64, opts *BackupOptions) (*BackupRun, error) {
	var run BackupRun
	if err := s.c.post(ctx, activityPath(id, "/backup?async=true"), opts.request(), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Download builds an archive on the server and copies it to w without
// storing it.
func (s *ActivityService) Download(ctx context.Context, id int64, opts *BackupOptions, w io.Writer) (*Download, error) {
	return s.c.download(ctx, activityPath(id, "/backup/download"), userInfoParams(opts), w)
}
