package models

import "time"

// BackupStatus is the lifecycle state of a backup run.
type BackupStatus string

// Backup run states.
const (
	BackupRunning   BackupStatus = "running"
	BackupCompleted BackupStatus = "completed"
	BackupFailed    BackupStatus = "failed"
)

// BackupRequest holds the options of a backup request.
type BackupRequest struct {
	// UserInfo includes discussions, posts and per-user state. Defaults to true.
	UserInfo *bool `json:"userinfo,omitempty"`
}

// IncludeUserInfo resolves the UserInfo default.
func (r BackupRequest) IncludeUserInfo() bool {
	return r.UserInfo == nil || *r.UserInfo
}

// BackupRun records one activity backup.
type BackupRun struct {
	ID          string         `json:"id"`
	ActivityID  int64          `json:"activity_id"`
	ModuleID    int64          `json:"module_id"`
	CourseID    int64          `json:"course_id"`
	UserInfo    bool           `json:"userinfo"`
	Status      BackupStatus   `json:"status"`
	Location    string         `json:"location,omitempty"`
	Size        int64          `json:"size"`
	Rows        int            `json:"rows"`
	ElementRows map[string]int `json:"element_rows,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

// CourseBackup summarises the backup of every forum in a course.
type CourseBackup struct {
	CourseID  int64       `json:"course_id"`
	Completed int         `json:"completed"`
	Failed    int         `json:"failed"`
	Runs      []BackupRun `json:"runs"`
}
