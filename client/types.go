package client

import "github.com/persistorai/anonforum/internal/models"

// Response types shared with the server.
type (
	Activity      = models.Activity
	StructureNode = models.StructureNode
	BackupRun     = models.BackupRun
	BackupStatus  = models.BackupStatus
	CourseBackup  = models.CourseBackup
	PostPage      = models.PostPage
	UserPost      = models.UserPost
)

// Backup run states.
const (
	BackupRunning   = models.BackupRunning
	BackupCompleted = models.BackupCompleted
	BackupFailed    = models.BackupFailed
)

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	Database         string  `json:"database"`
	SchemaVersion    int     `json:"schema_version"`
	WebSocketClients int     `json:"websocket_clients"`
	QueuedBackups    int     `json:"queued_backups"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// ReadyResponse is returned by the readiness endpoint.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ActivityStructure is an activity with the element tree its backup uses.
type ActivityStructure struct {
	Activity  Activity      `json:"activity"`
	Structure StructureNode `json:"structure"`
}

// BackupOptions controls what a backup includes.
type BackupOptions struct {
	// ExcludeUserInfo leaves out discussions, posts and per-user state.
	ExcludeUserInfo bool
}

func (o *BackupOptions) request() models.BackupRequest {
	var req models.BackupRequest
	if o != nil && o.ExcludeUserInfo {
		f := false
		req.UserInfo = &f
	}
	return req
}

// Download describes an archive copied to a writer.
type Download struct {
	FileName string
	Bytes    int64
}

// PostListOptions selects a page of a user's posts.
type PostListOptions struct {
	CourseID    int64
	Discussions bool // list started discussions instead of posts
	Page        int
	PerPage     int
}
