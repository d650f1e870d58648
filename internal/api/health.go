// Package api provides HTTP handlers for the forum backup service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/db"
	"github.com/persistorai/anonforum/internal/ws"
)

const (
	livenessPingTimeout = 2 * time.Second
	readinessTimeout    = 3 * time.Second
)

// Readiness check outcomes.
const (
	checkOK            = "ok"
	checkError         = "error"
	checkUnknown       = "unknown"
	checkNotConfigured = "not_configured"
)

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	db      HealthDB
	hub     *ws.Hub
	queue   BackupQueue
	log     *logrus.Logger
	version string
	started time.Time
}

// NewHealthHandler creates a HealthHandler. Any of database, hub and queue
// may be nil.
func NewHealthHandler(database HealthDB, hub *ws.Hub, queue BackupQueue, log *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{db: database, hub: hub, queue: queue, log: log, version: version, started: time.Now()}
}

type healthResponse struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	Database         string  `json:"database"`
	SchemaVersion    int     `json:"schema_version"`
	WebSocketClients int     `json:"websocket_clients"`
	QueuedBackups    int     `json:"queued_backups"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Liveness handles GET /api/v1/health. It always answers 200; the database
// state is informational.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		Database:      h.databaseState(c.Request.Context()),
		SchemaVersion: db.SchemaVersion(),
		UptimeSeconds: time.Since(h.started).Seconds(),
	}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}
	if h.queue != nil {
		resp.QueuedBackups = h.queue.Pending()
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HealthHandler) databaseState(ctx context.Context) string {
	if h.db == nil {
		return checkNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, livenessPingTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return "disconnected"
	}

	return "connected"
}

// probe is one readiness check. A probe only runs when every earlier probe
// passed; otherwise it reports unknown.
type probe struct {
	name  string
	check func(ctx context.Context) error
}

// Readiness handles GET /api/v1/ready.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, readinessResponse{
			Status: "not_ready",
			Checks: map[string]string{"database": checkNotConfigured, "schema": checkUnknown},
		})

		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	probes := []probe{
		{name: "database", check: h.db.Ping},
		{name: "schema", check: h.checkSchema},
	}

	checks := make(map[string]string, len(probes))
	failed := false
	for _, p := range probes {
		if failed {
			checks[p.name] = checkUnknown

			continue
		}
		if err := p.check(ctx); err != nil {
			h.log.WithError(err).WithField("check", p.name).Error("readiness check failed")
			checks[p.name] = checkError
			failed = true

			continue
		}
		checks[p.name] = checkOK
	}

	if failed {
		c.JSON(http.StatusServiceUnavailable, readinessResponse{Status: "not_ready", Checks: checks})

		return
	}

	c.JSON(http.StatusOK, readinessResponse{Status: "ready", Checks: checks})
}

// checkSchema verifies the service tables exist.
func (h *HealthHandler) checkSchema(ctx context.Context) error {
	if _, err := h.db.Query(ctx, "SELECT COUNT(*) AS n FROM {backup_runs}"); err != nil {
		return fmt.Errorf("schema check: %w", err)
	}

	return nil
}
