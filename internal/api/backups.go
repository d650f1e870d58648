package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/middleware"
	"github.com/persistorai/anonforum/internal/models"
	"github.com/persistorai/anonforum/internal/service"
)

const archiveContentType = "application/gzip"

// BackupHandler serves activity and course backups and their run history.
type BackupHandler struct {
	svc   BackupService
	queue BackupQueue
	log   *logrus.Logger
}

// NewBackupHandler creates a BackupHandler. queue may be nil, which disables
// asynchronous backups.
func NewBackupHandler(svc BackupService, queue BackupQueue, log *logrus.Logger) *BackupHandler {
	return &BackupHandler{svc: svc, queue: queue, log: log}
}

// structureResponse pairs an activity with the element tree its backup uses.
type structureResponse struct {
	Activity  *models.Activity     `json:"activity"`
	Structure models.StructureNode `json:"structure"`
}

// Structure handles GET /activities/:id/structure.
func (h *BackupHandler) Structure(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userInfo, ok := queryBool(c, "userinfo", true)
	if !ok {
		return
	}

	act, err := h.svc.Activity(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "failed to resolve activity")

		return
	}

	c.JSON(http.StatusOK, structureResponse{Activity: act, Structure: h.svc.Structure(userInfo)})
}

// Backup handles POST /activities/:id/backup. With async=true the backup is
// queued and the running run is returned with 202.
func (h *BackupHandler) Backup(c *gin.Context) {
	clientID := getClientID(c)
	if clientID == "" {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	async, ok := queryBool(c, "async", false)
	if !ok {
		return
	}
	req, ok := bindBackupRequest(c)
	if !ok {
		return
	}

	if async {
		h.enqueue(c, clientID, id, req)

		return
	}

	run, err := h.svc.Backup(c.Request.Context(), clientID, id, req)
	if err != nil {
		if run != nil {
			middleware.Logger(c, h.log).WithError(err).WithField("backup_id", run.ID).Error("backup failed")
			respondError(c, http.StatusInternalServerError, ErrCodeBackupFailed, fmt.Sprintf("backup %s failed", run.ID))

			return
		}
		respondServiceError(c, h.log, err, "failed to start backup")

		return
	}

	middleware.Logger(c, h.log).WithFields(logrus.Fields{
		"activity_id": id,
		"backup_id":   run.ID,
	}).Info("audit: backup created")

	c.Header("Location", "/api/v1/backups/"+run.ID)
	c.JSON(http.StatusCreated, run)
}

func (h *BackupHandler) enqueue(c *gin.Context, clientID string, activityID int64, req models.BackupRequest) {
	if h.queue == nil {
		respondError(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "asynchronous backups are disabled")

		return
	}

	run, err := h.queue.Enqueue(c.Request.Context(), clientID, activityID, req)
	if err != nil {
		respondServiceError(c, h.log, err, "failed to queue backup")

		return
	}

	c.Header("Location", "/api/v1/backups/"+run.ID)
	c.JSON(http.StatusAccepted, run)
}

// Download handles GET /activities/:id/backup/download. The archive is built
// on the fly and neither stored nor recorded.
func (h *BackupHandler) Download(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userInfo, ok := queryBool(c, "userinfo", true)
	if !ok {
		return
	}

	archive, err := h.svc.ExportArchive(c.Request.Context(), id, userInfo)
	if err != nil {
		respondServiceError(c, h.log, err, "failed to export activity")

		return
	}

	c.Header("Content-Disposition", attachment(archive.Name))
	c.Data(http.StatusOK, archiveContentType, archive.Data)
}

// CourseBackup handles POST /courses/:id/backup.
func (h *BackupHandler) CourseBackup(c *gin.Context) {
	clientID := getClientID(c)
	if clientID == "" {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	req, ok := bindBackupRequest(c)
	if !ok {
		return
	}

	summary, err := h.svc.BackupCourse(c.Request.Context(), clientID, id, req)
	if err != nil {
		respondServiceError(c, h.log, err, "failed to back up course")

		return
	}

	c.JSON(http.StatusOK, summary)
}

// ListRuns handles GET /backups.
func (h *BackupHandler) ListRuns(c *gin.Context) {
	clientID := getClientID(c)
	if clientID == "" {
		return
	}
	activityID, ok := queryInt(c, "activity", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}

	runs, err := h.svc.ListRuns(c.Request.Context(), clientID, activityID, int(limit))
	if err != nil {
		respondServiceError(c, h.log, err, "failed to list backups")

		return
	}
	if runs == nil {
		runs = []models.BackupRun{}
	}

	c.JSON(http.StatusOK, gin.H{"backups": runs})
}

// GetRun handles GET /backups/:id.
func (h *BackupHandler) GetRun(c *gin.Context) {
	clientID := getClientID(c)
	if clientID == "" {
		return
	}

	run, err := h.svc.GetRun(c.Request.Context(), clientID, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.log, err, "failed to get backup")

		return
	}

	c.JSON(http.StatusOK, run)
}

// Archive handles GET /backups/:id/archive and streams the stored archive.
func (h *BackupHandler) Archive(c *gin.Context) {
	clientID := getClientID(c)
	if clientID == "" {
		return
	}

	rc, run, err := h.svc.OpenArchive(c.Request.Context(), clientID, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.log, err, "failed to open backup archive")

		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, run.Size, archiveContentType, rc, map[string]string{
		"Content-Disposition": attachment(service.ArchiveName(run.ModuleID, run.ID)),
	})
}

// bindBackupRequest decodes the optional JSON body of a backup request.
func bindBackupRequest(c *gin.Context) (models.BackupRequest, bool) {
	var req models.BackupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return req, false
	}

	return req, true
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
