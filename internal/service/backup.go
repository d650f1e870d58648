// Package service implements the backup and post listing logic behind the API.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/anonforum/internal/anonforum"
	"github.com/persistorai/anonforum/internal/backup"
	"github.com/persistorai/anonforum/internal/metrics"
	"github.com/persistorai/anonforum/internal/models"
	"github.com/persistorai/anonforum/internal/storage"
	"github.com/persistorai/anonforum/internal/ws"
)

// Run listing bounds.
const (
	DefaultRunLimit = 20
	MaxRunLimit     = 100
)

// activityLookup resolves forum instances. Defined at the consumer so the
// store package depends on no service types.
type activityLookup interface {
	GetActivity(ctx context.Context, activityID int64) (*models.Activity, error)
	ListCourseActivities(ctx context.Context, courseID int64) ([]models.Activity, error)
}

// runRecorder persists backup run history.
type runRecorder interface {
	CreateRun(ctx context.Context, clientID string, run *models.BackupRun) error
	FinishRun(ctx context.Context, run *models.BackupRun) error
	GetRun(ctx context.Context, clientID, runID string) (*models.BackupRun, error)
	ListRuns(ctx context.Context, clientID string, activityID int64, limit int) ([]models.BackupRun, error)
}

// archiveSink stores finished archives.
type archiveSink interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Publisher delivers progress events of one run to the API client that
// asked for the backup.
type Publisher interface {
	Publish(eventType, apiClientID, runID string, data any)
}

// BackupDeps holds the collaborators of a BackupService.
type BackupDeps struct {
	Records    backup.Records
	Activities activityLookup
	Runs       runRecorder
	Sink       archiveSink
	Events     Publisher // optional
	Log        *logrus.Logger
	WWWRoot    string // enables content link encoding when set
	Workers    int    // concurrent activity backups in a course backup
}

// BackupService exports forum activities into backup archives.
type BackupService struct {
	exporter   *backup.Exporter
	activities activityLookup
	runs       runRecorder
	sink       archiveSink
	events     Publisher
	workers    int
	log        *logrus.Logger
	now        func() time.Time
}

// NewBackupService creates a BackupService.
func NewBackupService(deps BackupDeps) *BackupService {
	var encoders []backup.ContentEncoder
	if deps.WWWRoot != "" {
		encoders = append(encoders, anonforum.NewLinkEncoder(deps.WWWRoot))
	}

	return &BackupService{
		exporter:   backup.NewExporter(deps.Records, deps.Log, encoders...),
		activities: deps.Activities,
		runs:       deps.Runs,
		sink:       deps.Sink,
		events:     deps.Events,
		workers:    max(deps.Workers, 1),
		log:        deps.Log,
		now:        time.Now,
	}
}

// Archive is a backup built in memory for direct download.
type Archive struct {
	Name     string
	Activity models.Activity
	Data     []byte
	Rows     map[string]int
}

// event is the payload of backup progress events.
type event struct {
	BackupID   string `json:"backup_id"`
	ActivityID int64  `json:"activity_id"`
	Status     string `json:"status"`
	Rows       int    `json:"rows,omitempty"`
	Location   string `json:"location,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Structure describes the backup element tree.
func (s *BackupService) Structure(includeUserInfo bool) models.StructureNode {
	return describe(anonforum.Structure(includeUserInfo))
}

// Activity returns the forum instance with the given id.
func (s *BackupService) Activity(ctx context.Context, activityID int64) (*models.Activity, error) {
	if activityID <= 0 {
		return nil, models.ErrInvalidID
	}

	act, err := s.activities.GetActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("resolving activity %d: %w", activityID, err)
	}

	return act, nil
}

// ExportArchive builds the archive of one activity without storing it or
// recording a run.
func (s *BackupService) ExportArchive(ctx context.Context, activityID int64, includeUserInfo bool) (*Archive, error) {
	act, err := s.Activity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	res, err := s.build(ctx, act, includeUserInfo, s.now().UTC(), &buf)
	if err != nil {
		return nil, err
	}

	return &Archive{
		Name:     ArchiveName(act.ModuleID, ""),
		Activity: *act,
		Data:     buf.Bytes(),
		Rows:     res.Rows,
	}, nil
}

// Backup exports one activity, stores the archive and records the run. A
// failed export is recorded and returned as an error together with the run.
func (s *BackupService) Backup(ctx context.Context, clientID string, activityID int64, req models.BackupRequest) (*models.BackupRun, error) {
	act, err := s.Activity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	run, err := s.begin(ctx, clientID, act, req.IncludeUserInfo())
	if err != nil {
		return nil, err
	}

	if err := s.execute(ctx, clientID, act, run); err != nil {
		return run, err
	}

	return run, nil
}

// BackupCourse backs up every forum of a course, running up to the configured
// number of activity backups at once. Failed activities are reported in the
// summary; only bookkeeping failures abort the course backup.
func (s *BackupService) BackupCourse(ctx context.Context, clientID string, courseID int64, req models.BackupRequest) (*models.CourseBackup, error) {
	if courseID <= 0 {
		return nil, models.ErrInvalidID
	}

	acts, err := s.activities.ListCourseActivities(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing course %d activities: %w", courseID, err)
	}
	if len(acts) == 0 {
		return nil, models.ErrCourseNotFound
	}

	runs := make([]*models.BackupRun, len(acts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range acts {
		g.Go(func() error {
			// A failed begin cancels gctx; later activities are not started.
			if err := gctx.Err(); err != nil {
				return err
			}

			run, err := s.begin(gctx, clientID, &acts[i], req.IncludeUserInfo())
			if err != nil {
				return err
			}
			runs[i] = run

			if err := s.execute(gctx, clientID, &acts[i], run); err != nil {
				s.log.WithError(err).WithField("activity_id", acts[i].ID).Warn("course backup: activity failed")
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backing up course %d: %w", courseID, err)
	}

	summary := &models.CourseBackup{CourseID: courseID, Runs: make([]models.BackupRun, 0, len(runs))}
	for _, run := range runs {
		if run.Status == models.BackupCompleted {
			summary.Completed++
		} else {
			summary.Failed++
		}
		summary.Runs = append(summary.Runs, *run)
	}

	s.log.WithFields(logrus.Fields{
		"course_id": courseID,
		"completed": summary.Completed,
		"failed":    summary.Failed,
	}).Info("course backup finished")

	return summary, nil
}

// GetRun returns one recorded run.
func (s *BackupService) GetRun(ctx context.Context, clientID, runID string) (*models.BackupRun, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, models.ErrBackupNotFound
	}

	run, err := s.runs.GetRun(ctx, clientID, runID)
	if err != nil {
		return nil, fmt.Errorf("getting backup %s: %w", runID, err)
	}

	return run, nil
}

// ListRuns returns recent runs, newest first. limit 0 selects the default.
func (s *BackupService) ListRuns(ctx context.Context, clientID string, activityID int64, limit int) ([]models.BackupRun, error) {
	if activityID < 0 {
		return nil, models.ErrInvalidID
	}
	if limit == 0 {
		limit = DefaultRunLimit
	}
	if limit < 1 || limit > MaxRunLimit {
		return nil, models.ErrOutOfRange("limit", 1, MaxRunLimit)
	}

	runs, err := s.runs.ListRuns(ctx, clientID, activityID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	return runs, nil
}

// OpenArchive opens the stored archive of a completed run.
func (s *BackupService) OpenArchive(ctx context.Context, clientID, runID string) (io.ReadCloser, *models.BackupRun, error) {
	run, err := s.GetRun(ctx, clientID, runID)
	if err != nil {
		return nil, nil, err
	}
	if run.Status != models.BackupCompleted {
		return nil, run, models.ErrBackupNotReady
	}

	rc, err := s.sink.Open(ctx, archiveKey(run))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, run, models.ErrBackupNotFound
		}

		return nil, run, fmt.Errorf("opening archive of backup %s: %w", runID, err)
	}

	return rc, run, nil
}

// ArchiveName returns the file name of an activity archive. runID is
// appended when non-empty.
func ArchiveName(moduleID int64, runID string) string {
	name := fmt.Sprintf("%s_%d", anonforum.ModuleName, moduleID)
	if runID != "" {
		name += "-" + runID
	}

	return name + ".tar.gz"
}

// archiveKey is the sink key of a run's archive.
func archiveKey(run *models.BackupRun) string {
	return fmt.Sprintf("course_%d/%s", run.CourseID, ArchiveName(run.ModuleID, run.ID))
}

// begin records a new run in the running state.
func (s *BackupService) begin(ctx context.Context, clientID string, act *models.Activity, userInfo bool) (*models.BackupRun, error) {
	run := &models.BackupRun{
		ID:         uuid.NewString(),
		ActivityID: act.ID,
		ModuleID:   act.ModuleID,
		CourseID:   act.CourseID,
		UserInfo:   userInfo,
		Status:     models.BackupRunning,
		StartedAt:  s.now().UTC().Truncate(time.Millisecond),
	}

	if err := s.runs.CreateRun(ctx, clientID, run); err != nil {
		return nil, fmt.Errorf("recording backup of activity %d: %w", act.ID, err)
	}

	s.publish(ws.EventBackupStarted, clientID, run)

	return run, nil
}

// execute exports, stores and finalises a run created by begin.
func (s *BackupService) execute(ctx context.Context, clientID string, act *models.Activity, run *models.BackupRun) error {
	metrics.BackupsInFlight.Inc()
	defer metrics.BackupsInFlight.Dec()

	log := s.log.WithFields(logrus.Fields{
		"backup_id":   run.ID,
		"activity_id": act.ID,
		"userinfo":    run.UserInfo,
	})

	runErr := s.store(ctx, act, run)

	finished := s.now().UTC().Truncate(time.Millisecond)
	run.FinishedAt = &finished
	metrics.BackupDuration.Observe(finished.Sub(run.StartedAt).Seconds())

	if runErr != nil {
		run.Status = models.BackupFailed
		run.Error = runErr.Error()
	} else {
		run.Status = models.BackupCompleted
	}
	metrics.BackupsTotal.WithLabelValues(string(run.Status)).Inc()

	// The run is finalised even when the request context is gone.
	if err := s.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.WithError(err).Error("failed to record backup result")
		runErr = errors.Join(runErr, err)
	}

	if run.Status == models.BackupFailed {
		log.WithError(runErr).Warn("backup failed")
		s.publish(ws.EventBackupFailed, clientID, run)

		return fmt.Errorf("backing up activity %d: %w", act.ID, runErr)
	}

	log.WithFields(logrus.Fields{
		"rows":     run.Rows,
		"size":     run.Size,
		"location": run.Location,
	}).Info("backup completed")
	s.publish(ws.EventBackupCompleted, clientID, run)

	return runErr
}

// store builds the archive of act and puts it into the sink.
func (s *BackupService) store(ctx context.Context, act *models.Activity, run *models.BackupRun) error {
	var buf bytes.Buffer
	res, err := s.build(ctx, act, run.UserInfo, run.StartedAt, &buf)
	if err != nil {
		return err
	}

	run.Rows = res.TotalRows()
	run.ElementRows = res.Rows
	run.Size = int64(buf.Len())

	location, err := s.sink.Put(ctx, archiveKey(run), &buf, run.Size)
	if err != nil {
		return fmt.Errorf("storing archive: %w", err)
	}
	run.Location = location

	return nil
}

// build exports act and writes its archive to w.
func (s *BackupService) build(ctx context.Context, act *models.Activity, userInfo bool, modTime time.Time, w io.Writer) (*backup.Result, error) {
	env := backup.Env{
		ActivityID: act.ID,
		ModuleID:   act.ModuleID,
		ContextID:  act.ContextID,
		ModuleName: anonforum.ModuleName,
	}

	var doc bytes.Buffer
	res, err := s.exporter.Export(ctx, anonforum.Structure(userInfo), env, &doc)
	if err != nil {
		return nil, fmt.Errorf("exporting activity %d: %w", act.ID, err)
	}

	var refs bytes.Buffer
	if err := backup.WriteInfoRef(&refs, res.Annotations); err != nil {
		return nil, fmt.Errorf("writing inforef: %w", err)
	}

	dir := backup.ActivityDir(anonforum.ModuleName, act.ModuleID)
	err = backup.WriteArchive(w, modTime,
		backup.ArchiveEntry{Name: dir + "/" + anonforum.File, Data: doc.Bytes()},
		backup.ArchiveEntry{Name: dir + "/" + backup.InfoRefFile, Data: refs.Bytes()},
	)
	if err != nil {
		return nil, fmt.Errorf("writing archive: %w", err)
	}

	for path, n := range res.Rows {
		metrics.RowsExported.WithLabelValues(path).Add(float64(n))
	}

	return res, nil
}

func (s *BackupService) publish(eventType, clientID string, run *models.BackupRun) {
	if s.events == nil {
		return
	}

	s.events.Publish(eventType, clientID, run.ID, event{
		BackupID:   run.ID,
		ActivityID: run.ActivityID,
		Status:     string(run.Status),
		Rows:       run.Rows,
		Location:   run.Location,
		Error:      run.Error,
	})
}

// describe converts an element tree to its JSON description.
func describe(el *backup.Element) models.StructureNode {
	node := models.StructureNode{
		Name:     el.Name(),
		Path:     el.Path(),
		IDFields: el.IDFields(),
		Fields:   el.Fields(),
		Aliases:  el.Aliases(),
	}
	if src := el.Source(); src != nil {
		node.Source = backup.Describe(src)
	}
	for _, a := range el.IDAnnotations() {
		node.IDAnnotations = append(node.IDAnnotations, models.IDAnnotation{Kind: a.Kind, Field: a.Field})
	}
	for _, a := range el.FileAnnotations() {
		node.FileAnnotations = append(node.FileAnnotations, models.FileAnnotation{
			Component: a.Component,
			FileArea:  a.FileArea,
			ItemField: a.ItemField,
		})
	}
	for _, child := range el.Children() {
		node.Children = append(node.Children, describe(child))
	}

	return node
}
