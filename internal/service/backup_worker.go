package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/models"
	"github.com/persistorai/anonforum/internal/ws"
)

// defaultQueueSize is the number of queued backups a BackupWorker accepts.
const defaultQueueSize = 64

// backupJob is one queued activity backup.
type backupJob struct {
	clientID string
	activity models.Activity
	run      *models.BackupRun
}

// BackupWorker runs queued activity backups on a single goroutine so that
// asynchronous requests return as soon as their run is recorded.
type BackupWorker struct {
	svc  *BackupService
	log  *logrus.Logger
	jobs chan *backupJob
}

// NewBackupWorker creates a BackupWorker with the given queue capacity.
func NewBackupWorker(svc *BackupService, log *logrus.Logger, queueSize int) *BackupWorker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &BackupWorker{
		svc:  svc,
		log:  log,
		jobs: make(chan *backupJob, queueSize),
	}
}

// Enqueue records a running backup of activityID and queues it. When the
// queue is full the run is recorded as failed and ErrQueueFull is returned.
func (w *BackupWorker) Enqueue(ctx context.Context, clientID string, activityID int64, req models.BackupRequest) (*models.BackupRun, error) {
	act, err := w.svc.Activity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	run, err := w.svc.begin(ctx, clientID, act, req.IncludeUserInfo())
	if err != nil {
		return nil, err
	}

	select {
	case w.jobs <- &backupJob{clientID: clientID, activity: *act, run: run}:
		return run, nil
	default:
	}

	w.log.WithField("activity_id", activityID).Warn("backup queue full, rejecting backup")

	finished := w.svc.now().UTC().Truncate(time.Millisecond)
	run.Status = models.BackupFailed
	run.Error = models.ErrQueueFull.Error()
	run.FinishedAt = &finished
	if err := w.svc.runs.FinishRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording rejected backup: %w", err)
	}
	w.svc.publish(ws.EventBackupFailed, clientID, run)

	return run, models.ErrQueueFull
}

// Pending returns the number of queued backups.
func (w *BackupWorker) Pending() int {
	return len(w.jobs)
}

// Run processes queued backups until ctx is cancelled, then drains the queue.
// A backup that has been taken off the queue always runs to completion.
func (w *BackupWorker) Run(ctx context.Context) {
	jobCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			w.drain(jobCtx)

			return
		}

		select {
		case <-ctx.Done():
			w.drain(jobCtx)

			return
		case job := <-w.jobs:
			w.process(jobCtx, job)
		}
	}
}

func (w *BackupWorker) drain(ctx context.Context) {
	for {
		select {
		case job := <-w.jobs:
			w.process(ctx, job)
		default:
			return
		}
	}
}

func (w *BackupWorker) process(ctx context.Context, job *backupJob) {
	// execute records and logs the outcome.
	_ = w.svc.execute(ctx, job.clientID, &job.activity, job.run)
}
