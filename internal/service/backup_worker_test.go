package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/persistorai/anonforum/internal/models"
	"github.com/persistorai/anonforum/internal/store/storetest"
	"github.com/persistorai/anonforum/internal/ws"
)

func waitForStatus(t *testing.T, svc *BackupService, runID string, want models.BackupStatus) *models.BackupRun {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		run, err := svc.GetRun(context.Background(), testClient, runID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if run.Status == want {
			return run
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s status = %s, want %s", runID, run.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBackupWorker_ProcessesQueuedBackup(t *testing.T) {
	env := newSQLiteService(t, 1)
	w := NewBackupWorker(env.svc, testLogger(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run, err := w.Enqueue(ctx, testClient, storetest.ForumID, models.BackupRequest{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if run.Status != models.BackupRunning {
		t.Errorf("queued status = %s, want running", run.Status)
	}

	go w.Run(ctx)

	done := waitForStatus(t, env.svc, run.ID, models.BackupCompleted)
	if done.Location == "" || done.Rows == 0 {
		t.Errorf("completed run = %+v", done)
	}
}

func TestBackupWorker_QueueFull(t *testing.T) {
	runs := newMockRuns()
	events := &mockPublisher{}
	svc := newMockService(runs, newMockSink(), events)
	w := NewBackupWorker(svc, testLogger(), 1)
	ctx := context.Background()

	if _, err := w.Enqueue(ctx, testClient, 1, models.BackupRequest{}); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}

	run, err := w.Enqueue(ctx, testClient, 1, models.BackupRequest{})
	if !errors.Is(err, models.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if stored := runs.get(run.ID); stored.Status != models.BackupFailed {
		t.Errorf("rejected run status = %s, want failed", stored.Status)
	}
	if w.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", w.Pending())
	}

	want := []string{ws.EventBackupStarted, ws.EventBackupStarted, ws.EventBackupFailed}
	if got := events.types(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if last := events.events[len(events.events)-1]; last.RunID != run.ID || last.ClientID != testClient {
		t.Errorf("failed event = %+v, want run %s", last, run.ID)
	}
}

func TestBackupWorker_DrainsOnShutdown(t *testing.T) {
	runs := newMockRuns()
	svc := newMockService(runs, newMockSink(), nil)
	w := NewBackupWorker(svc, testLogger(), 4)

	run, err := w.Enqueue(context.Background(), testClient, 1, models.BackupRequest{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	if w.Pending() != 0 {
		t.Errorf("Pending() = %d after drain", w.Pending())
	}
	// The mock records always fail, so the drained job ends failed.
	if stored := runs.get(run.ID); stored.Status != models.BackupFailed {
		t.Errorf("drained run status = %s", stored.Status)
	}
}

func TestBackupWorker_DrainedBackupsComplete(t *testing.T) {
	for i := range 20 {
		env := newSQLiteService(t, 1)
		w := NewBackupWorker(env.svc, testLogger(), 4)

		var ids []string
		for range 3 {
			run, err := w.Enqueue(context.Background(), testClient, storetest.ForumID, models.BackupRequest{})
			if err != nil {
				t.Fatalf("iteration %d: Enqueue: %v", i, err)
			}
			ids = append(ids, run.ID)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w.Run(ctx)

		if w.Pending() != 0 {
			t.Fatalf("iteration %d: Pending() = %d after drain", i, w.Pending())
		}
		for _, id := range ids {
			run, err := env.svc.GetRun(context.Background(), testClient, id)
			if err != nil {
				t.Fatalf("iteration %d: GetRun: %v", i, err)
			}
			if run.Status != models.BackupCompleted {
				t.Fatalf("iteration %d: drained run %s = %s (%s)", i, id, run.Status, run.Error)
			}
		}
	}
}

func TestBackupWorker_CancelDuringBackup(t *testing.T) {
	env := newSQLiteService(t, 1)
	w := NewBackupWorker(env.svc, testLogger(), 4)

	ctx, cancel := context.WithCancel(context.Background())

	run, err := w.Enqueue(ctx, testClient, storetest.ForumID, models.BackupRequest{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	stored, err := env.svc.GetRun(context.Background(), testClient, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Status != models.BackupCompleted {
		t.Errorf("run = %s (%s), want completed", stored.Status, stored.Error)
	}
}

func TestBackupWorker_UnknownActivity(t *testing.T) {
	svc := newMockService(newMockRuns(), newMockSink(), nil)
	w := NewBackupWorker(svc, testLogger(), 0)

	if _, err := w.Enqueue(context.Background(), testClient, 7, models.BackupRequest{}); !errors.Is(err, models.ErrActivityNotFound) {
		t.Errorf("err = %v, want ErrActivityNotFound", err)
	}
}
