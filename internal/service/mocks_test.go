package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/backup"
	"github.com/persistorai/anonforum/internal/models"
	"github.com/persistorai/anonforum/internal/storage"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	log.SetOutput(io.Discard)

	return log
}

// mockActivities serves activities from a map.
type mockActivities struct {
	activities map[int64]models.Activity
}

func (m *mockActivities) GetActivity(_ context.Context, id int64) (*models.Activity, error) {
	a, ok := m.activities[id]
	if !ok {
		return nil, models.ErrActivityNotFound
	}

	return &a, nil
}

func (m *mockActivities) ListCourseActivities(_ context.Context, courseID int64) ([]models.Activity, error) {
	var out []models.Activity
	for _, a := range m.activities {
		if a.CourseID == courseID {
			out = append(out, a)
		}
	}

	return out, nil
}

// mockRuns keeps runs in memory.
type mockRuns struct {
	mu        sync.Mutex
	runs      map[string]models.BackupRun
	owners    map[string]string
	createErr error
	finishErr error
}

func newMockRuns() *mockRuns {
	return &mockRuns{runs: make(map[string]models.BackupRun), owners: make(map[string]string)}
}

func (m *mockRuns) CreateRun(_ context.Context, clientID string, run *models.BackupRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	m.runs[run.ID] = *run
	m.owners[run.ID] = clientID

	return nil
}

func (m *mockRuns) FinishRun(_ context.Context, run *models.BackupRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finishErr != nil {
		return m.finishErr
	}
	if _, ok := m.runs[run.ID]; !ok {
		return models.ErrBackupNotFound
	}
	m.runs[run.ID] = *run

	return nil
}

func (m *mockRuns) GetRun(_ context.Context, clientID, runID string) (*models.BackupRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok || m.owners[runID] != clientID {
		return nil, models.ErrBackupNotFound
	}

	return &run, nil
}

func (m *mockRuns) ListRuns(_ context.Context, clientID string, activityID int64, limit int) ([]models.BackupRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.BackupRun
	for id, run := range m.runs {
		if m.owners[id] != clientID || (activityID > 0 && run.ActivityID != activityID) {
			continue
		}
		out = append(out, run)
		if len(out) == limit {
			break
		}
	}

	return out, nil
}

func (m *mockRuns) get(id string) models.BackupRun {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.runs[id]
}

// mockSink keeps archives in memory.
type mockSink struct {
	mu     sync.Mutex
	data   map[string][]byte
	putErr error
}

func newMockSink() *mockSink {
	return &mockSink{data: make(map[string][]byte)}
}

func (m *mockSink) Put(_ context.Context, key string, r io.Reader, _ int64) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()

	return "mem://" + key, nil
}

func (m *mockSink) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(b)), nil
}

// publishedEvent is one recorded Publish call.
type publishedEvent struct {
	Type     string
	ClientID string
	RunID    string
	Data     any
}

// mockPublisher records published events.
type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (m *mockPublisher) Publish(eventType, clientID, runID string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, publishedEvent{Type: eventType, ClientID: clientID, RunID: runID, Data: data})
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}

	return out
}

// failingRecords fails every read.
type failingRecords struct{}

var errRecords = errors.New("database unavailable")

func (failingRecords) GetRecords(context.Context, string, []backup.Filter, []string) ([]backup.Row, error) {
	return nil, errRecords
}

func (failingRecords) Query(context.Context, string, ...any) ([]backup.Row, error) {
	return nil, errRecords
}

// mockPostLister returns a fixed page and records the query it saw.
type mockPostLister struct {
	got  models.PostQuery
	page *models.PostPage
	err  error
}

func (m *mockPostLister) ListUserPosts(_ context.Context, q models.PostQuery) (*models.PostPage, error) {
	m.got = q

	return m.page, m.err
}
