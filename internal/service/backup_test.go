package service

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/persistorai/anonforum/internal/models"
	"github.com/persistorai/anonforum/internal/storage"
	"github.com/persistorai/anonforum/internal/store"
	"github.com/persistorai/anonforum/internal/store/storetest"
	"github.com/persistorai/anonforum/internal/ws"
)

const testClient = "3f1c7e4e-9a57-4a49-a8a5-2d0a2b1c6f10"

// readArchive returns the regular files of a tar.gz archive keyed by name.
func readArchive(t *testing.T, r io.Reader) map[string]string {
	t.Helper()

	gz, err := gzip.NewReader(r)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}

	files := make(map[string]string)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("tar: %v", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("reading %s: %v", hdr.Name, err)
		}
		files[hdr.Name] = string(body)
	}

	return files
}

type sqliteEnv struct {
	svc    *BackupService
	recs   *store.SQLRecords
	events *mockPublisher
}

// newSQLiteService wires a BackupService over the seeded SQLite fixture and a
// local file sink.
func newSQLiteService(t *testing.T, workers int) *sqliteEnv {
	t.Helper()

	recs := storetest.NewSQLite(t)
	storetest.Seed(t, recs)

	sink, err := storage.NewFileSink(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	events := &mockPublisher{}
	svc := NewBackupService(BackupDeps{
		Records:    recs,
		Activities: store.NewActivityStore(recs),
		Runs:       store.NewRunStore(recs),
		Sink:       sink,
		Events:     events,
		Log:        testLogger(),
		WWWRoot:    "https://lms.example.edu",
		Workers:    workers,
	})

	return &sqliteEnv{svc: svc, recs: recs, events: events}
}

func TestBackup_EndToEnd(t *testing.T) {
	env := newSQLiteService(t, 1)
	ctx := context.Background()

	run, err := env.svc.Backup(ctx, testClient, storetest.ForumID, models.BackupRequest{})
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	if run.Status != models.BackupCompleted {
		t.Fatalf("status = %s (%s)", run.Status, run.Error)
	}
	if !run.UserInfo {
		t.Error("user info should default to true")
	}
	if run.ModuleID != storetest.ModuleID || run.CourseID != storetest.CourseID {
		t.Errorf("run = %+v", run)
	}
	if !strings.HasPrefix(run.Location, "file://") || run.Size == 0 {
		t.Errorf("location = %q size = %d", run.Location, run.Size)
	}
	if got := run.ElementRows["anonforum/discussions/discussion/posts/post"]; got != 2 {
		t.Errorf("post rows = %d, want 2", got)
	}
	if got := run.ElementRows["anonforum/discussions/discussion/posts/post/ratings/rating"]; got != 1 {
		t.Errorf("rating rows = %d, want 1", got)
	}

	stored, err := env.svc.GetRun(ctx, testClient, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Status != models.BackupCompleted || stored.Rows != run.Rows {
		t.Errorf("stored run = %+v", stored)
	}

	rc, _, err := env.svc.OpenArchive(ctx, testClient, run.ID)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer rc.Close()

	files := readArchive(t, rc)
	doc := files["activities/anonforum_10/anonforum.xml"]
	refs := files["activities/anonforum_10/inforef.xml"]
	if doc == "" || refs == "" {
		t.Fatalf("archive members: %v", keys(files))
	}

	first := strings.Index(doc, `<post id="100">`)
	reply := strings.Index(doc, `<post id="101">`)
	if first < 0 || reply < 0 || first > reply {
		t.Errorf("post order: first=%d reply=%d", first, reply)
	}
	if !strings.Contains(doc, `<activity id="1" moduleid="10" modulename="anonforum" contextid="30">`) {
		t.Error("missing activity envelope")
	}
	if !strings.Contains(doc, "$@ANONFORUMVIEWBYID*10@$") {
		t.Error("intro link was not encoded")
	}
	if !strings.Contains(doc, "<value>1</value>") {
		t.Error("rating value alias missing")
	}
	for _, want := range []string{"<id>3</id>", "<id>4</id>", "<id>6</id>", "<scaleref>", "<filearea>intro</filearea>"} {
		if !strings.Contains(refs, want) {
			t.Errorf("inforef lacks %s:\n%s", want, refs)
		}
	}

	if got := env.events.types(); !slices.Equal(got, []string{ws.EventBackupStarted, ws.EventBackupCompleted}) {
		t.Errorf("events = %v", got)
	}
	for _, e := range env.events.events {
		if e.RunID != run.ID || e.ClientID != testClient {
			t.Errorf("event %s scoped to client %q run %q", e.Type, e.ClientID, e.RunID)
		}
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)

	return out
}

func TestBackup_WithoutUserInfo(t *testing.T) {
	env := newSQLiteService(t, 1)
	off := false

	run, err := env.svc.Backup(context.Background(), testClient, storetest.ForumID, models.BackupRequest{UserInfo: &off})
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	if run.Rows != 1 {
		t.Errorf("rows = %d, want only the forum row (%v)", run.Rows, run.ElementRows)
	}
}

func TestBackup_ActivityNotFound(t *testing.T) {
	runs := newMockRuns()
	svc := NewBackupService(BackupDeps{
		Records:    failingRecords{},
		Activities: &mockActivities{},
		Runs:       runs,
		Sink:       newMockSink(),
		Log:        testLogger(),
	})

	_, err := svc.Backup(context.Background(), testClient, 42, models.BackupRequest{})
	if !errors.Is(err, models.ErrActivityNotFound) {
		t.Fatalf("err = %v, want ErrActivityNotFound", err)
	}
	if len(runs.runs) != 0 {
		t.Error("no run should be recorded for an unknown activity")
	}

	if _, err := svc.Backup(context.Background(), testClient, 0, models.BackupRequest{}); !errors.Is(err, models.ErrInvalidID) {
		t.Errorf("id 0: err = %v, want ErrInvalidID", err)
	}
}

func newMockService(runs *mockRuns, sink *mockSink, events *mockPublisher) *BackupService {
	deps := BackupDeps{
		Records: failingRecords{},
		Activities: &mockActivities{activities: map[int64]models.Activity{
			1: {ID: 1, ModuleID: 10, CourseID: 2, ContextID: 30},
		}},
		Runs: runs,
		Sink: sink,
		Log:  testLogger(),
	}
	if events != nil {
		deps.Events = events
	}

	return NewBackupService(deps)
}

func TestBackup_ExportFailureIsRecorded(t *testing.T) {
	runs := newMockRuns()
	events := &mockPublisher{}
	svc := newMockService(runs, newMockSink(), events)

	run, err := svc.Backup(context.Background(), testClient, 1, models.BackupRequest{})
	if !errors.Is(err, errRecords) {
		t.Fatalf("err = %v, want errRecords", err)
	}
	if run == nil {
		t.Fatal("failed backup should return its run")
	}

	stored := runs.get(run.ID)
	if stored.Status != models.BackupFailed || stored.Error == "" || stored.FinishedAt == nil {
		t.Errorf("stored run = %+v", stored)
	}
	if got := events.types(); !slices.Equal(got, []string{ws.EventBackupStarted, ws.EventBackupFailed}) {
		t.Errorf("events = %v", got)
	}
}

func TestBackup_SinkFailureIsRecorded(t *testing.T) {
	env := newSQLiteService(t, 1)
	sink := newMockSink()
	sink.putErr = errors.New("bucket gone")
	env.svc.sink = sink

	run, err := env.svc.Backup(context.Background(), testClient, storetest.ForumID, models.BackupRequest{})
	if err == nil || !strings.Contains(err.Error(), "bucket gone") {
		t.Fatalf("err = %v", err)
	}

	stored, err := env.svc.GetRun(context.Background(), testClient, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Status != models.BackupFailed || stored.Location != "" {
		t.Errorf("stored run = %+v", stored)
	}
}

func TestBackup_CreateRunFailure(t *testing.T) {
	runs := newMockRuns()
	runs.createErr = errors.New("disk full")
	events := &mockPublisher{}
	svc := newMockService(runs, newMockSink(), events)

	run, err := svc.Backup(context.Background(), testClient, 1, models.BackupRequest{})
	if err == nil || run != nil {
		t.Fatalf("Backup = %v, %v", run, err)
	}
	if len(events.types()) != 0 {
		t.Errorf("events = %v, want none", events.types())
	}
}

func TestBackupCourse(t *testing.T) {
	env := newSQLiteService(t, 2)

	summary, err := env.svc.BackupCourse(context.Background(), testClient, storetest.CourseID, models.BackupRequest{})
	if err != nil {
		t.Fatalf("BackupCourse: %v", err)
	}

	if summary.Completed != 2 || summary.Failed != 0 || len(summary.Runs) != 2 {
		t.Fatalf("summary = %+v", summary)
	}

	var ids []int64
	for _, run := range summary.Runs {
		ids = append(ids, run.ActivityID)
	}
	if !slices.Equal(ids, []int64{storetest.ForumID, storetest.EmptyForumID}) {
		t.Errorf("activities = %v, want course module order", ids)
	}

	runs, err := env.svc.ListRuns(context.Background(), testClient, 0, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("recorded runs = %d, want 2", len(runs))
	}
}

func TestBackupCourse_Errors(t *testing.T) {
	env := newSQLiteService(t, 1)
	ctx := context.Background()

	if _, err := env.svc.BackupCourse(ctx, testClient, 99, models.BackupRequest{}); !errors.Is(err, models.ErrCourseNotFound) {
		t.Errorf("unknown course: err = %v", err)
	}
	if _, err := env.svc.BackupCourse(ctx, testClient, -1, models.BackupRequest{}); !errors.Is(err, models.ErrInvalidID) {
		t.Errorf("negative course: err = %v", err)
	}
}

func TestBackupCourse_FailedActivitiesAreCounted(t *testing.T) {
	runs := newMockRuns()
	svc := NewBackupService(BackupDeps{
		Records: failingRecords{},
		Activities: &mockActivities{activities: map[int64]models.Activity{
			1: {ID: 1, ModuleID: 10, CourseID: 2, ContextID: 30},
			2: {ID: 2, ModuleID: 11, CourseID: 2, ContextID: 31},
		}},
		Runs:    runs,
		Sink:    newMockSink(),
		Log:     testLogger(),
		Workers: 4,
	})

	summary, err := svc.BackupCourse(context.Background(), testClient, 2, models.BackupRequest{})
	if err != nil {
		t.Fatalf("BackupCourse: %v", err)
	}
	if summary.Failed != 2 || summary.Completed != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

// orderedActivities lists course activities in a fixed order.
type orderedActivities []models.Activity

func (o orderedActivities) GetActivity(_ context.Context, id int64) (*models.Activity, error) {
	for _, a := range o {
		if a.ID == id {
			return &a, nil
		}
	}

	return nil, models.ErrActivityNotFound
}

func (o orderedActivities) ListCourseActivities(context.Context, int64) ([]models.Activity, error) {
	return o, nil
}

// rejectingRuns fails CreateRun for one activity and records the others.
type rejectingRuns struct {
	*mockRuns
	rejectID int64
	created  []int64
}

var errRunTable = errors.New("runs table locked")

func (r *rejectingRuns) CreateRun(ctx context.Context, clientID string, run *models.BackupRun) error {
	if run.ActivityID == r.rejectID {
		return errRunTable
	}
	r.created = append(r.created, run.ActivityID)

	return r.mockRuns.CreateRun(ctx, clientID, run)
}

func TestBackupCourse_BookkeepingFailureStopsRemaining(t *testing.T) {
	runs := &rejectingRuns{mockRuns: newMockRuns(), rejectID: 1}
	svc := NewBackupService(BackupDeps{
		Records: failingRecords{},
		Activities: orderedActivities{
			{ID: 1, ModuleID: 10, CourseID: 2, ContextID: 30},
			{ID: 2, ModuleID: 11, CourseID: 2, ContextID: 31},
			{ID: 3, ModuleID: 12, CourseID: 2, ContextID: 32},
		},
		Runs:    runs,
		Sink:    newMockSink(),
		Log:     testLogger(),
		Workers: 1,
	})

	summary, err := svc.BackupCourse(context.Background(), testClient, 2, models.BackupRequest{})
	if !errors.Is(err, errRunTable) {
		t.Fatalf("err = %v, want errRunTable", err)
	}
	if summary != nil {
		t.Errorf("summary = %+v, want nil", summary)
	}
	if len(runs.created) != 0 {
		t.Errorf("runs started after the failure: %v", runs.created)
	}
}

func TestExportArchive(t *testing.T) {
	env := newSQLiteService(t, 1)

	archive, err := env.svc.ExportArchive(context.Background(), storetest.ForumID, true)
	if err != nil {
		t.Fatalf("ExportArchive: %v", err)
	}

	if archive.Name != "anonforum_10.tar.gz" {
		t.Errorf("name = %q", archive.Name)
	}

	files := readArchive(t, bytes.NewReader(archive.Data))
	if _, ok := files["activities/anonforum_10/anonforum.xml"]; !ok {
		t.Errorf("archive members: %v", keys(files))
	}

	runs, err := env.svc.ListRuns(context.Background(), testClient, storetest.ForumID, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Error("downloads must not record runs")
	}
}

func TestOpenArchive_Errors(t *testing.T) {
	runs := newMockRuns()
	sink := newMockSink()
	svc := newMockService(runs, sink, nil)
	ctx := context.Background()

	if _, _, err := svc.OpenArchive(ctx, testClient, "not-a-uuid"); !errors.Is(err, models.ErrBackupNotFound) {
		t.Errorf("bad id: err = %v", err)
	}

	running := &models.BackupRun{ID: "6f0a4a8e-2f4e-4f7e-9d55-1a1f7c0c2b11", Status: models.BackupRunning, StartedAt: time.Now()}
	_ = runs.CreateRun(ctx, testClient, running)
	if _, _, err := svc.OpenArchive(ctx, testClient, running.ID); !errors.Is(err, models.ErrBackupNotReady) {
		t.Errorf("running: err = %v", err)
	}

	done := &models.BackupRun{ID: "0b4a9c55-7d0e-4b8f-8f3c-8c1e1f7a9e22", Status: models.BackupCompleted, StartedAt: time.Now()}
	_ = runs.CreateRun(ctx, testClient, done)
	if _, _, err := svc.OpenArchive(ctx, testClient, done.ID); !errors.Is(err, models.ErrBackupNotFound) {
		t.Errorf("missing object: err = %v", err)
	}

	if _, _, err := svc.OpenArchive(ctx, "someone-else", done.ID); !errors.Is(err, models.ErrBackupNotFound) {
		t.Errorf("other client: err = %v", err)
	}
}

func TestListRuns_Limits(t *testing.T) {
	svc := newMockService(newMockRuns(), newMockSink(), nil)

	for _, limit := range []int{-1, MaxRunLimit + 1} {
		if _, err := svc.ListRuns(context.Background(), testClient, 0, limit); err == nil {
			t.Errorf("limit %d accepted", limit)
		}
	}
	if _, err := svc.ListRuns(context.Background(), testClient, -5, 0); !errors.Is(err, models.ErrInvalidID) {
		t.Errorf("negative activity: err = %v", err)
	}
}

func TestStructureDescription(t *testing.T) {
	svc := newMockService(newMockRuns(), newMockSink(), nil)

	root := svc.Structure(true)
	if root.Name != "anonforum" || root.Source == "" {
		t.Fatalf("root = %+v", root)
	}
	if len(root.Children) != 5 {
		t.Fatalf("root children = %d, want 5", len(root.Children))
	}

	rating := root.Children[0].Children[0].Children[0].Children[0].Children[0].Children[0]
	if rating.Path != "anonforum/discussions/discussion/posts/post/ratings/rating" {
		t.Fatalf("path = %q", rating.Path)
	}
	if rating.Aliases["rating"] != "value" {
		t.Errorf("aliases = %v", rating.Aliases)
	}

	bare := svc.Structure(false)
	if bare.Children[0].Children[0].Source != "" {
		t.Error("discussion must be unbound without user info")
	}
}

func TestArchiveName(t *testing.T) {
	if got := ArchiveName(10, ""); got != "anonforum_10.tar.gz" {
		t.Errorf("ArchiveName = %q", got)
	}
	run := &models.BackupRun{ID: "abc", CourseID: 2, ModuleID: 10}
	if got := archiveKey(run); got != "course_2/anonforum_10-abc.tar.gz" {
		t.Errorf("archiveKey = %q", got)
	}
}
