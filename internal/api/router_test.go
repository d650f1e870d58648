package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/persistorai/anonforum/internal/api"
	"github.com/persistorai/anonforum/internal/models"
	"github.com/persistorai/anonforum/internal/ws"
)

const testAPIKey = "test-api-key-0123456789"

func newFullRouter(t *testing.T) http.Handler {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := &mockBackupService{
		getRunFn: func(_ context.Context, clientID, runID string) (*models.BackupRun, error) {
			if clientID != testClientID {
				return nil, models.ErrBackupNotFound
			}

			return &models.BackupRun{ID: runID}, nil
		},
	}

	return api.NewRouter(ctx, &api.RouterDeps{
		Log:          testLogger(),
		DB:           &mockHealthDB{},
		Hub:          ws.NewHub(testLogger()),
		Backups:      svc,
		Posts:        &mockPostService{},
		ClientLookup: &mockClientLookup{keys: map[string]string{testAPIKey: testClientID}},
		CORSOrigins:  []string{"http://localhost:3000"},
		Version:      "test",
	})
}

func TestRouter_HealthIsPublic(t *testing.T) {
	t.Parallel()

	w := doRequest(newFullRouter(t), http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestRouter_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	r := newFullRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/backups/"+testRunID, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/backups/"+testRunID, http.NoBody)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	w := doRequest(newFullRouter(t), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
