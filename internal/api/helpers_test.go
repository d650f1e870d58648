package api_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/middleware"
)

const testClientID = "00000000-0000-0000-0000-000000000001"

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

// asClient stands in for authentication.
func asClient(clientID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ClientIDKey, clientID)
		c.Next()
	}
}

// newTestRouter returns an engine whose requests are all made as testClientID.
func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(asClient(testClientID))

	return r
}

// doRequest sends a request to h. A non-empty body is sent as JSON.
func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	return w
}

// decodeJSON unmarshals the recorded body into a T.
func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}

	return v
}
