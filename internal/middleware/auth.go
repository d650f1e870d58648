package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/httputil"
	"github.com/persistorai/anonforum/internal/models"
)

// ClientIDKey is the gin context key holding the authenticated API client id.
const ClientIDKey = "client_id"

// Rejections take at least this long so response time does not reveal
// whether a key exists.
const rejectFloor = 50 * time.Millisecond

// ClientLookup resolves an API key to the id of the client that owns it.
// Unknown keys yield models.ErrClientNotFound.
type ClientLookup interface {
	GetClientByAPIKey(ctx context.Context, apiKey string) (string, error)
}

// AuthMiddleware authenticates requests by bearer API key and stores the
// client id under ClientIDKey. Unknown keys are reported to guard, when one
// is given; lookup outages answer 503 and are not held against the caller.
func AuthMiddleware(lookup ClientLookup, log *logrus.Logger, guards ...*BruteForceGuard) gin.HandlerFunc {
	var guard *BruteForceGuard
	if len(guards) > 0 {
		guard = guards[0]
	}

	return func(c *gin.Context) {
		apiKey := ExtractBearerToken(c)
		if apiKey == "" {
			reject(c, time.Now(), "missing or invalid authorization header")

			return
		}

		start := time.Now()
		clientID, err := lookup.GetClientByAPIKey(c.Request.Context(), apiKey)
		switch {
		case err == nil:
		case errors.Is(err, models.ErrClientNotFound):
			logRejectedKey(c, log, apiKey)
			if guard != nil {
				guard.Fail(apiKey, c.ClientIP())
			}
			reject(c, start, "invalid api key")

			return
		default:
			Logger(c, log).WithError(err).Error("api key lookup failed")
			httputil.RespondError(c, http.StatusServiceUnavailable, "unavailable", "authentication is temporarily unavailable")

			return
		}

		if guard != nil {
			guard.Succeed(apiKey)
		}

		c.Set(ClientIDKey, clientID)
		c.Next()
	}
}

func reject(c *gin.Context, start time.Time, message string) {
	if wait := rejectFloor - time.Since(start); wait > 0 {
		time.Sleep(wait)
	}
	httputil.RespondError(c, http.StatusUnauthorized, "unauthorized", message)
}

// ExtractBearerToken returns the API key of the request. Browsers cannot set
// headers on a WebSocket handshake, so upgrade requests may pass it as the
// "token" query parameter instead.
func ExtractBearerToken(c *gin.Context) string {
	if key, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return key
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return c.Query("token")
	}

	return ""
}

// keyHint keeps at most four leading characters of a key for logs.
func keyHint(key string) string {
	if len(key) > 4 {
		return key[:4] + "..."
	}

	return key
}

func logRejectedKey(c *gin.Context, log *logrus.Logger, apiKey string) {
	Logger(c, log).WithFields(logrus.Fields{
		"client_ip":  c.ClientIP(),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"user_agent": c.Request.UserAgent(),
		"key_prefix": keyHint(apiKey),
	}).Warn("authentication failed: unknown api key")
}
