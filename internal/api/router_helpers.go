package api

import (
	"context"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/middleware"
	"github.com/persistorai/anonforum/internal/ws"
)

// getClientID extracts the authenticated API client ID from the Gin context
// and validates it is a proper UUID.
func getClientID(c *gin.Context) string {
	id := c.GetString(middleware.ClientIDKey)

	if _, err := uuid.Parse(id); err != nil {
		respondError(c, 400, ErrCodeInvalidRequest, "invalid client id")

		return ""
	}

	return id
}

func wsHandler(appCtx context.Context, log *logrus.Logger, hub *ws.Hub, corsOrigins []string, lookup middleware.ClientLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := getClientID(c)
		if clientID == "" {
			return
		}

		// Extract the raw API key for periodic re-validation.
		apiKey := middleware.ExtractBearerToken(c)

		// CORS origins are reused as WebSocket origin patterns.
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns:       corsOrigins,
			CompressionMode:      websocket.CompressionContextTakeover,
			CompressionThreshold: 128,
		})
		if err != nil {
			log.WithError(err).Error("websocket accept failed")

			return
		}

		client := ws.NewClient(hub, conn, lookup, clientID, apiKey, c.Query("run"))
		hub.Register(client)

		// Derive a context that cancels when either the server shuts down or the request ends.
		wsCtx, wsCancel := context.WithCancel(appCtx)
		go func() {
			select {
			case <-c.Request.Context().Done():
				wsCancel()
			case <-wsCtx.Done():
			}
		}()

		go client.WritePump(wsCtx)
		client.ReadPump(wsCtx)
		wsCancel()
	}
}

func ginLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		middleware.Logger(c, log).WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}).Info("request")
	}
}

// pathID parses a positive integer path parameter. On failure it writes a
// 400 response and returns false.
func pathID(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		respondError(c, 400, ErrCodeInvalidRequest, name+" must be a positive integer")

		return 0, false
	}

	return v, true
}

// queryInt parses an optional integer query parameter. Absent parameters
// yield fallback. On a malformed value it writes a 400 response and returns false.
func queryInt(c *gin.Context, name string, fallback int64) (int64, bool) {
	s := c.Query(name)
	if s == "" {
		return fallback, true
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		respondError(c, 400, ErrCodeInvalidRequest, name+" must be an integer")

		return 0, false
	}

	return v, true
}

// queryBool parses an optional boolean query parameter the way
// strconv.ParseBool does.
func queryBool(c *gin.Context, name string, fallback bool) (bool, bool) {
	s := c.Query(name)
	if s == "" {
		return fallback, true
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		respondError(c, 400, ErrCodeInvalidRequest, name+" must be a boolean")

		return false, false
	}

	return v, true
}
