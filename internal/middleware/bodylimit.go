package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/anonforum/internal/httputil"
)

// MaxBodySize returns middleware that limits request body size. Requests
// declaring a larger Content-Length are rejected before the handler runs.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			httputil.RespondError(c, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")

			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()
	}
}
