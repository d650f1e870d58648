package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDKey is the gin context key for the request ID.
	RequestIDKey = "request_id"

	// RequestIDHeader is the HTTP header used to propagate the request ID.
	RequestIDHeader = "X-Request-ID"

	loggerKey          = "request_logger"
	maxCallerRequestID = 64
)

// RequestID assigns every request a server-generated id, echoes it in the
// response and stores a logger carrying it. An X-Request-ID sent by the
// caller is never used as the id; it is logged as client_request_id so
// scheduled LMS jobs can be matched with their backups.
func RequestID(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()

		fields := logrus.Fields{RequestIDKey: id}
		if caller := c.GetHeader(RequestIDHeader); caller != "" {
			fields["client_request_id"] = caller[:min(len(caller), maxCallerRequestID)]
		}

		c.Set(RequestIDKey, id)
		c.Set(loggerKey, log.WithFields(fields))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Logger returns the request-scoped logger with the authenticated client id
// attached. Without the RequestID middleware it falls back to log.
func Logger(c *gin.Context, log *logrus.Logger) *logrus.Entry {
	entry, ok := c.Value(loggerKey).(*logrus.Entry)
	if !ok {
		entry = logrus.NewEntry(log)
	}

	if id := c.GetString(ClientIDKey); id != "" {
		entry = entry.WithField(ClientIDKey, id)
	}

	return entry
}
