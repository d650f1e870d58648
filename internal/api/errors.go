package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/httputil"
	"github.com/persistorai/anonforum/internal/metrics"
	"github.com/persistorai/anonforum/internal/middleware"
	"github.com/persistorai/anonforum/internal/models"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeConflict        = "conflict"
	ErrCodeInternalError   = "internal_error"
	ErrCodeBackupFailed    = "backup_failed"
	ErrCodeUnavailable     = "unavailable"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeValidationError = "validation_error"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// classify maps a service error onto a status, code and client-safe message.
func classify(err error) (int, string, string) {
	var rangeErr *models.RangeError

	switch {
	case errors.Is(err, models.ErrActivityNotFound),
		errors.Is(err, models.ErrCourseNotFound),
		errors.Is(err, models.ErrBackupNotFound):
		return http.StatusNotFound, ErrCodeNotFound, rootMessage(err)
	case errors.Is(err, models.ErrBackupNotReady):
		return http.StatusConflict, ErrCodeConflict, models.ErrBackupNotReady.Error()
	case errors.Is(err, models.ErrQueueFull):
		return http.StatusServiceUnavailable, ErrCodeUnavailable, models.ErrQueueFull.Error()
	case errors.Is(err, models.ErrInvalidID),
		errors.Is(err, models.ErrInvalidMode),
		errors.Is(err, models.ErrInvalidPage):
		return http.StatusBadRequest, ErrCodeValidationError, rootMessage(err)
	case errors.As(err, &rangeErr):
		return http.StatusBadRequest, ErrCodeValidationError, rangeErr.Error()
	}

	return http.StatusInternalServerError, ErrCodeInternalError, "internal error"
}

// rootMessage returns the message of the sentinel err wraps.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		models.ErrActivityNotFound,
		models.ErrCourseNotFound,
		models.ErrBackupNotFound,
		models.ErrInvalidID,
		models.ErrInvalidMode,
		models.ErrInvalidPage,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}

	return err.Error()
}

// respondServiceError classifies err and writes it. Unexpected errors are
// logged with action; their details never reach the client.
func respondServiceError(c *gin.Context, log *logrus.Logger, err error, action string) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		middleware.Logger(c, log).WithError(err).Error(action)
	}

	respondError(c, status, code, message)
}
