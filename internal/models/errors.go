package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for lookups.
var (
	ErrActivityNotFound = errors.New("activity not found")
	ErrCourseNotFound   = errors.New("course has no forum activities")
	ErrBackupNotFound   = errors.New("backup not found")
	ErrClientNotFound   = errors.New("api client not found")
)

// Sentinel errors for backup state.
var (
	ErrBackupNotReady = errors.New("backup has not completed")
	ErrQueueFull      = errors.New("backup queue is full")
)

// Sentinel errors for request validation.
var (
	ErrInvalidID   = errors.New("id must be a positive integer")
	ErrInvalidMode = errors.New("mode must be posts or discussions")
	ErrInvalidPage = errors.New("page must not be negative")
)

// RangeError reports a numeric parameter outside its bounds.
type RangeError struct {
	Field  string
	Lo, Hi int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s must be between %d and %d", e.Field, e.Lo, e.Hi)
}

// ErrOutOfRange returns an error indicating a numeric parameter is outside its bounds.
func ErrOutOfRange(field string, lo, hi int) error {
	return &RangeError{Field: field, Lo: lo, Hi: hi}
}
