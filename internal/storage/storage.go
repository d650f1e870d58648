// Package storage writes finished backup archives to their destination.
//
// A destination is configured as a URL: file:///var/backups for a local
// directory or s3://[host/]bucket/prefix?region=... for S3 compatible object
// storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Open for keys that were never written.
var ErrNotFound = errors.New("stored object not found")

// Sink stores and retrieves backup archives by key.
type Sink interface {
	// Put stores the contents of r under key and returns its location URL.
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)

	// Open returns a reader for a stored key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// String describes the destination without credentials.
	String() string
}

// New creates the sink for a destination URL.
func New(ctx context.Context, destination string, log *logrus.Logger) (Sink, error) {
	u, err := url.Parse(destination)
	if err != nil {
		return nil, fmt.Errorf("parsing backup destination: %w", err)
	}

	switch u.Scheme {
	case "file":
		return NewFileSink(u.Path, log)
	case "s3":
		return NewS3Sink(ctx, u, log)
	default:
		return nil, fmt.Errorf("unsupported backup destination scheme %q", u.Scheme)
	}
}

// cleanKey validates a slash-separated object key.
func cleanKey(key string) (string, error) {
	k := path.Clean(strings.TrimPrefix(key, "/"))
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}

	return k, nil
}
