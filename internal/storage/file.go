package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FileSink stores archives below a local directory. Files appear atomically:
// data is written to a temporary file in the target directory and renamed.
type FileSink struct {
	root string
	log  *logrus.Logger
}

// NewFileSink creates a FileSink rooted at dir, creating it if needed.
func NewFileSink(dir string, log *logrus.Logger) (*FileSink, error) {
	if dir == "" {
		return nil, errors.New("file destination needs a directory")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating %s: %w", abs, err)
	}

	return &FileSink{root: abs, log: log}, nil
}

// Put implements Sink.
func (s *FileSink) Put(ctx context.Context, key string, r io.Reader, _ int64) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(s.root, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", k, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".partial-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file for %s: %w", k, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename.

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()

		return "", fmt.Errorf("writing %s: %w", k, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()

		return "", fmt.Errorf("syncing %s: %w", k, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", k, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("moving %s into place: %w", k, err)
	}

	s.log.WithField("path", dst).Debug("backup archive stored")

	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(dst)}).String(), nil
}

// Open implements Sink.
func (s *FileSink) Open(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(k)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", k, err)
	}

	return f, nil
}

// String implements Sink.
func (s *FileSink) String() string { return "file://" + filepath.ToSlash(s.root) }

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
