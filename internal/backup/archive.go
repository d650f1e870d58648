package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
)

// ArchiveEntry is one file written into a backup archive.
type ArchiveEntry struct {
	Name string
	Data []byte
}

// ActivityDir returns the archive directory of an activity, e.g.
// "activities/anonforum_42".
func ActivityDir(moduleName string, moduleID int64) string {
	return path.Join("activities", moduleName+"_"+strconv.FormatInt(moduleID, 10))
}

// WriteArchive writes entries as a gzip-compressed tar stream. Entry names
// must be relative slash-separated paths.
func WriteArchive(w io.Writer, modTime time.Time, entries ...ArchiveEntry) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	dirs := make(map[string]struct{})
	for _, e := range entries {
		name := path.Clean(e.Name)
		if name == "." || name == ".." || path.IsAbs(name) || strings.HasPrefix(name, "../") {
			return fmt.Errorf("invalid archive entry name %q", e.Name)
		}

		if err := writeDirs(tw, path.Dir(name), modTime, dirs); err != nil {
			return err
		}

		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(e.Data)),
			ModTime:  modTime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing header for %s: %w", name, err)
		}
		if _, err := tw.Write(e.Data); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip: %w", err)
	}

	return nil
}

// writeDirs emits directory headers for dir and its parents not yet written.
func writeDirs(tw *tar.Writer, dir string, modTime time.Time, seen map[string]struct{}) error {
	if dir == "." || dir == "/" {
		return nil
	}
	if _, ok := seen[dir]; ok {
		return nil
	}
	if err := writeDirs(tw, path.Dir(dir), modTime, seen); err != nil {
		return err
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     dir + "/",
		Mode:     0o755,
		ModTime:  modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing directory %s: %w", dir, err)
	}
	seen[dir] = struct{}{}

	return nil
}
