// Package tempfile owns the intermediate files used by relay downloads: unique
// creation, idempotent removal and a sweeper for files left behind by a
// crashed server.
package tempfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipfetch/internal/logging"
	"clipfetch/internal/metrics"
)

// Prefix starts every file name this package creates. The sweeper only
// touches files carrying it.
const Prefix = "clipfetch-"

// Manager creates and sweeps temp files in one directory.
type Manager struct {
	dir    string
	maxAge time.Duration
}

// New returns a manager for dir (os.TempDir() when empty). Files older than
// maxAge are removed by Sweep.
func New(dir string, maxAge time.Duration) *Manager {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Manager{dir: dir, maxAge: maxAge}
}

// Dir returns the managed directory.
func (m *Manager) Dir() string {
	return m.dir
}

// File is one created temp file. Remove is safe to call any number of times.
type File struct {
	path string
	once sync.Once
	err  error
}

// Create makes a new empty file named from a millisecond timestamp and a
// random uuid, so concurrent requests never collide. tag is a short label for
// humans reading the directory; ext should include its dot.
func (m *Manager) Create(tag, ext string) (*File, error) {
	name := Prefix + sanitizeTag(tag) + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + uuid.NewString() + ext
	path := filepath.Join(m.dir, name)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		metrics.TempFileErrors.WithLabelValues("create").Inc()
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		logging.Warn("failed to close temp file %s: %v", path, err)
	}

	metrics.TempFilesActive.Inc()
	return &File{path: path}, nil
}

func sanitizeTag(tag string) string {
	tag = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, strings.ToLower(tag))
	if tag == "" {
		return ""
	}
	return tag + "-"
}

// Path returns the absolute path of the file.
func (f *File) Path() string {
	return f.path
}

// Remove deletes the file. Failures are logged and counted, and the first
// result is returned to every caller; they never propagate further than that.
func (f *File) Remove() error {
	f.once.Do(func() {
		err := os.Remove(f.path)
		switch {
		case err == nil, errors.Is(err, os.ErrNotExist):
			metrics.TempFilesActive.Dec()
		default:
			metrics.TempFileErrors.WithLabelValues("remove").Inc()
			logging.Warn("failed to remove temp file %s: %v", f.path, err)
			f.err = err
		}
	})
	return f.err
}

// Sweep removes files created by this package that are older than maxAge and
// returns how many files and bytes were freed.
func (m *Manager) Sweep() (int, int64, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		metrics.TempFileErrors.WithLabelValues("sweep").Inc()
		return 0, 0, fmt.Errorf("failed to read temp directory: %w", err)
	}

	cutoff := time.Now().Add(-m.maxAge)
	var (
		removed    int
		freedBytes int64
	)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), Prefix) {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logging.Warn("failed to get info for %s: %v", path, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			metrics.TempFileErrors.WithLabelValues("sweep").Inc()
			logging.Warn("failed to remove stale temp file %s: %v", path, err)
			continue
		}
		removed++
		freedBytes += info.Size()
	}

	if removed > 0 {
		metrics.TempFilesSwept.Add(float64(removed))
		logging.Info("Swept %d stale temp files, freed %d bytes", removed, freedBytes)
	}
	return removed, freedBytes, nil
}

// Run sweeps immediately and then every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	sweep := func() {
		if _, _, err := m.Sweep(); err != nil {
			logging.Warn("temp sweep failed: %v", err)
		}
	}

	sweep()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			return
		}
	}
}
