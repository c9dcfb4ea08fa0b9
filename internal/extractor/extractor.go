// Package extractor builds media-extractor (yt-dlp compatible) invocations
// and fetches post metadata.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"clipfetch/internal/failure"
	"clipfetch/internal/logging"
	"clipfetch/internal/process"
)

// maxInfoSize bounds the -J document read into memory.
const maxInfoSize = 32 << 20

var log = logging.Scoped("extractor")

// Extractor holds the binary path and cookie directory.
type Extractor struct {
	path       string
	cookiesDir string
}

// New returns an Extractor running the binary at path. Cookie files are
// looked up as <cookiesDir>/<platform>_cookies.txt.
func New(path, cookiesDir string) *Extractor {
	return &Extractor{path: path, cookiesDir: cookiesDir}
}

// Path returns the extractor executable.
func (e *Extractor) Path() string {
	return e.path
}

// CookieFile returns the cookie file for platform, or "" when it does not
// exist. A missing file means anonymous access, never an error.
func (e *Extractor) CookieFile(platform string) string {
	if e.cookiesDir == "" {
		return ""
	}
	path := filepath.Join(e.cookiesDir, platform+"_cookies.txt")
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("cookie file %s unreadable, continuing anonymously: %v", path, err)
		}
		return ""
	}
	return path
}

func (e *Extractor) common(platform string) []string {
	args := []string{"--no-playlist", "--no-warnings", "--quiet", "--no-progress"}
	if cookies := e.CookieFile(platform); cookies != "" {
		args = append(args, "--cookies", cookies)
	}
	return args
}

// StreamArgs writes the selected format to stdout.
func (e *Extractor) StreamArgs(platform, url, format string) []string {
	args := e.common(platform)
	if format != "" {
		args = append(args, "-f", format)
	}
	return append(args, "-o", "-", "--", url)
}

// FileArgs writes the selected format to output, replacing the empty file
// created beforehand.
func (e *Extractor) FileArgs(platform, url, format, output string) []string {
	args := e.common(platform)
	if format != "" {
		args = append(args, "-f", format)
	}
	return append(args, "--force-overwrites", "--no-part", "-o", output, "--", url)
}

// InfoArgs prints the post metadata as one JSON document.
func (e *Extractor) InfoArgs(platform, url string) []string {
	return append(e.common(platform), "-J", "--", url)
}

// Info fetches and shapes metadata for url. Extractor failures come back as
// *failure.Error with a classified category.
func (e *Extractor) Info(ctx context.Context, platform, url string) (*Info, error) {
	h, err := process.Spawn("extractor", e.path, e.InfoArgs(platform, url), process.Spec{
		Stdout: process.Pipe,
		Stderr: process.Capture,
	})
	if err != nil {
		return nil, failure.New(failure.Spawn, "", err)
	}
	defer h.Close()

	stop := context.AfterFunc(ctx, h.Kill)
	defer stop()

	data, readErr := io.ReadAll(io.LimitReader(h.Stdout(), maxInfoSize))
	_, _ = io.Copy(io.Discard, h.Stdout())
	waitErr := h.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if waitErr != nil {
		log.Debug("info for %s failed (%s): %s", url, h.Describe(), h.StderrTail())
		return nil, failure.FromStderr(h.StderrTail(), waitErr)
	}
	if readErr != nil {
		return nil, failure.New(failure.Generic, "", fmt.Errorf("reading metadata: %w", readErr))
	}

	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, failure.New(failure.Generic, "extractor returned malformed metadata", err)
	}
	return shape(&raw), nil
}
