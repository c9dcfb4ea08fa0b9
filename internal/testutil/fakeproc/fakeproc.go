// Package fakeproc stands in for the extractor and transcoder binaries in
// tests. A test package calls Main from its TestMain; when the test binary is
// re-executed with the -fakeproc marker it plays the requested behavior and
// exits instead of running tests.
//
// Behaviors (params precede "--", the caller's own args follow it):
//
//	emit N                 write N bytes to stdout, exit 0
//	slow CHUNK MS          write CHUNK bytes every MS milliseconds until killed
//	fail CODE MSG          write MSG to stderr, exit CODE
//	emitfail N CODE MSG    write N bytes, then MSG to stderr, exit CODE
//	latefail MS CODE MSG   sleep MS milliseconds, then MSG to stderr, exit CODE
//	cat                    copy stdin to stdout
//	combine                copy fd 3 and fd 4 to stdout concurrently
//	writefile PATH N       write N bytes to PATH
//	catfile PATH           copy stdin to PATH
//	encoders COUNT MARKER  append a line to COUNT, list encoders incl. MARKER
//	sleep                  block until killed
//	ytdlp N                extractor lookalike: -J prints info JSON, -o - emits
//	                       N bytes, -o PATH writes N bytes to PATH
//	ffmpeg MARKER          transcoder lookalike: -encoders lists MARKER, pipe:3
//	                       inputs combine, "-" output cats, otherwise stdin to
//	                       the last arg
package fakeproc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const marker = "-fakeproc"

// Main runs a fake behavior and exits when the process was started by
// Command or Script. It returns immediately otherwise.
func Main() {
	if len(os.Args) < 3 || os.Args[1] != marker {
		return
	}

	params, rest := split(os.Args[3:])
	os.Exit(run(os.Args[2], params, rest))
}

// Command returns the executable and argument list that re-enter this test
// binary with the given behavior.
func Command(behavior string, params ...string) (string, []string) {
	args := append([]string{marker, behavior}, params...)
	return os.Args[0], append(args, "--")
}

// Script writes an executable shell wrapper that runs the behavior and passes
// through any arguments it is invoked with. Use it where production code
// builds the argument list itself.
func Script(t *testing.T, name, behavior string, params ...string) string {
	t.Helper()

	quoted := make([]string, 0, len(params))
	for _, p := range params {
		quoted = append(quoted, "'"+strings.ReplaceAll(p, "'", `'\''`)+"'")
	}

	script := fmt.Sprintf("#!/bin/sh\nexec '%s' %s %s %s -- \"$@\"\n",
		os.Args[0], marker, behavior, strings.Join(quoted, " "))

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake %s: %v", name, err)
	}
	return path
}

// InfoJSON is what the ytdlp behavior prints for -J.
const InfoJSON = `{
  "id": "abc123",
  "title": "Fake Clip / Title",
  "uploader": "Fake Channel",
  "duration": 61.5,
  "view_count": 4200,
  "upload_date": "20240102",
  "description": "fake description",
  "thumbnail": "https://example.com/thumb.jpg",
  "formats": [
    {"format_id": "140", "ext": "m4a", "acodec": "mp4a.40.2", "vcodec": "none", "abr": 129.5, "filesize": 1000},
    {"format_id": "18", "ext": "mp4", "acodec": "mp4a.40.2", "vcodec": "avc1.42001E", "height": 360, "tbr": 500},
    {"format_id": "137", "ext": "mp4", "acodec": "none", "vcodec": "avc1.640028", "height": 1080, "fps": 30, "tbr": 4000},
    {"format_id": "sb0", "ext": "mhtml", "acodec": "none", "vcodec": "none"}
  ]
}`

func split(args []string) (params, rest []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

func run(behavior string, params, rest []string) int {
	switch behavior {
	case "emit":
		return emit(os.Stdout, atoi(param(params, 0)))
	case "slow":
		chunk := atoi(param(params, 0))
		interval := time.Duration(atoi(param(params, 1))) * time.Millisecond
		buf := bytes.Repeat([]byte{'s'}, chunk)
		for {
			if _, err := os.Stdout.Write(buf); err != nil {
				return 1
			}
			time.Sleep(interval)
		}
	case "fail":
		fmt.Fprint(os.Stderr, strings.Join(params[1:], " "))
		return atoi(param(params, 0))
	case "latefail":
		time.Sleep(time.Duration(atoi(param(params, 0))) * time.Millisecond)
		fmt.Fprint(os.Stderr, strings.Join(params[2:], " "))
		return atoi(param(params, 1))
	case "emitfail":
		emit(os.Stdout, atoi(param(params, 0)))
		fmt.Fprint(os.Stderr, strings.Join(params[2:], " "))
		return atoi(param(params, 1))
	case "cat":
		if _, err := io.Copy(os.Stdout, os.Stdin); err != nil {
			return 1
		}
		return 0
	case "combine":
		return combine()
	case "writefile":
		return writeFile(param(params, 0), atoi(param(params, 1)))
	case "catfile":
		return catFile(param(params, 0))
	case "encoders":
		return encoders(param(params, 0), param(params, 1))
	case "sleep":
		time.Sleep(time.Hour)
		return 0
	case "ytdlp":
		return ytdlp(atoi(param(params, 0)), rest)
	case "ffmpeg":
		return ffmpeg(param(params, 0), rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown fake behavior %q", behavior)
		return 2
	}
}

func param(params []string, i int) string {
	if i < len(params) {
		return params[i]
	}
	return ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func emit(w io.Writer, n int) int {
	chunk := bytes.Repeat([]byte{'x'}, 4096)
	for n > 0 {
		size := min(n, len(chunk))
		if _, err := w.Write(chunk[:size]); err != nil {
			return 1
		}
		n -= size
	}
	return 0
}

func combine() int {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, fd := range []uintptr{3, 4} {
		f := os.NewFile(fd, fmt.Sprintf("pipe:%d", fd))
		if f == nil {
			return 3
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 8192)
			for {
				n, err := f.Read(buf)
				if n > 0 {
					mu.Lock()
					os.Stdout.Write(buf[:n])
					mu.Unlock()
				}
				if err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()
	return 0
}

func writeFile(path string, n int) int {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprint(os.Stderr, err)
		return 1
	}
	defer f.Close()
	return emit(f, n)
}

func catFile(path string) int {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprint(os.Stderr, err)
		return 1
	}
	defer f.Close()
	if _, err := io.Copy(f, os.Stdin); err != nil {
		return 1
	}
	return 0
}

func encoders(countFile, want string) int {
	if countFile != "" && countFile != "-" {
		f, err := os.OpenFile(countFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			f.WriteString("spawn\n")
			f.Close()
		}
	}
	// Give concurrent first callers time to pile up.
	time.Sleep(50 * time.Millisecond)

	fmt.Println("Encoders:")
	fmt.Println(" A....D aac                  AAC (Advanced Audio Coding)")
	if want != "" && want != "-" {
		fmt.Printf(" A....D %-20s fake encoder\n", want)
	}
	return 0
}

func ytdlp(n int, args []string) int {
	for i, a := range args {
		switch a {
		case "-J", "--dump-single-json":
			fmt.Println(InfoJSON)
			return 0
		case "-o", "--output":
			if i+1 < len(args) && args[i+1] != "-" {
				return writeFile(args[i+1], n)
			}
		}
	}
	return emit(os.Stdout, n)
}

func ffmpeg(want string, args []string) int {
	for _, a := range args {
		switch a {
		case "-encoders":
			return encoders("-", want)
		case "pipe:3":
			return combine()
		}
	}
	if len(args) == 0 || args[len(args)-1] == "-" || args[len(args)-1] == "pipe:1" {
		if _, err := io.Copy(os.Stdout, os.Stdin); err != nil {
			return 1
		}
		return 0
	}
	return catFile(args[len(args)-1])
}
