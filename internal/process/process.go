package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"clipfetch/internal/logging"
	"clipfetch/internal/metrics"
)

// ErrSpawn wraps every failure to start an external process (missing or
// non-executable binary, pipe exhaustion).
var ErrSpawn = errors.New("failed to spawn process")

// Mode selects how one stdio channel of a child process is wired.
type Mode int

const (
	// Ignore connects the channel to the null device.
	Ignore Mode = iota
	// Pipe gives the parent the other end of an OS pipe.
	Pipe
	// Capture keeps a bounded tail of the channel's output in memory.
	// Only valid for Stderr.
	Capture
	// Inherit shares the parent's own stdio.
	Inherit
)

// firstExtraFD is the child-side descriptor of the first extra input.
const firstExtraFD = 3

// stderrTailSize bounds how much diagnostic output is kept per process.
const stderrTailSize = 16 * 1024

// waitDelay bounds how long Wait lingers on stdio copying after the process
// itself has exited (e.g. a grandchild still holding stderr).
const waitDelay = 5 * time.Second

// Spec names every channel of a child process explicitly. Extra inputs are
// numbered from fd 3 in declaration order; use FD or PipeArg to reference
// them in the argument list.
type Spec struct {
	Stdin       Mode
	Stdout      Mode
	Stderr      Mode
	ExtraInputs []string
}

// FD returns the child-side descriptor number of a named extra input, or -1.
func (s Spec) FD(name string) int {
	for i, n := range s.ExtraInputs {
		if n == name {
			return firstExtraFD + i
		}
	}
	return -1
}

// PipeArg returns the transcoder URL ("pipe:N") for a named extra input.
func (s Spec) PipeArg(name string) string {
	return "pipe:" + strconv.Itoa(s.FD(name))
}

// Handle owns one spawned external process and the parent ends of its pipes.
type Handle struct {
	name string
	cmd  *exec.Cmd

	stdin  *os.File
	stdout *os.File
	stderr *os.File
	extra  map[string]*os.File
	tail   *tailBuffer

	done     chan struct{}
	mu       sync.Mutex
	waitErr  error
	exitCode int
	signal   string

	killOnce  sync.Once
	closeOnce sync.Once
}

// Spawn starts path with args, wiring stdio per spec. A failure to start is
// returned as an error wrapping ErrSpawn; it never panics.
func Spawn(name, path string, args []string, spec Spec) (*Handle, error) {
	cmd := exec.Command(path, args...)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	h := &Handle{
		name:     name,
		cmd:      cmd,
		extra:    make(map[string]*os.File, len(spec.ExtraInputs)),
		done:     make(chan struct{}),
		exitCode: -1,
	}

	// Child ends are closed in the parent once the child holds them.
	var childEnds []*os.File
	closeChildEnds := func() {
		for _, f := range childEnds {
			_ = f.Close()
		}
	}
	fail := func(err error) (*Handle, error) {
		closeChildEnds()
		h.Close()
		metrics.ProcessSpawnsTotal.WithLabelValues(name, "error").Inc()
		return nil, fmt.Errorf("%w: %s (%s): %v", ErrSpawn, name, path, err)
	}

	switch spec.Stdin {
	case Pipe:
		r, w, err := os.Pipe()
		if err != nil {
			return fail(err)
		}
		cmd.Stdin = r
		childEnds = append(childEnds, r)
		h.stdin = w
	case Inherit:
		cmd.Stdin = os.Stdin
	}

	switch spec.Stdout {
	case Pipe:
		r, w, err := os.Pipe()
		if err != nil {
			return fail(err)
		}
		cmd.Stdout = w
		childEnds = append(childEnds, w)
		h.stdout = r
	case Inherit:
		cmd.Stdout = os.Stdout
	}

	switch spec.Stderr {
	case Pipe:
		r, w, err := os.Pipe()
		if err != nil {
			return fail(err)
		}
		cmd.Stderr = w
		childEnds = append(childEnds, w)
		h.stderr = r
	case Capture:
		h.tail = newTailBuffer(stderrTailSize)
		cmd.Stderr = h.tail
	case Inherit:
		cmd.Stderr = os.Stderr
	}

	for _, input := range spec.ExtraInputs {
		r, w, err := os.Pipe()
		if err != nil {
			return fail(err)
		}
		cmd.ExtraFiles = append(cmd.ExtraFiles, r)
		childEnds = append(childEnds, r)
		h.extra[input] = w
	}

	if err := cmd.Start(); err != nil {
		return fail(err)
	}
	closeChildEnds()

	metrics.ProcessSpawnsTotal.WithLabelValues(name, "ok").Inc()
	metrics.ProcessesRunning.Inc()
	logging.Debug("Spawned %s pid=%d: %s", name, cmd.Process.Pid, path)

	go h.wait()
	return h, nil
}

func (h *Handle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.waitErr = err
	if state := h.cmd.ProcessState; state != nil {
		h.exitCode = state.ExitCode()
		h.signal = exitSignal(state)
	}
	h.mu.Unlock()

	metrics.ProcessesRunning.Dec()
	close(h.done)
}

// Name returns the role name given at spawn.
func (h *Handle) Name() string {
	return h.name
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Stdin returns the parent's write end of the child's stdin, or nil.
func (h *Handle) Stdin() io.WriteCloser {
	if h.stdin == nil {
		return nil
	}
	return h.stdin
}

// Stdout returns the parent's read end of the child's stdout, or nil.
func (h *Handle) Stdout() io.ReadCloser {
	if h.stdout == nil {
		return nil
	}
	return h.stdout
}

// Stderr returns the parent's read end of the child's stderr when it was
// spawned with Stderr: Pipe, or nil.
func (h *Handle) Stderr() io.ReadCloser {
	if h.stderr == nil {
		return nil
	}
	return h.stderr
}

// Input returns the parent's write end of a named extra input, or nil.
func (h *Handle) Input(name string) io.WriteCloser {
	if f, ok := h.extra[name]; ok {
		return f
	}
	return nil
}

// StderrTail returns the last captured bytes of stderr (Capture mode only).
func (h *Handle) StderrTail() string {
	if h.tail == nil {
		return ""
	}
	return h.tail.String()
}

// Done is closed once the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits and returns its exit error, if any.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// Running reports whether the process has not yet been reaped.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code, or -1 while running or when killed by a
// signal.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// Signal returns the terminating signal name, or "" for a normal exit.
func (h *Handle) Signal() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.signal
}

// Succeeded reports a completed exit with code 0.
func (h *Handle) Succeeded() bool {
	return !h.Running() && h.ExitCode() == 0
}

// Describe summarises the terminal state for logs.
func (h *Handle) Describe() string {
	if h.Running() {
		return "running"
	}
	if sig := h.Signal(); sig != "" {
		return "signal: " + sig
	}
	return "exit status " + strconv.Itoa(h.ExitCode())
}

// Kill forcefully terminates the process and its group. It is safe to call
// any number of times, from any goroutine, before or after exit.
func (h *Handle) Kill() {
	h.killOnce.Do(func() {
		if !h.Running() {
			return
		}
		if err := killTree(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logging.Debug("kill %s pid=%d: %v", h.name, h.cmd.Process.Pid, err)
		}
	})
}

// Close releases the parent ends of every pipe. Blocked reads and writes on
// those ends return with an error. Safe to call repeatedly.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		for _, f := range []*os.File{h.stdin, h.stdout, h.stderr} {
			if f != nil {
				_ = f.Close()
			}
		}
		for _, f := range h.extra {
			_ = f.Close()
		}
	})
}

// tailBuffer is an io.Writer keeping only the last limit bytes.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
