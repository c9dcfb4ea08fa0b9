package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"clipfetch/internal/failure"
	"clipfetch/internal/metrics"
	"clipfetch/internal/streaming"
	"clipfetch/internal/tempfile"
	"clipfetch/internal/testutil/fakeproc"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMain(m *testing.M) {
	fakeproc.Main()
	os.Exit(m.Run())
}

func fake(role, behavior string, params ...string) Command {
	path, args := fakeproc.Command(behavior, params...)
	return Command{Role: role, Path: path, Args: args}
}

func testRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	return NewRunner(Config{
		KillGrace: 3 * time.Second,
		ExitGrace: 3 * time.Second,
		Temp:      tempfile.New(dir, time.Hour),
	}), dir
}

func serve(t *testing.T, r *Runner, plan Plan) (Result, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download", nil)
	return r.Serve(rec, req, plan), rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) failure.ErrorBody {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	var body failure.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return body
}

// assertReaped checks that none of the result's processes is still alive.
func assertReaped(t *testing.T, res Result) {
	t.Helper()
	for _, pid := range res.Pids {
		if err := syscall.Kill(pid, 0); !errors.Is(err, syscall.ESRCH) {
			t.Errorf("pid %d still present after Serve returned (kill 0: %v)", pid, err)
		}
	}
}

func TestServe_Direct(t *testing.T) {
	r, _ := testRunner(t)

	res, rec := serve(t, r, Plan{
		Strategy:    Direct,
		Sources:     []Command{fake(RoleExtractor, "emit", "300000")},
		Filename:    "Some Clip.mp4",
		ContentType: "video/mp4",
	})

	if res.State != Completed {
		t.Fatalf("State = %v (%v), want completed", res.State, res.Err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "Some Clip.mp4") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Header().Get("Content-Type") != "video/mp4" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.Len() != 300000 || res.Bytes != 300000 {
		t.Errorf("Body = %d bytes, result = %d, want 300000", rec.Body.Len(), res.Bytes)
	}
	if !res.HeadersSent || res.NeedsAbort() {
		t.Errorf("Unexpected result flags: %+v", res)
	}
	assertReaped(t, res)
}

func TestServe_Transcode(t *testing.T) {
	r, _ := testRunner(t)
	cat := fake(RoleTranscoder, "cat")

	res, rec := serve(t, r, Plan{
		Strategy:   Transcode,
		Sources:    []Command{fake(RoleExtractor, "emit", "150000")},
		Transcoder: &cat,
		Filename:   "clip_192kbps.mp3",
	})

	if res.State != Completed {
		t.Fatalf("State = %v (%v), want completed", res.State, res.Err)
	}
	if rec.Body.Len() != 150000 {
		t.Errorf("Body = %d bytes, want 150000", rec.Body.Len())
	}
	if len(res.Pids) != 2 {
		t.Errorf("Expected 2 processes, got %v", res.Pids)
	}
	assertReaped(t, res)
}

func TestServe_Merge(t *testing.T) {
	r, _ := testRunner(t)

	video := fake(RoleVideoSource, "emit", "80000")
	video.Input = "video"
	audio := fake(RoleAudioSource, "emit", "30000")
	audio.Input = "audio"
	combiner := fake(RoleCombiner, "combine")

	res, rec := serve(t, r, Plan{
		Strategy:   Merge,
		Sources:    []Command{video, audio},
		Transcoder: &combiner,
		Filename:   "clip_1080p.mp4",
	})

	if res.State != Completed {
		t.Fatalf("State = %v (%v), want completed", res.State, res.Err)
	}
	if rec.Body.Len() != 110000 {
		t.Errorf("Body = %d bytes, want 110000", rec.Body.Len())
	}
	if len(res.Pids) != 3 {
		t.Errorf("Expected 3 processes, got %v", res.Pids)
	}
	assertReaped(t, res)
}

// A source failing mid-merge only truncates its input. The combiner's exit
// status decides the outcome.
func TestServe_MergeSourceIsBestEffort(t *testing.T) {
	r, _ := testRunner(t)

	video := fake(RoleVideoSource, "emit", "8000")
	video.Input = "video"
	audio := fake(RoleAudioSource, "emitfail", "3000", "1", "ERROR:", "audio", "stream", "broke")
	audio.Input = "audio"
	combiner := fake(RoleCombiner, "combine")

	res, rec := serve(t, r, Plan{
		Strategy:   Merge,
		Sources:    []Command{video, audio},
		Transcoder: &combiner,
	})

	if res.State != Completed {
		t.Fatalf("State = %v (%v), want completed", res.State, res.Err)
	}
	if rec.Code != http.StatusOK || rec.Body.Len() != 11000 {
		t.Errorf("Got %d with %d bytes, want 200 with 11000", rec.Code, rec.Body.Len())
	}
}

func TestServe_MergeCombinerFailureIsFatal(t *testing.T) {
	r, _ := testRunner(t)

	video := fake(RoleVideoSource, "emit", "10")
	video.Input = "video"
	audio := fake(RoleAudioSource, "emit", "10")
	audio.Input = "audio"
	combiner := fake(RoleCombiner, "fail", "1", "Invalid data found when processing input")

	res, rec := serve(t, r, Plan{
		Strategy:   Merge,
		Sources:    []Command{video, audio},
		Transcoder: &combiner,
	})

	if res.State != Failed {
		t.Fatalf("State = %v, want failed", res.State)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Category != failure.Transcoder {
		t.Errorf("Category = %q, want %q", body.Category, failure.Transcoder)
	}
	assertReaped(t, res)
}

func TestServe_Relay(t *testing.T) {
	tests := []struct {
		name       string
		source     Command
		transcoder *Command
	}{
		{
			name:   "extractor writes file",
			source: fake(RoleExtractor, "writefile", OutputPlaceholder, "5000"),
		},
		{
			name:   "transcoder writes file",
			source: fake(RoleExtractor, "emit", "5000"),
			transcoder: func() *Command {
				c := fake(RoleTranscoder, "catfile", OutputPlaceholder)
				return &c
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, dir := testRunner(t)

			res, rec := serve(t, r, Plan{
				Strategy:   Relay,
				Sources:    []Command{tt.source},
				Transcoder: tt.transcoder,
				Filename:   "reel.mp4",
				TempTag:    "instagram",
				TempExt:    ".mp4",
			})

			if res.State != Completed {
				t.Fatalf("State = %v (%v), want completed", res.State, res.Err)
			}
			if got := rec.Header().Get("Content-Length"); got != "5000" {
				t.Errorf("Content-Length = %q, want 5000", got)
			}
			if rec.Body.Len() != 5000 {
				t.Errorf("Body = %d bytes, want 5000", rec.Body.Len())
			}
			if res.TempPath == "" || filepath.Dir(res.TempPath) != dir {
				t.Errorf("TempPath = %q, want a file in %s", res.TempPath, dir)
			}
			if _, err := os.Stat(res.TempPath); !os.IsNotExist(err) {
				t.Errorf("Temp file still present: %v", err)
			}
			assertReaped(t, res)
		})
	}
}

func TestServe_RelayFailureRemovesTempFile(t *testing.T) {
	r, dir := testRunner(t)

	// Relay plans must mention the output placeholder.
	failing := fake(RoleExtractor, "fail", "1", "ERROR: [Instagram] abc: Requested content is not available")
	failing.Args = append(failing.Args, OutputPlaceholder)
	res, rec := serve(t, r, Plan{
		Strategy: Relay,
		Sources:  []Command{failing},
		TempTag:  "instagram",
		TempExt:  ".mp4",
		Filename: "reel.mp4",
	})

	if res.State != Failed {
		t.Fatalf("State = %v, want failed", res.State)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", rec.Code)
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Error("Error response must not carry Content-Disposition")
	}
	if body := decodeError(t, rec); body.Category != failure.Unavailable {
		t.Errorf("Category = %q, want unavailable", body.Category)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Temp dir not empty after failure: %v", entries)
	}
}

// An extractor that takes a few seconds to give up must still produce a
// JSON error under the default header delay.
func TestServe_SlowLoginRequiredBeforeHeaderCommit(t *testing.T) {
	r, _ := testRunner(t)

	res, rec := serve(t, r, Plan{
		Strategy: Direct,
		Sources:  []Command{fake(RoleExtractor, "latefail", "2000", "1", "ERROR: [youtube] abc: Sign in to confirm your age. login required")},
		Filename: "clip.mp4",
	})

	if res.State != Failed || res.HeadersSent || res.NeedsAbort() {
		t.Fatalf("Unexpected result: %+v", res)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", rec.Code)
	}
	if body := decodeError(t, rec); body.Category == failure.Generic {
		t.Errorf("Expected a specific category, got %+v", body)
	}
}

func TestServe_LoginRequired(t *testing.T) {
	r, _ := testRunner(t)

	res, rec := serve(t, r, Plan{
		Strategy: Direct,
		Sources:  []Command{fake(RoleExtractor, "fail", "1", "ERROR: [instagram] xyz: login required to view this post")},
		Filename: "reel.mp4",
	})

	if res.State != Failed || res.HeadersSent {
		t.Fatalf("Unexpected result: %+v", res)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Success || body.Category != failure.LoginRequired {
		t.Errorf("Unexpected body: %+v", body)
	}
	if !strings.Contains(body.Details, "login required") {
		t.Errorf("Details = %q", body.Details)
	}
	assertReaped(t, res)
}

func TestServe_TranscodePrefersSourceDiagnostics(t *testing.T) {
	r, _ := testRunner(t)
	cat := fake(RoleTranscoder, "cat")

	res, rec := serve(t, r, Plan{
		Strategy:   Transcode,
		Sources:    []Command{fake(RoleExtractor, "fail", "1", "ERROR: Video unavailable")},
		Transcoder: &cat,
	})

	if res.State != Failed {
		t.Fatalf("State = %v, want failed", res.State)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", rec.Code)
	}
}

func TestServe_TranscoderFailure(t *testing.T) {
	r, _ := testRunner(t)
	broken := fake(RoleTranscoder, "fail", "1", "Unknown encoder 'libmp3lame'")

	res, rec := serve(t, r, Plan{
		Strategy:   Transcode,
		Sources:    []Command{fake(RoleExtractor, "emit", "10")},
		Transcoder: &broken,
	})

	if res.State != Failed {
		t.Fatalf("State = %v, want failed", res.State)
	}
	body := decodeError(t, rec)
	if body.Category != failure.Transcoder || !strings.Contains(body.Details, "libmp3lame") {
		t.Errorf("Unexpected body: %+v", body)
	}
}

func TestServe_SpawnFailure(t *testing.T) {
	r, _ := testRunner(t)

	res, rec := serve(t, r, Plan{
		Strategy: Direct,
		Sources:  []Command{{Role: RoleExtractor, Path: filepath.Join(t.TempDir(), "no-such-yt-dlp")}},
		Filename: "x.mp4",
	})

	if res.State != Failed {
		t.Fatalf("State = %v, want failed", res.State)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", rec.Code)
	}
	if body := decodeError(t, rec); body.Category != failure.Spawn {
		t.Errorf("Category = %q, want spawn", body.Category)
	}
}

func TestServe_SpawnFailureKillsEarlierStages(t *testing.T) {
	r, _ := testRunner(t)
	missing := Command{Role: RoleTranscoder, Path: filepath.Join(t.TempDir(), "no-such-ffmpeg")}

	res, _ := serve(t, r, Plan{
		Strategy:   Transcode,
		Sources:    []Command{fake(RoleExtractor, "sleep")},
		Transcoder: &missing,
	})

	if res.State != Failed {
		t.Fatalf("State = %v, want failed", res.State)
	}
	if len(res.Pids) != 1 {
		t.Fatalf("Expected the started extractor in the result, got %v", res.Pids)
	}
	assertReaped(t, res)
}

func TestServe_NoOutput(t *testing.T) {
	r, _ := testRunner(t)

	res, rec := serve(t, r, Plan{
		Strategy: Direct,
		Sources:  []Command{fake(RoleExtractor, "emit", "0")},
	})

	if res.State != Failed {
		t.Fatalf("State = %v, want failed", res.State)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", rec.Code)
	}
	if !errors.Is(res.Err, errNoOutput) {
		t.Errorf("Err = %v, want %v", res.Err, errNoOutput)
	}
}

func TestServe_FailureAfterCommitNeedsAbort(t *testing.T) {
	r, _ := testRunner(t)

	res, rec := serve(t, r, Plan{
		Strategy: Direct,
		Sources:  []Command{fake(RoleExtractor, "emitfail", "2000000", "1", "ERROR: fragment 3 not found")},
	})

	if res.State != Failed {
		t.Fatalf("State = %v, want failed", res.State)
	}
	if !res.NeedsAbort() {
		t.Error("Expected NeedsAbort after bytes were sent")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want the already-sent 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "success") {
		t.Error("JSON must not be appended to a committed media body")
	}
}

func TestServe_InvalidPlan(t *testing.T) {
	r, _ := testRunner(t)

	res, rec := serve(t, r, Plan{Strategy: Merge, Sources: []Command{fake(RoleExtractor, "emit", "1")}})

	if res.State != Failed || !errors.Is(res.Err, ErrInvalidPlan) {
		t.Fatalf("Unexpected result: %+v", res)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", rec.Code)
	}
	if len(res.Pids) != 0 {
		t.Errorf("Nothing should have been spawned: %v", res.Pids)
	}
}

// A real server is used so that headers reach the client before the body
// and a closed connection cancels the request context.
func TestServe_ClientDisconnect(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Config{
		HeaderFlushDelay: 50 * time.Millisecond,
		KillGrace:        3 * time.Second,
		Temp:             tempfile.New(dir, time.Hour),
	})

	results := make(chan Result, 1)
	pipelines := make(chan *pipeline, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		p := r.newPipeline(req.Context(), w, Plan{
			Strategy: Direct,
			Sources:  []Command{fake(RoleExtractor, "slow", "1024", "20")},
			Filename: "long.mp4",
		})
		pipelines <- p
		results <- p.run()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Disposition") == "" {
		t.Errorf("Unexpected headers: %d %v", resp.StatusCode, resp.Header)
	}
	if _, err := io.ReadFull(resp.Body, make([]byte, 4096)); err != nil {
		t.Fatalf("reading body: %v", err)
	}
	cancel()
	resp.Body.Close()

	var res Result
	select {
	case res = <-results:
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not stop after client disconnect")
	}

	if res.State != Aborted || !errors.Is(res.Err, ErrInterrupted) {
		t.Errorf("Unexpected result: %v %v", res.State, res.Err)
	}
	if res.NeedsAbort() {
		t.Error("An aborted pipeline has no one left to abort for")
	}
	if p := <-pipelines; p.cleanups.Load() != 1 {
		t.Errorf("cleanup ran %d times, want 1", p.cleanups.Load())
	}
	assertEmptyDir(t, dir)
	assertReaped(t, res)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Temp dir not empty: %v", entries)
	}
}

// The client leaves while the relay's source is still writing the file.
func TestServe_RelayClientLeavesDuringDownload(t *testing.T) {
	r, dir := testRunner(t)

	source := fake(RoleExtractor, "sleep")
	source.Args = append(source.Args, OutputPlaceholder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download", nil).WithContext(ctx)

	time.AfterFunc(200*time.Millisecond, cancel)
	res := r.Serve(rec, req, Plan{
		Strategy: Relay,
		Sources:  []Command{source},
		TempTag:  "instagram",
		TempExt:  ".mp4",
		Filename: "reel.mp4",
	})

	if res.State != Aborted || !errors.Is(res.Err, ErrInterrupted) {
		t.Errorf("Unexpected result: %v %v", res.State, res.Err)
	}
	if res.HeadersSent {
		t.Error("Relay must not commit before the file is complete")
	}
	assertEmptyDir(t, dir)
	assertReaped(t, res)
}

// The client leaves while the finished file is being sent.
func TestServe_RelayClientLeavesDuringSend(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Config{
		KillGrace: 3 * time.Second,
		Temp:      tempfile.New(dir, time.Hour),
	})

	const size = 32 << 20
	results := make(chan Result, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		results <- r.Serve(w, req, Plan{
			Strategy: Relay,
			Sources:  []Command{fake(RoleExtractor, "writefile", OutputPlaceholder, strconv.Itoa(size))},
			TempTag:  "instagram",
			TempExt:  ".mp4",
			Filename: "reel.mp4",
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.Header.Get("Content-Length") != strconv.Itoa(size) {
		t.Errorf("Content-Length = %q", resp.Header.Get("Content-Length"))
	}
	if _, err := io.ReadFull(resp.Body, make([]byte, 4096)); err != nil {
		t.Fatalf("reading body: %v", err)
	}
	cancel()
	resp.Body.Close()

	var res Result
	select {
	case res = <-results:
	case <-time.After(10 * time.Second):
		t.Fatal("relay did not stop after client disconnect")
	}

	if res.State != Aborted {
		t.Errorf("State = %v (%v), want aborted", res.State, res.Err)
	}
	if res.Bytes >= size {
		t.Errorf("Sent %d bytes to a client that left", res.Bytes)
	}
	assertEmptyDir(t, dir)
	assertReaped(t, res)
}

func TestServe_ProgressUpdatesBytesMetric(t *testing.T) {
	stream := streaming.DefaultTimeoutWriterConfig()
	var (
		mu      sync.Mutex
		reports []int64
	)
	stream.OnProgress = func(written int64, _ time.Duration) {
		mu.Lock()
		reports = append(reports, written)
		mu.Unlock()
	}
	r := NewRunner(Config{KillGrace: 3 * time.Second, Stream: stream, Temp: tempfile.New(t.TempDir(), time.Hour)})

	counter := metrics.PipelineBytesStreamed.WithLabelValues(string(Direct))
	before := testutil.ToFloat64(counter)

	const size = 3 << 20
	res, rec := serve(t, r, Plan{
		Strategy: Direct,
		Sources:  []Command{fake(RoleExtractor, "emit", strconv.Itoa(size))},
		Filename: "big.mp4",
	})

	if res.State != Completed || rec.Body.Len() != size {
		t.Fatalf("State = %v (%v), body = %d bytes", res.State, res.Err, rec.Body.Len())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) < 2 {
		t.Errorf("Expected progress reports every megabyte, got %v", reports)
	}

	// Live reports and the final tally must not double count.
	if got := testutil.ToFloat64(counter) - before; got != size {
		t.Errorf("Bytes metric grew by %v, want %d", got, size)
	}
}

func TestNewRunnerKeepsProgressCallbackWithDefaultTimeouts(t *testing.T) {
	called := false
	r := NewRunner(Config{Stream: streaming.TimeoutWriterConfig{
		OnProgress: func(int64, time.Duration) { called = true },
	}})

	if r.cfg.Stream.WriteTimeout != DefaultConfig().Stream.WriteTimeout {
		t.Errorf("WriteTimeout = %v, want default", r.cfg.Stream.WriteTimeout)
	}
	if r.cfg.Stream.OnProgress == nil {
		t.Fatal("OnProgress was dropped")
	}
	r.cfg.Stream.OnProgress(1, 0)
	if !called {
		t.Error("OnProgress not the configured callback")
	}
}

// Headers go out on the timer even while the source produces nothing.
func TestServe_HeaderFlushDelay(t *testing.T) {
	r := NewRunner(Config{HeaderFlushDelay: 50 * time.Millisecond, KillGrace: 3 * time.Second})

	done := make(chan Result, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		done <- r.Serve(w, req, Plan{
			Strategy: Direct,
			Sources:  []Command{fake(RoleExtractor, "sleep")},
			Filename: "slow.mp4",
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("Headers took %v", time.Since(start))
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	select {
	case res := <-done:
		if res.State != Aborted {
			t.Errorf("State = %v, want aborted", res.State)
		}
		assertReaped(t, res)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

func TestCleanupIdempotent(t *testing.T) {
	r, _ := testRunner(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	p := r.newPipeline(req.Context(), rec, Plan{
		Strategy: Direct,
		Sources:  []Command{fake(RoleExtractor, "emit", "1000")},
	})
	res := p.run()
	if res.State != Completed {
		t.Fatalf("State = %v (%v)", res.State, res.Err)
	}

	var wg sync.WaitGroup
	for n := 0; n < 16; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.cleanup()
			p.abort("late")
		}()
	}
	wg.Wait()

	if n := p.cleanups.Load(); n != 1 {
		t.Errorf("cleanup ran %d times, want 1", n)
	}
	if p.state != Completed {
		t.Errorf("Late abort changed state to %v", p.state)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Init:      "init",
		Streaming: "streaming",
		Completed: "completed",
		Failed:    "failed",
		Aborted:   "aborted",
		State(42): "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
	if Streaming.Terminal() || !Aborted.Terminal() {
		t.Error("Terminal() is wrong")
	}
}
