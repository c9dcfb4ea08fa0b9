package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"clipfetch/internal/failure"
	"clipfetch/internal/filename"
	"clipfetch/internal/logging"
	"clipfetch/internal/metrics"
	"clipfetch/internal/process"
	"clipfetch/internal/streaming"
	"clipfetch/internal/tempfile"
)

// ErrInterrupted is the result error of a pipeline the client walked away from.
var ErrInterrupted = errors.New("pipeline interrupted")

// State is a pipeline lifecycle state.
type State int

const (
	Init State = iota
	Streaming
	Completed
	Failed
	Aborted
)

var stateNames = [...]string{"init", "streaming", "completed", "failed", "aborted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether s is one of the three end states.
func (s State) Terminal() bool {
	return s >= Completed
}

// Config tunes pipeline timing.
type Config struct {
	// HeaderFlushDelay commits headers if no media byte arrived by then.
	// A failure reported after that point, such as a slow "login required",
	// can only drop the connection.
	HeaderFlushDelay time.Duration
	// ExitGrace bounds how long processes may linger after output ended.
	ExitGrace time.Duration
	// KillGrace bounds how long cleanup waits for killed processes to be reaped.
	KillGrace time.Duration
	// ClassifyGrace is how long a failed transcoder waits for its sources
	// to report, so the source's diagnostics can explain the failure.
	ClassifyGrace time.Duration
	Stream        streaming.TimeoutWriterConfig
	Temp          *tempfile.Manager
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	stream := streaming.DefaultTimeoutWriterConfig()
	stream.ChunkSize = 256 * 1024

	return Config{
		HeaderFlushDelay: 8 * time.Second,
		ExitGrace:        10 * time.Second,
		KillGrace:        5 * time.Second,
		ClassifyGrace:    250 * time.Millisecond,
		Stream:           stream,
		Temp:             tempfile.New("", 2*time.Hour),
	}
}

// Runner executes plans. It holds no per-request state.
type Runner struct {
	cfg Config
}

// NewRunner returns a Runner; zero fields of cfg take their defaults.
func NewRunner(cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.HeaderFlushDelay <= 0 {
		cfg.HeaderFlushDelay = def.HeaderFlushDelay
	}
	if cfg.ExitGrace <= 0 {
		cfg.ExitGrace = def.ExitGrace
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = def.KillGrace
	}
	if cfg.ClassifyGrace <= 0 {
		cfg.ClassifyGrace = def.ClassifyGrace
	}
	if cfg.Stream.WriteTimeout <= 0 && cfg.Stream.IdleTimeout <= 0 && cfg.Stream.ChunkSize <= 0 {
		onProgress := cfg.Stream.OnProgress
		cfg.Stream = def.Stream
		cfg.Stream.OnProgress = onProgress
	}
	if cfg.Temp == nil {
		cfg.Temp = def.Temp
	}
	return &Runner{cfg: cfg}
}

// Result describes how a pipeline ended.
type Result struct {
	ID          string
	Strategy    Strategy
	State       State
	Err         error
	HeadersSent bool
	Bytes       int64
	Duration    time.Duration
	Pids        []int
	TempPath    string
}

// NeedsAbort reports a failure after headers went out. The only honest
// signal left is dropping the connection.
func (r Result) NeedsAbort() bool {
	return r.State == Failed && r.HeadersSent
}

// Serve runs plan and streams its output into w. It returns once every
// process has been reaped, every pipe closed and any temp file removed. If
// it fails before headers were sent, a JSON error has been written.
func (r *Runner) Serve(w http.ResponseWriter, req *http.Request, plan Plan) Result {
	return r.newPipeline(req.Context(), w, plan).run()
}

type eventKind int

const (
	evExit eventKind = iota
	evOutput
)

type event struct {
	kind eventKind
	proc *process.Handle
}

type pipeline struct {
	id   string
	plan Plan
	cfg  Config
	ctx  context.Context
	log  *logging.ScopedLogger
	resp *Response

	// every sender delivers at most once, so a buffer this size never blocks
	events chan event

	mu          sync.Mutex
	state       State
	err         error
	procs       []*process.Handle
	sources     []*process.Handle
	fatal       map[*process.Handle]bool
	couplings   []*streaming.Coupling
	closers     []func()
	temp        *tempfile.File
	sentinel    *streaming.Sentinel
	commitTimer *time.Timer
	output      *streaming.Coupling

	cleanupOnce sync.Once
	cleanups    atomic.Int32

	// bytes already added to the streamed-bytes counter
	reported atomic.Int64
}

func (r *Runner) newPipeline(ctx context.Context, w http.ResponseWriter, plan Plan) *pipeline {
	id := uuid.NewString()[:8]
	p := &pipeline{
		id:     id,
		plan:   plan,
		cfg:    r.cfg,
		ctx:    ctx,
		log:    logging.Scoped("pipeline " + id),
		events: make(chan event, len(plan.commands())+2),
		fatal:  make(map[*process.Handle]bool),
	}

	stream := r.cfg.Stream
	next := stream.OnProgress
	stream.OnProgress = func(written int64, elapsed time.Duration) {
		p.progress(written, elapsed)
		if next != nil {
			next(written, elapsed)
		}
	}
	p.resp = newResponse(ctx, w, stream)
	return p
}

// progress keeps the streamed-bytes counter current during long downloads.
func (p *pipeline) progress(written int64, elapsed time.Duration) {
	p.reportBytes(written)
	p.log.Debug("streamed %d bytes in %v", written, elapsed.Round(time.Millisecond))
}

func (p *pipeline) reportBytes(written int64) {
	if delta := written - p.reported.Swap(written); delta > 0 {
		metrics.PipelineBytesStreamed.WithLabelValues(string(p.plan.Strategy)).Add(float64(delta))
	}
}

func (p *pipeline) run() Result {
	start := time.Now()
	strategy := string(p.plan.Strategy)

	metrics.PipelinesInProgress.WithLabelValues(strategy).Inc()
	defer metrics.PipelinesInProgress.WithLabelValues(strategy).Dec()

	p.prepareHeaders()

	if err := p.plan.Validate(); err != nil {
		p.fail(failure.New(failure.Generic, "", err))
	} else if err := p.start(); err != nil {
		category := failure.Generic
		if errors.Is(err, process.ErrSpawn) {
			category = failure.Spawn
		}
		p.fail(failure.New(category, "", err))
	} else {
		p.setState(Streaming)
		p.arm()

		if p.plan.Strategy == Relay {
			p.relay()
		} else {
			p.stream()
		}
	}

	p.finish()
	return p.result(start)
}

// prepareHeaders fills in the response headers without sending them.
func (p *pipeline) prepareHeaders() {
	h := p.resp.Header()
	if p.plan.ContentType != "" {
		h.Set("Content-Type", p.plan.ContentType)
	}
	if p.plan.Filename != "" {
		h.Set("Content-Disposition", filename.ContentDisposition(p.plan.Filename))
	}
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Accel-Buffering", "no")
}

func (p *pipeline) start() error {
	p.log.Debug("starting %s pipeline", p.plan.Strategy)

	switch p.plan.Strategy {
	case Direct:
		return p.startDirect()
	case Transcode:
		return p.startTranscode()
	case Merge:
		return p.startMerge()
	case Relay:
		return p.startRelay()
	}
	return fmt.Errorf("%w: %s", ErrInvalidPlan, p.plan.Strategy)
}

// arm installs the disconnect sentinel and, for live streams, the header
// commit timer.
func (p *pipeline) arm() {
	s := streaming.Watch(p.ctx, p.abort)

	p.mu.Lock()
	p.sentinel = s
	if p.plan.Strategy != Relay {
		p.commitTimer = time.AfterFunc(p.cfg.HeaderFlushDelay, func() {
			if p.resp.Commit() {
				p.log.Debug("headers committed before first media byte")
			}
		})
	}
	p.mu.Unlock()
}

func (p *pipeline) spawn(c Command, role string, args []string, spec process.Spec, fatal, source bool) (*process.Handle, error) {
	h, err := process.Spawn(role, c.Path, args, spec)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.procs = append(p.procs, h)
	if fatal {
		p.fatal[h] = true
	}
	if source {
		p.sources = append(p.sources, h)
	}
	p.mu.Unlock()

	go func() {
		<-h.Done()
		p.events <- event{kind: evExit, proc: h}
	}()
	return h, nil
}

// connect couples one process's output into another's input. Errors here are
// reported through the processes' exit status, so they are only logged.
func (p *pipeline) connect(src *process.Handle, dst io.WriteCloser, dstName string) {
	c := streaming.Couple(src.Stdout(), dst, func(err error) {
		if streaming.IsRoutine(err) {
			p.log.Debug("%s -> %s ended: %v", src.Name(), dstName, err)
			return
		}
		p.log.Warn("%s -> %s failed: %v", src.Name(), dstName, err)
	}, streaming.CloseOnEOF(), streaming.CloseOnError())

	p.mu.Lock()
	p.couplings = append(p.couplings, c)
	p.mu.Unlock()
}

// sendOutput couples the final stage's output to the response.
func (p *pipeline) sendOutput(src io.Reader) {
	c := streaming.Couple(src, p.resp, nil)

	p.mu.Lock()
	p.output = c
	p.couplings = append(p.couplings, c)
	p.mu.Unlock()

	go func() {
		<-c.Done()
		p.events <- event{kind: evOutput}
	}()
}

func (p *pipeline) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Terminal() {
		p.state = s
	}
}

// end records the terminal state. The first caller wins; it reports whether
// this call was the one that ended the pipeline.
func (p *pipeline) end(s State, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Terminal() {
		return false
	}
	p.state = s
	p.err = err
	return true
}

func (p *pipeline) terminal() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Terminal()
}

func (p *pipeline) fail(fe *failure.Error) {
	if !p.end(Failed, fe) {
		return
	}
	// Written now, before cleanup, while the response may still be pending.
	if p.resp.Fail(fe) {
		p.log.Debug("responded %d %s", fe.Status(), fe.Category)
	}
}

// abort is the sentinel's cleanup callback.
func (p *pipeline) abort(reason string) {
	if p.end(Aborted, ErrInterrupted) {
		p.log.Debug("aborted: %s", reason)
	}
	p.cleanup()
}

// cleanup tears everything down. It runs its body once no matter how many
// trigger sites call it or from which goroutine; later callers block until
// the first has finished.
func (p *pipeline) cleanup() {
	p.cleanupOnce.Do(func() {
		p.cleanups.Add(1)

		p.mu.Lock()
		procs := slices.Clone(p.procs)
		temp := p.temp
		sentinel := p.sentinel
		timer := p.commitTimer
		p.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if sentinel != nil {
			sentinel.Stop()
		}

		for _, h := range procs {
			h.Kill()
		}
		for _, h := range procs {
			h.Close()
		}
		p.resp.Seal()

		if temp != nil {
			// Failures are logged by Remove and never change the outcome.
			_ = temp.Remove()
		}

		grace := time.NewTimer(p.cfg.KillGrace)
		defer grace.Stop()
		for _, h := range procs {
			select {
			case <-h.Done():
			case <-grace.C:
				p.log.Warn("%s pid=%d not reaped after kill", h.Name(), h.Pid())
				return
			}
		}
	})
}

func (p *pipeline) finish() {
	p.cleanup()

	p.mu.Lock()
	couplings := slices.Clone(p.couplings)
	closers := p.closers
	p.mu.Unlock()

	for _, c := range couplings {
		<-c.Done()
	}
	for _, fn := range closers {
		fn()
	}
}

func (p *pipeline) result(start time.Time) Result {
	p.mu.Lock()
	res := Result{
		ID:       p.id,
		Strategy: p.plan.Strategy,
		State:    p.state,
		Err:      p.err,
		Duration: time.Since(start),
	}
	for _, h := range p.procs {
		res.Pids = append(res.Pids, h.Pid())
	}
	if p.temp != nil {
		res.TempPath = p.temp.Path()
	}
	p.mu.Unlock()

	res.HeadersSent = p.resp.Committed()
	res.Bytes = p.resp.Bytes()

	strategy := string(res.Strategy)
	metrics.PipelinesTotal.WithLabelValues(strategy, res.State.String()).Inc()
	metrics.PipelineDuration.WithLabelValues(strategy).Observe(res.Duration.Seconds())
	p.reportBytes(res.Bytes)

	switch res.State {
	case Completed:
		p.log.Info("%s completed: %d bytes in %v", strategy, res.Bytes, res.Duration.Round(time.Millisecond))
	case Failed:
		fe := failure.From(res.Err)
		metrics.PipelineFailures.WithLabelValues(string(fe.Category)).Inc()
		p.log.Warn("%s failed after %d bytes: %v", strategy, res.Bytes, res.Err)
	case Aborted:
		p.log.Debug("%s aborted after %d bytes", strategy, res.Bytes)
	}

	return res
}
