package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"clipfetch/internal/failure"
	"clipfetch/internal/process"
	"clipfetch/internal/streaming"
)

var errNoOutput = errors.New("no media was produced")

// startDirect: extractor stdout -> response.
func (p *pipeline) startDirect() error {
	src := p.plan.Sources[0]
	h, err := p.spawn(src, roleOr(src, RoleExtractor), src.Args, process.Spec{
		Stdout: process.Pipe,
		Stderr: process.Capture,
	}, true, true)
	if err != nil {
		return err
	}

	p.sendOutput(h.Stdout())
	return nil
}

// startTranscode: extractor stdout -> transcoder stdin, transcoder stdout ->
// response.
func (p *pipeline) startTranscode() error {
	src := p.plan.Sources[0]
	extractor, err := p.spawn(src, roleOr(src, RoleExtractor), src.Args, process.Spec{
		Stdout: process.Pipe,
		Stderr: process.Capture,
	}, true, true)
	if err != nil {
		return err
	}

	tc := *p.plan.Transcoder
	transcoder, err := p.spawn(tc, roleOr(tc, RoleTranscoder), tc.Args, process.Spec{
		Stdin:  process.Pipe,
		Stdout: process.Pipe,
		Stderr: process.Capture,
	}, true, false)
	if err != nil {
		return err
	}

	p.connect(extractor, transcoder.Stdin(), transcoder.Name())
	p.sendOutput(transcoder.Stdout())
	return nil
}

// startMerge: each source's stdout -> its own numbered combiner input,
// combiner stdout -> response. Only the combiner is fatal; a source ending
// early just closes its input.
func (p *pipeline) startMerge() error {
	inputs := make([]string, len(p.plan.Sources))
	for i, s := range p.plan.Sources {
		inputs[i] = s.Input
	}

	cc := *p.plan.Transcoder
	combiner, err := p.spawn(cc, roleOr(cc, RoleCombiner), cc.Args, process.Spec{
		Stdout:      process.Pipe,
		Stderr:      process.Capture,
		ExtraInputs: inputs,
	}, true, false)
	if err != nil {
		return err
	}

	defaults := []string{RoleVideoSource, RoleAudioSource}
	for i, s := range p.plan.Sources {
		h, err := p.spawn(s, roleOr(s, defaults[i]), s.Args, process.Spec{
			Stdout: process.Pipe,
			Stderr: process.Capture,
		}, false, true)
		if err != nil {
			return err
		}
		p.connect(h, combiner.Input(s.Input), combiner.Name()+"/"+s.Input)
	}

	p.sendOutput(combiner.Stdout())
	return nil
}

// startRelay creates the temp file first so that every later failure path
// has it to remove, then runs the source (and optional transcoder) writing
// into it.
func (p *pipeline) startRelay() error {
	f, err := p.cfg.Temp.Create(p.plan.TempTag, p.plan.TempExt)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.temp = f
	p.mu.Unlock()

	src := p.plan.Sources[0]
	if p.plan.Transcoder == nil {
		_, err := p.spawn(src, roleOr(src, RoleExtractor), withOutput(src.Args, f.Path()), process.Spec{
			Stderr: process.Capture,
		}, true, true)
		return err
	}

	extractor, err := p.spawn(src, roleOr(src, RoleExtractor), src.Args, process.Spec{
		Stdout: process.Pipe,
		Stderr: process.Capture,
	}, true, true)
	if err != nil {
		return err
	}

	tc := *p.plan.Transcoder
	transcoder, err := p.spawn(tc, roleOr(tc, RoleTranscoder), withOutput(tc.Args, f.Path()), process.Spec{
		Stdin:  process.Pipe,
		Stderr: process.Capture,
	}, true, false)
	if err != nil {
		return err
	}

	p.connect(extractor, transcoder.Stdin(), transcoder.Name())
	return nil
}

// stream drives the live strategies until a terminal state is reached.
// COMPLETED needs both the output at EOF and every fatal process exited 0.
func (p *pipeline) stream() {
	var (
		outputEOF bool
		exitGrace <-chan time.Time
	)

	for !p.terminal() {
		select {
		case <-p.sentinel.Fired():
			// abort has recorded the state

		case <-exitGrace:
			p.fail(failure.New(failure.Generic, "", errors.New("process did not exit after output ended")))

		case ev := <-p.events:
			switch ev.kind {
			case evExit:
				p.onExit(ev.proc)
			case evOutput:
				if err := p.output.Err(); err != nil {
					p.onOutputError(err)
					continue
				}
				outputEOF = true
				exitGrace = time.After(p.cfg.ExitGrace)
			}

			if outputEOF && p.fatalSucceeded() {
				if p.output.Bytes() == 0 {
					p.fail(failure.New(failure.Generic, "", errNoOutput))
				} else {
					p.end(Completed, nil)
				}
			}
		}
	}
}

// relay waits for every process to exit 0, then sends the file with a
// Content-Length. Headers are not committed early: the size is unknown
// until the processes finish and a failure can still be reported as JSON.
func (p *pipeline) relay() {
	for !p.terminal() && !p.allExited() {
		select {
		case <-p.sentinel.Fired():
		case ev := <-p.events:
			if ev.kind == evExit {
				p.onExit(ev.proc)
			}
		}
	}
	if p.terminal() {
		return
	}

	f, err := os.Open(p.temp.Path())
	if err != nil {
		p.fail(failure.New(failure.Generic, "", fmt.Errorf("opening relay file: %w", err)))
		return
	}
	p.mu.Lock()
	p.closers = append(p.closers, func() { _ = f.Close() })
	p.mu.Unlock()

	info, err := f.Stat()
	if err != nil {
		p.fail(failure.New(failure.Generic, "", fmt.Errorf("stat relay file: %w", err)))
		return
	}
	if info.Size() == 0 {
		p.fail(failure.New(failure.Generic, "", errNoOutput))
		return
	}

	p.resp.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	p.sendOutput(f)

	for !p.terminal() {
		select {
		case <-p.sentinel.Fired():
		case ev := <-p.events:
			if ev.kind != evOutput {
				continue
			}
			if err := p.output.Err(); err != nil {
				p.onOutputError(err)
				continue
			}
			p.end(Completed, nil)
		}
	}
}

func (p *pipeline) onExit(h *process.Handle) {
	if p.terminal() {
		return
	}
	if h.Succeeded() {
		p.log.Debug("%s exited 0", h.Name())
		return
	}

	p.mu.Lock()
	fatal := p.fatal[h]
	p.mu.Unlock()

	if !fatal {
		p.log.Warn("%s ended with %s; continuing with what it delivered: %s",
			h.Name(), h.Describe(), failure.Details(h.StderrTail()))
		return
	}

	p.fail(p.classify(h))
}

func (p *pipeline) onOutputError(err error) {
	if p.terminal() {
		return
	}
	if streaming.IsDestination(err) {
		if streaming.IsRoutine(err) {
			p.log.Debug("client went away: %v", err)
		} else {
			p.log.Warn("response write failed: %v", err)
		}
		p.sentinel.Trigger(streaming.ReasonWriteFailed)
		return
	}
	p.fail(failure.New(failure.Generic, "", fmt.Errorf("reading output: %w", err)))
}

// classify explains a fatal exit. A downstream stage usually fails because
// its input did, so a failed source's diagnostics take priority.
func (p *pipeline) classify(h *process.Handle) *failure.Error {
	p.mu.Lock()
	sources := p.sources
	p.mu.Unlock()

	for _, s := range sources {
		if s == h {
			return sourceFailure(h)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ClassifyGrace)
	defer cancel()
	for _, s := range sources {
		select {
		case <-s.Done():
		case <-ctx.Done():
		}
		if !s.Running() && !s.Succeeded() && s.Signal() == "" {
			return sourceFailure(s)
		}
	}

	return failure.New(failure.Transcoder, failure.Details(h.StderrTail()),
		fmt.Errorf("%s %s", h.Name(), h.Describe()))
}

func sourceFailure(h *process.Handle) *failure.Error {
	return failure.FromStderr(h.StderrTail(), fmt.Errorf("%s %s", h.Name(), h.Describe()))
}

func (p *pipeline) fatalSucceeded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for h := range p.fatal {
		if !h.Succeeded() {
			return false
		}
	}
	return true
}

func (p *pipeline) allExited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.procs {
		if h.Running() {
			return false
		}
	}
	return true
}
