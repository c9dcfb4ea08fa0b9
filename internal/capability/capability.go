// Package capability detects optional transcoder features once per server
// lifetime.
package capability

import (
	"bytes"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"clipfetch/internal/logging"
	"clipfetch/internal/metrics"
	"clipfetch/internal/process"
)

// probeTimeout bounds one introspection run.
const probeTimeout = 15 * time.Second

// maxProbeOutput bounds how much of the listing is scanned.
const maxProbeOutput = 1 << 20

var log = logging.Scoped("capability")

// Prober runs a command once, looks for a marker in its stdout and caches the
// answer for the life of the process. Concurrent first callers share the one
// probe run.
type Prober struct {
	name   string
	path   string
	args   []string
	marker []byte

	group  singleflight.Group
	result atomic.Pointer[bool]
}

// NewProber returns a prober named name (used in logs and metrics) that runs
// path with args and reports whether stdout contains marker.
func NewProber(name, path string, args []string, marker string) *Prober {
	return &Prober{
		name:   name,
		path:   path,
		args:   args,
		marker: []byte(marker),
	}
}

// Available reports whether the capability is present. The first call spawns
// the probe; every later call returns the cached value without spawning.
func (p *Prober) Available() bool {
	if v := p.result.Load(); v != nil {
		return *v
	}

	v, _, _ := p.group.Do(p.name, func() (any, error) {
		// A caller that arrived after an earlier flight finished must not
		// start a second one.
		if cached := p.result.Load(); cached != nil {
			return *cached, nil
		}
		ok := p.probe()
		p.result.Store(&ok)
		return ok, nil
	})
	return v.(bool)
}

// Checked reports whether a probe result is cached.
func (p *Prober) Checked() bool {
	return p.result.Load() != nil
}

// Name returns the capability name.
func (p *Prober) Name() string {
	return p.name
}

func (p *Prober) probe() bool {
	metrics.CapabilityProbes.WithLabelValues(p.name).Inc()

	available := p.run()
	gauge := 0.0
	if available {
		gauge = 1
	}
	metrics.CapabilityAvailable.WithLabelValues(p.name).Set(gauge)

	log.Info("%s available: %v", p.name, available)
	return available
}

func (p *Prober) run() bool {
	h, err := process.Spawn("probe", p.path, p.args, process.Spec{
		Stdout: process.Pipe,
		Stderr: process.Capture,
	})
	if err != nil {
		log.Warn("probe for %s could not start: %v", p.name, err)
		return false
	}
	defer h.Close()

	timer := time.AfterFunc(probeTimeout, h.Kill)
	defer timer.Stop()

	out, err := io.ReadAll(io.LimitReader(h.Stdout(), maxProbeOutput))
	if err != nil {
		log.Warn("probe for %s: reading output: %v", p.name, err)
	}
	// Drain whatever is left so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, h.Stdout())

	if err := h.Wait(); err != nil {
		log.Warn("probe for %s exited abnormally (%s): %s", p.name, h.Describe(), h.StderrTail())
	}

	return bytes.Contains(out, p.marker)
}
