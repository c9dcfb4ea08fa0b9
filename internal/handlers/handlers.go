package handlers

import (
	"time"

	"clipfetch/internal/extractor"
	"clipfetch/internal/memory"
	"clipfetch/internal/pipeline"
	"clipfetch/internal/platform"
	"clipfetch/internal/startup"
	"clipfetch/internal/tempfile"
)

// Handlers serves the per-platform download API and the operational
// endpoints.
type Handlers struct {
	planner     *platform.Planner
	extractor   *extractor.Extractor
	runner      *pipeline.Runner
	temp        *tempfile.Manager
	monitor     *memory.Monitor
	binaries    []startup.BinaryStatus
	infoTimeout time.Duration
	started     time.Time
}

// New wires the handlers. monitor may be nil. binaries are the startup
// checks of the external tools and readiness requires all of them.
func New(planner *platform.Planner, runner *pipeline.Runner, temp *tempfile.Manager, monitor *memory.Monitor, config *startup.Config, binaries ...startup.BinaryStatus) *Handlers {
	return &Handlers{
		planner:     planner,
		extractor:   planner.Extractor(),
		runner:      runner,
		temp:        temp,
		monitor:     monitor,
		binaries:    binaries,
		infoTimeout: config.InfoTimeout,
		started:     time.Now(),
	}
}
