package handlers

import (
	"net/http"
	"runtime"
	"time"

	"clipfetch/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// ToolStatus reports one external binary.
type ToolStatus struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	OK      bool   `json:"ok"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string       `json:"status"`
	Ready   bool         `json:"ready"`
	Version string       `json:"version"`
	Uptime  string       `json:"uptime"`
	Tools   []ToolStatus `json:"tools"`

	// Memory admission control
	Overloaded  bool    `json:"overloaded"`
	HeapAlloc   int64   `json:"heapAlloc,omitempty"`
	MemoryLimit int64   `json:"memoryLimit,omitempty"`
	MemoryUsage float64 `json:"memoryUsage,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

func (h *Handlers) ready() bool {
	for _, b := range h.binaries {
		if !b.OK() {
			return false
		}
	}
	return len(h.binaries) > 0
}

// HealthCheck returns the health status of the service. A missing tool
// makes it degraded rather than down: metadata or downloads needing the
// other tool may still work.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Ready:        h.ready(),
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Tools:        make([]ToolStatus, 0, len(h.binaries)),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		Overloaded:   h.monitor.Overloaded(),
	}
	response.HeapAlloc, response.MemoryLimit, response.MemoryUsage = h.monitor.GetStats()

	for _, b := range h.binaries {
		ts := ToolStatus{Name: b.Name, Path: b.Resolved, OK: b.OK(), Version: b.Version}
		if ts.Path == "" {
			ts.Path = b.Path
		}
		if b.Err != nil {
			ts.Error = b.Err.Error()
		}
		response.Tools = append(response.Tools, ts)
	}

	if response.Ready && !response.Overloaded {
		response.Status = statusHealthy
	} else {
		response.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when both external tools resolved.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready() {
		writeJSONStatus(w, http.StatusOK, "ready")
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
}
