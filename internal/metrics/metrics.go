package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipfetch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipfetch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipfetch_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipfetch_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// Pipeline metrics
var (
	PipelinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipfetch_pipelines_total",
			Help: "Total number of pipelines by strategy and terminal state",
		},
		[]string{"strategy", "state"},
	)

	PipelinesInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipfetch_pipelines_in_progress",
			Help: "Number of pipelines currently streaming",
		},
		[]string{"strategy"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipfetch_pipeline_duration_seconds",
			Help:    "Pipeline duration from spawn to teardown in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"strategy"},
	)

	PipelineBytesStreamed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipfetch_pipeline_bytes_streamed_total",
			Help: "Total number of media bytes written to clients",
		},
		[]string{"strategy"},
	)

	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipfetch_pipeline_failures_total",
			Help: "Total number of failed pipelines by error category",
		},
		[]string{"category"},
	)
)

// Process metrics
var (
	ProcessSpawnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipfetch_process_spawns_total",
			Help: "Total number of external process spawns by role and outcome",
		},
		[]string{"role", "status"},
	)

	ProcessesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipfetch_processes_running",
			Help: "Number of external processes not yet reaped",
		},
	)
)

// Temp file metrics
var (
	TempFilesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipfetch_temp_files_active",
			Help: "Number of relay temp files currently on disk",
		},
	)

	TempFileErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipfetch_temp_file_errors_total",
			Help: "Total number of temp file create/remove failures",
		},
		[]string{"operation"},
	)

	TempFilesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipfetch_temp_files_swept_total",
			Help: "Total number of stale temp files removed by the sweeper",
		},
	)
)

// Capability metrics
var (
	CapabilityProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipfetch_capability_probes_total",
			Help: "Total number of transcoder capability probe spawns",
		},
		[]string{"capability"},
	)

	CapabilityAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipfetch_capability_available",
			Help: "Whether a probed transcoder capability is available (1 = yes, 0 = no)",
		},
		[]string{"capability"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipfetch_memory_usage_ratio",
			Help: "Go heap allocation as a fraction of the memory limit",
		},
	)

	MemoryOverloaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipfetch_memory_overloaded",
			Help: "Whether new downloads are being refused for memory pressure (1 = yes, 0 = no)",
		},
	)

	MemoryRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipfetch_memory_rejected_total",
			Help: "Total number of downloads refused while memory was critical",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipfetch_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
