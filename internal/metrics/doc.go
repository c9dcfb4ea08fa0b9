// Package metrics provides Prometheus instrumentation for clipfetch.
//
// All metrics are prefixed with "clipfetch_" and registered with the default
// registry through promauto.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//   - HTTPRateLimited: Counter of requests rejected by the limiter
//
// ## Pipeline Metrics
//
// One pipeline serves one download request:
//   - PipelinesTotal: Counter by strategy (direct/transcode/merge/relay) and
//     terminal state (completed/failed/aborted)
//   - PipelinesInProgress: Gauge of pipelines still streaming
//   - PipelineDuration: Histogram from spawn to teardown
//   - PipelineBytesStreamed: Counter of media bytes written to clients
//   - PipelineFailures: Counter of failures by error category
//
// ## Process Metrics
//
//   - ProcessSpawnsTotal: Counter of spawns by role and outcome
//   - ProcessesRunning: Gauge of spawned processes not yet reaped. A value
//     that keeps climbing while traffic is flat means a teardown path leaks.
//
// ## Temp File Metrics
//
//   - TempFilesActive, TempFileErrors, TempFilesSwept
//
// ## Capability Metrics
//
//   - CapabilityProbes: Counter of probe spawns (expected to stay at 1 per
//     capability for the life of the process)
//   - CapabilityAvailable: Gauge of the cached probe result
//
// # Prometheus Queries
//
// Abort ratio (clients leaving mid-download):
//
//	sum(rate(clipfetch_pipelines_total{state="aborted"}[5m])) /
//	sum(rate(clipfetch_pipelines_total[5m]))
//
// Throughput per strategy:
//
//	sum(rate(clipfetch_pipeline_bytes_streamed_total[5m])) by (strategy)
package metrics
