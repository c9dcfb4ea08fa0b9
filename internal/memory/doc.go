// Package memory keeps the server's Go heap inside its container limit.
//
// [ConfigureFromEnv] derives GOMEMLIMIT from the container limit. Most of a
// busy server's memory belongs to its yt-dlp and ffmpeg children, which
// GOMEMLIMIT does not cover, so the default ratio leaves them 40%.
//
// # Environment Variables
//
//   - GOMEMLIMIT: Standard Go environment variable. If set, takes precedence
//     over all other configuration.
//   - MEMORY_LIMIT: Container memory limit in bytes, typically from the
//     Kubernetes Downward API:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//
//   - MEMORY_RATIO: Share of MEMORY_LIMIT for the Go heap, in (0, 1].
//     Default 0.6.
//
// # Admission Control
//
// A [Monitor] samples heap usage. Once usage crosses the critical mark the
// download handlers refuse new pipelines with 503 until it falls back below
// the high water mark. Streams already in flight are left alone.
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	go monitor.Run(ctx)
//	if monitor.Overloaded() { ... }
package memory
