// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig].
// The following environment variables are supported:
//
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - YTDLP_PATH: Extractor executable, bare names resolved via PATH (default: yt-dlp)
//   - FFMPEG_PATH: Transcoder executable, bare names resolved via PATH (default: ffmpeg)
//   - COOKIES_DIR: Directory of <platform>_cookies.txt files (default: ./cookies)
//   - TEMP_DIR: Directory for relay temp files (default: system temp dir)
//   - TEMP_SWEEP_INTERVAL: How often stale temp files are removed (default: 15m)
//   - TEMP_MAX_AGE: Age after which a temp file counts as stale (default: 2h)
//   - HEADER_FLUSH_DELAY: Commit download headers if no byte arrived by then (default: 8s).
//     Failures after this point drop the connection instead of returning JSON
//   - STREAM_WRITE_TIMEOUT: Per-write deadline for media responses (default: 30s)
//   - STREAM_IDLE_TIMEOUT: Abort a stream with no progress for this long (default: 2m)
//   - INFO_TIMEOUT: Bound on a metadata lookup (default: 1m)
//   - RATE_LIMIT_RPS: Requests per second per client, 0 disables (default: 0)
//   - RATE_LIMIT_BURST: Burst size for the per-client limiter (default: 10)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// # External Tools
//
// [CheckBinary] resolves an executable and records its version line;
// [LogBinaryChecks] reports the results. A missing tool is a warning, not a
// startup failure: /readyz reports it and affected requests fail with a
// spawn error.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Example Usage
//
//	config, err := startup.LoadConfig()
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//
//	startup.LogBinaryChecks(
//	    startup.CheckBinary("yt-dlp", config.ExtractorPath, "--version"),
//	    startup.CheckBinary("ffmpeg", config.TranscoderPath, "-version"),
//	)
//
//	startup.LogServerStarted(startup.ServerConfig{
//	    Port:            config.Port,
//	    MetricsPort:     config.MetricsPort,
//	    MetricsEnabled:  config.MetricsEnabled,
//	    StartupDuration: time.Since(startTime),
//	})
package startup
