// Package main provides the entry point for clipfetch.
//
// clipfetch is a small HTTP service that fetches video and audio from social
// media platforms (YouTube, Facebook, Instagram, TikTok and Twitter/X) and
// streams it straight to the client. Media is pulled by yt-dlp and, where
// needed, merged or re-encoded by ffmpeg; bytes are piped through without
// being stored, except for the Instagram relay which needs a seekable file.
//
// # Application Lifecycle
//
//  1. Memory Configuration: sets GOMEMLIMIT from MEMORY_LIMIT when present
//  2. Configuration Loading: reads environment variables, prepares TEMP_DIR
//  3. Tool Checks: resolves yt-dlp and ffmpeg and records their versions
//  4. Component Initialization:
//     - Extractor and transcoder wrappers
//     - Pipeline runner with header flush and stream timeouts
//     - Temp file manager with periodic sweeping
//     - Memory monitor used to refuse downloads under pressure
//     - Optional per-client rate limiter
//  5. HTTP Server Setup: routes, middleware, metrics server
//  6. Graceful Shutdown: handles SIGINT/SIGTERM
//
// # Routes
//
//	GET       /health, /healthz   tool and memory status
//	GET, HEAD /livez              liveness probe
//	GET       /readyz             503 until yt-dlp and ffmpeg are present
//	GET       /version            build information
//	GET, POST /api/{platform}/info
//	GET, POST /api/{platform}/download
//	GET       /api/{platform}/merge
//	GET, POST /api/{platform}/download-audio
//	POST      /api/temp/sweep     remove stale relay files now
//
// The metrics server (default port 9090) serves /metrics and /health.
//
// # Graceful Shutdown
//
//  1. Cancel the base context, which tears down every running pipeline
//  2. Shut down the main HTTP server (30s timeout)
//  3. Shut down the metrics server
//  4. Sweep stale temp files
//
// See [clipfetch/internal/startup] for the full list of environment
// variables.
//
// # Related Packages
//
//   - [clipfetch/internal/handlers]: HTTP request handlers
//   - [clipfetch/internal/pipeline]: download strategies and their lifecycle
//   - [clipfetch/internal/platform]: URL validation and per-platform plans
//   - [clipfetch/internal/middleware]: logging, metrics, rate limiting, compression
//   - [clipfetch/internal/startup]: configuration and initialization logging
package main
