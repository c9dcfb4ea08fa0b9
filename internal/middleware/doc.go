// Package middleware provides HTTP middleware for the download server.
//
// It includes:
//   - Request logging in W3C Extended Log Format, with an x-aborted field
//     for downloads cut off after streaming began
//   - Prometheus request metrics with bounded path labels
//   - Per-client rate limiting on the API routes
//   - gzip compression of JSON responses; media streams are never buffered
package middleware
