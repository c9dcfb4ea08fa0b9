package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"clipfetch/internal/metrics"
	"clipfetch/internal/platform"
)

// metricsResponseWriter wraps http.ResponseWriter to capture status code
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{w, http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are paths that should not be recorded
	SkipPaths []string
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"},
	}
}

// Metrics returns a middleware that records Prometheus metrics. Download
// durations include the whole stream, so they are recorded even when the
// handler aborts the connection.
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newMetricsResponseWriter(w)
			start := time.Now()

			defer func() {
				rec := recover()
				path := normalizePath(r.URL.Path)
				status := strconv.Itoa(wrapped.statusCode)
				if rec == http.ErrAbortHandler {
					status = "aborted"
				}

				metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
				metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())

				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

var apiOperations = map[string]bool{
	"info":           true,
	"download":       true,
	"merge":          true,
	"download-audio": true,
}

var knownPaths = map[string]bool{
	"/version":        true,
	"/api/temp/sweep": true,
}

// normalizePath bounds label cardinality: platform routes keep their
// platform and operation, anything else collapses to "other".
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 3 && parts[0] == "api" && apiOperations[parts[2]] {
		if p, ok := platform.Lookup(parts[1]); ok {
			return "/api/" + string(p.Name) + "/" + parts[2]
		}
		return "/api/{unknown}/" + parts[2]
	}
	return "other"
}
