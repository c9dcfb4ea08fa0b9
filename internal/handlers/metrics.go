package handlers

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clipfetch/internal/logging"
)

// MetricsHandler returns the Prometheus metrics handler
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:          promLogger{},
		EnableOpenMetrics: true,
	})
}

// promLogger adapts promhttp's error log to the application logger.
type promLogger struct{}

func (promLogger) Println(v ...interface{}) {
	logging.Error("metrics: %s", fmt.Sprint(v...))
}
