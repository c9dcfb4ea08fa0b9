package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clipfetch/internal/extractor"
	"clipfetch/internal/handlers"
	"clipfetch/internal/logging"
	"clipfetch/internal/memory"
	"clipfetch/internal/metrics"
	"clipfetch/internal/middleware"
	"clipfetch/internal/pipeline"
	"clipfetch/internal/platform"
	"clipfetch/internal/startup"
	"clipfetch/internal/tempfile"
	"clipfetch/internal/transcoder"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	// Set GOMEMLIMIT before anything sizeable is allocated
	memResult := memory.ConfigureFromEnv()
	startup.LogMemoryConfig(startup.MemoryConfig{
		Configured:     memResult.Configured,
		Source:         memResult.Source,
		ContainerLimit: memResult.ContainerLimit,
		GoMemLimit:     memResult.GoMemLimit,
		Ratio:          memResult.Ratio,
	})

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	build := startup.GetBuildInfo()
	metrics.InitializeMetrics()
	metrics.SetAppInfo(build.Version, build.Commit, build.GoVersion)

	binaries := []startup.BinaryStatus{
		startup.CheckBinary("yt-dlp", config.ExtractorPath, "--version"),
		startup.CheckBinary("ffmpeg", config.TranscoderPath, "-version"),
	}
	startup.LogBinaryChecks(binaries...)

	ext := extractor.New(config.ExtractorPath, config.CookiesDir)
	cookies := make(map[string]string, len(platform.All))
	for _, p := range platform.All {
		cookies[p.Label] = ext.CookieFile(string(p.Name))
	}
	startup.LogCookieFiles(cookies)

	trans := transcoder.New(config.TranscoderPath)
	temp := tempfile.New(config.TempDir, config.TempMaxAge)

	stream := pipeline.DefaultConfig().Stream
	stream.WriteTimeout = config.StreamWriteTimeout
	stream.IdleTimeout = config.StreamIdleTimeout
	runner := pipeline.NewRunner(pipeline.Config{
		HeaderFlushDelay: config.HeaderFlushDelay,
		Stream:           stream,
		Temp:             temp,
	})

	// Cancelled on shutdown; every request context derives from it
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Probe encoders up front so the first audio request doesn't pay for it
	go func() {
		prober := trans.Prober()
		startup.LogCapability(prober.Name(), prober.Available())
	}()

	go temp.Run(ctx, config.TempSweepInterval)

	monitor := memory.NewMonitor(memory.DefaultConfig())
	go monitor.Run(ctx)

	limiterConfig := middleware.DefaultRateLimitConfig()
	limiterConfig.RequestsPerSecond = config.RateLimitRPS
	limiterConfig.Burst = config.RateLimitBurst
	limiter := middleware.NewRateLimiter(limiterConfig)
	go limiter.Run(ctx)

	h := handlers.New(platform.NewPlanner(ext, trans), runner, temp, monitor, config, binaries...)

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           buildHandler(router, limiter, config),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Downloads enforce their own per-write deadlines
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = startMetricsServer(config.MetricsPort, h)
	}

	go func() {
		startup.LogServerStarted(startup.ServerConfig{
			Port:            config.Port,
			MetricsPort:     config.MetricsPort,
			MetricsEnabled:  config.MetricsEnabled,
			StartupDuration: time.Since(startTime),
		})
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			startup.LogFatal("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	cancel()
	shutdown(srv, metricsSrv, temp)
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	r.HandleFunc("/api/temp/sweep", h.SweepTempFiles).Methods("POST")

	api := r.PathPrefix("/api/{platform}").Subrouter()
	api.HandleFunc("/info", h.Info).Methods("GET", "POST")
	api.HandleFunc("/download", h.Download).Methods("GET", "POST")
	api.HandleFunc("/merge", h.Merge).Methods("GET")
	api.HandleFunc("/download-audio", h.DownloadAudio).Methods("GET", "POST")

	return r
}

// buildHandler wraps the router, outermost first: logging, metrics, rate
// limiting, compression.
func buildHandler(router http.Handler, limiter *middleware.RateLimiter, config *startup.Config) http.Handler {
	compressed := middleware.Compression(middleware.DefaultCompressionConfig())(router)
	limited := limiter.Middleware(compressed)
	measured := middleware.Metrics(middleware.DefaultMetricsConfig())(limited)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	return middleware.Logger(loggingConfig)(measured)
}

func startMetricsServer(port string, h *handlers.Handlers) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", h.MetricsHandler())
	metricsMux.HandleFunc("/health", h.LivenessCheck)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

func shutdown(srv, metricsSrv *http.Server, temp *tempfile.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// In-flight downloads saw their contexts cancel and are tearing down
	// their processes; Shutdown waits for the handlers to return.
	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Sweeping temp files")
	if _, _, err := temp.Sweep(); err != nil {
		logging.Warn("Temp sweep error: %v", err)
	}
	startup.LogShutdownStepComplete("Temp files swept")

	startup.LogShutdownComplete()
}
