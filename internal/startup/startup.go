package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"clipfetch/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool

	// External binaries; bare names are resolved through PATH at spawn time.
	ExtractorPath  string
	TranscoderPath string

	// CookiesDir holds optional <platform>_cookies.txt files.
	CookiesDir string

	TempDir           string
	TempSweepInterval time.Duration
	TempMaxAge        time.Duration

	HeaderFlushDelay   time.Duration
	StreamWriteTimeout time.Duration
	StreamIdleTimeout  time.Duration
	InfoTimeout        time.Duration

	// RateLimitRPS of 0 disables the per-client limiter.
	RateLimitRPS   float64
	RateLimitBurst int
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config := &Config{
		Port:               getEnv("PORT", "8080"),
		MetricsPort:        getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks:    getEnvBool("LOG_HEALTH_CHECKS", true),
		ExtractorPath:      getEnv("YTDLP_PATH", "yt-dlp"),
		TranscoderPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		CookiesDir:         getEnv("COOKIES_DIR", "./cookies"),
		TempDir:            getEnv("TEMP_DIR", os.TempDir()),
		TempSweepInterval:  getEnvDuration("TEMP_SWEEP_INTERVAL", 15*time.Minute),
		TempMaxAge:         getEnvDuration("TEMP_MAX_AGE", 2*time.Hour),
		HeaderFlushDelay:   getEnvDuration("HEADER_FLUSH_DELAY", 8*time.Second),
		StreamWriteTimeout: getEnvDuration("STREAM_WRITE_TIMEOUT", 30*time.Second),
		StreamIdleTimeout:  getEnvDuration("STREAM_IDLE_TIMEOUT", 120*time.Second),
		InfoTimeout:        getEnvDuration("INFO_TIMEOUT", 60*time.Second),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
	}

	logging.Info("  PORT:                 %s", config.Port)
	logging.Info("  METRICS_PORT:         %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:      %v", config.MetricsEnabled)
	logging.Info("  YTDLP_PATH:           %s", config.ExtractorPath)
	logging.Info("  FFMPEG_PATH:          %s", config.TranscoderPath)
	logging.Info("  COOKIES_DIR:          %s", config.CookiesDir)
	logging.Info("  TEMP_DIR:             %s", config.TempDir)
	logging.Info("  TEMP_SWEEP_INTERVAL:  %v", config.TempSweepInterval)
	logging.Info("  TEMP_MAX_AGE:         %v", config.TempMaxAge)
	logging.Info("  HEADER_FLUSH_DELAY:   %v", config.HeaderFlushDelay)
	logging.Info("  STREAM_WRITE_TIMEOUT: %v", config.StreamWriteTimeout)
	logging.Info("  STREAM_IDLE_TIMEOUT:  %v", config.StreamIdleTimeout)
	logging.Info("  INFO_TIMEOUT:         %v", config.InfoTimeout)
	logging.Info("  RATE_LIMIT_RPS:       %v", config.RateLimitRPS)
	logging.Info("  RATE_LIMIT_BURST:     %d", config.RateLimitBurst)
	logging.Info("  LOG_HEALTH_CHECKS:    %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:            %s", logging.GetLevel())

	if config.RateLimitBurst < 1 {
		logging.Warn("  Invalid RATE_LIMIT_BURST, using default: 10")
		config.RateLimitBurst = 10
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	tempDir, err := filepath.Abs(config.TempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve temp directory path: %w", err)
	}
	config.TempDir = tempDir
	logging.Info("  Temp directory (absolute): %s", tempDir)

	// Relay downloads cannot work without a writable temp directory.
	if err := ensureDirectory(tempDir, "temp"); err != nil {
		return nil, fmt.Errorf("temp directory error: %w", err)
	}
	if err := testWriteAccess(tempDir); err != nil {
		return nil, fmt.Errorf("temp directory is not writable: %w", err)
	}
	logging.Info("  [OK] Temp directory is writable")

	if info, err := os.Stat(config.CookiesDir); err != nil || !info.IsDir() {
		logging.Info("  Cookies directory not found, all requests will be anonymous")
	} else {
		logging.Info("  [OK] Cookies directory: %s", config.CookiesDir)
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Rate limiting: %s", enabledString(config.RateLimitRPS > 0))
	logging.Info("    Metrics:       %s", enabledString(config.MetricsEnabled))

	return config, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// BinaryStatus is the result of checking one external binary.
type BinaryStatus struct {
	Name     string
	Path     string
	Resolved string
	Version  string
	Err      error
}

// OK reports whether the binary was found and ran.
func (s BinaryStatus) OK() bool {
	return s.Err == nil
}

// CheckBinary resolves path and runs it with versionArgs.
func CheckBinary(name, path string, versionArgs ...string) BinaryStatus {
	status := BinaryStatus{Name: name, Path: path}

	resolved, err := exec.LookPath(path)
	if err != nil {
		status.Err = fmt.Errorf("%s not found: %w", path, err)
		return status
	}
	status.Resolved = resolved

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, resolved, versionArgs...).Output()
	if err != nil {
		status.Err = fmt.Errorf("failed to get %s version: %w", name, err)
		return status
	}

	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		status.Version = strings.TrimSpace(line)
	}
	return status
}

// LogBinaryChecks logs the outcome of CheckBinary calls.
func LogBinaryChecks(statuses ...BinaryStatus) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("EXTERNAL TOOLS")
	logging.Info("------------------------------------------------------------")

	for _, s := range statuses {
		if !s.OK() {
			logging.Warn("  %s check failed: %v", s.Name, s.Err)
			logging.Warn("  Requests needing %s will fail until it is installed", s.Name)
			continue
		}
		logging.Info("  [OK] %s is available", s.Name)
		logging.Debug("    Path:    %s", s.Resolved)
		logging.Debug("    Version: %s", s.Version)
	}
}

// LogCapability logs the result of a capability probe.
func LogCapability(name string, available bool) {
	if available {
		logging.Info("  [OK] %s encoder available", name)
	} else {
		logging.Info("  %s encoder not available, audio falls back to AAC", name)
	}
}

// LogCookieFiles lists which platforms have a cookie file.
func LogCookieFiles(files map[string]string) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if files[name] != "" {
			logging.Info("  [OK] %s cookies: %s", name, files[name])
		} else {
			logging.Debug("  %s: no cookies, anonymous access only", name)
		}
	}
}

// MemoryConfig mirrors memory.ConfigResult for logging
type MemoryConfig struct {
	Configured     bool
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// LogMemoryConfig logs the GOMEMLIMIT outcome
func LogMemoryConfig(mc MemoryConfig) {
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	if !mc.Configured {
		logging.Info("  GOMEMLIMIT: not configured (set MEMORY_LIMIT to enable)")
		logging.Info("")
		return
	}

	switch mc.Source {
	case "GOMEMLIMIT":
		logging.Info("  GOMEMLIMIT:      %s (from environment)", formatBytesStartup(mc.GoMemLimit))
	case "MEMORY_LIMIT":
		logging.Info("  Container limit: %s", formatBytesStartup(mc.ContainerLimit))
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", formatBytesStartup(mc.GoMemLimit), mc.Ratio*100)
		logging.Info("  Reserved:        %s for extractor and transcoder processes",
			formatBytesStartup(mc.ContainerLimit-mc.GoMemLimit))
	}
	logging.Info("")
}

func formatBytesStartup(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Subrouter prefixes carry no methods
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api/{platform}/", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
        ___       ___     __       _
  _____/ (_)___  / __/__ / /______/ /_
 / ___/ / / __ \/ /_/ _ \ __/ ___/ __ \
/ /__/ / / /_/ / __/  __/ /_/ /__/ / / /
\___/_/_/ .___/_/  \___/\__/\___/_/ /_/
       /_/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".clipfetch-write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
