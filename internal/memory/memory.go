package memory

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"clipfetch/internal/logging"
	"clipfetch/internal/metrics"
)

// Config holds memory management configuration
type Config struct {
	// MemoryLimitBytes is the soft memory limit (0 = use GOMEMLIMIT or no limit)
	MemoryLimitBytes int64

	// HighWaterMark is the fraction of the limit below which the monitor
	// stops refusing new downloads (0.0-1.0)
	HighWaterMark float64

	// CriticalWaterMark is the fraction at which new downloads are refused (0.0-1.0)
	CriticalWaterMark float64

	// CheckInterval is how often to check memory usage
	CheckInterval time.Duration
}

// DefaultConfig returns sensible defaults for memory management
func DefaultConfig() Config {
	return Config{
		MemoryLimitBytes:  0, // Use GOMEMLIMIT if set
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.9,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage and tells the download handlers when to refuse
// new pipelines. Streams already running are never interrupted.
type Monitor struct {
	config     Config
	limit      int64
	readMem    func() uint64
	mu         sync.RWMutex
	current    uint64
	overloaded bool
}

// NewMonitor creates a new memory monitor
func NewMonitor(config Config) *Monitor {
	limit := config.MemoryLimitBytes

	// If no explicit limit, try to get GOMEMLIMIT
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < math.MaxInt64 {
			limit = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %s", formatBytes(limit))
		}
	}

	if limit == 0 {
		logging.Info("Memory monitor: no memory limit configured, admission control disabled")
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}

	return &Monitor{
		config:  config,
		limit:   limit,
		readMem: heapAlloc,
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Run samples memory every CheckInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.limit == 0 {
		return
	}

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkMemory()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) checkMemory() {
	alloc := m.readMem()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit <= 0 {
		return
	}

	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.overloaded:
		logging.Warn("Memory critical (%.1f%% of limit), refusing new downloads", usage*100)
		m.overloaded = true
		metrics.MemoryOverloaded.Set(1)
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.overloaded:
		logging.Info("Memory recovered (%.1f%% of limit), accepting downloads", usage*100)
		m.overloaded = false
		metrics.MemoryOverloaded.Set(0)
	}
}

// Overloaded reports whether new downloads should be refused. A nil Monitor
// is never overloaded.
func (m *Monitor) Overloaded() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overloaded
}

// GetStats returns current memory statistics
func (m *Monitor) GetStats() (current, limit int64, usage float64) {
	if m == nil {
		return 0, 0, 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Safe conversion from uint64 to int64, capping at max int64
	currentInt64 := int64(math.MaxInt64)
	if m.current <= math.MaxInt64 {
		currentInt64 = int64(m.current)
	}

	var usageRatio float64
	if m.limit > 0 {
		usageRatio = float64(m.current) / float64(m.limit)
	}

	return currentInt64, m.limit, usageRatio
}
