package health

import (
	"context"
	"fmt"
	"runtime"

	"github.com/dustin/go-humanize"
)

// MemoryCheckerConfig configures the memory health checker.
type MemoryCheckerConfig struct {
	// WarningThreshold is the heap fraction of MaxAlloc that reports degraded.
	// Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the heap fraction of MaxAlloc that reports unhealthy.
	// Default: 0.95
	CriticalThreshold float64

	// MaxAlloc is the heap budget in bytes. Zero uses the memory obtained
	// from the OS.
	MaxAlloc uint64

	// ReadStats replaces runtime.ReadMemStats, for tests.
	ReadStats func(*runtime.MemStats)
}

// MemoryChecker compares heap usage with a budget.
type MemoryChecker struct {
	config MemoryCheckerConfig
}

// NewMemoryChecker creates a new memory health checker.
func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = min(config.WarningThreshold+0.1, 0.99)
	}
	if config.ReadStats == nil {
		config.ReadStats = runtime.ReadMemStats
	}
	return &MemoryChecker{config: config}
}

// Name returns "memory".
func (m *MemoryChecker) Name() string {
	return "memory"
}

// Check reads heap statistics and classifies them against the thresholds.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	var stats runtime.MemStats
	m.config.ReadStats(&stats)

	budget := m.config.MaxAlloc
	if budget == 0 {
		budget = stats.Sys
	}
	details := map[string]any{
		"heap_alloc": humanize.IBytes(stats.HeapAlloc),
		"heap_sys":   humanize.IBytes(stats.HeapSys),
		"num_gc":     stats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}
	if budget == 0 {
		return Healthy("memory stats unavailable").WithDetails(details)
	}

	ratio := float64(stats.HeapAlloc) / float64(budget)
	details["budget"] = humanize.IBytes(budget)
	details["usage_percent"] = fmt.Sprintf("%.1f", ratio*100)

	msg := fmt.Sprintf("heap %s of %s", humanize.IBytes(stats.HeapAlloc), humanize.IBytes(budget))
	switch {
	case ratio >= m.config.CriticalThreshold:
		return Unhealthy("memory usage critical: "+msg, ErrCheckFailed).WithDetails(details)
	case ratio >= m.config.WarningThreshold:
		return Degraded("memory usage high: " + msg).WithDetails(details)
	default:
		return Healthy("memory usage normal: " + msg).WithDetails(details)
	}
}
