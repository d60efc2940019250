package engine

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/seetharamtessell/opsexec/logger"
)

// Rough memory budget per concurrently running process, used only to
// derive a concurrency recommendation when none is configured.
const (
	perExecutionBytes = 256 * 1024 * 1024
	reservedBytes     = 1024 * 1024 * 1024
	minConcurrency    = 1
	maxConcurrency    = 64
)

// SystemMetrics is a point-in-time view of engine load and host memory.
type SystemMetrics struct {
	RunningExecutions int     `json:"running_executions"`
	TotalExecutions   int     `json:"total_executions"`
	MaxConcurrent     int     `json:"max_concurrent"`
	MemoryUsedGB      float64 `json:"memory_used_gb"`
	MemoryTotalGB     float64 `json:"memory_total_gb"`
	MemoryPercent     float64 `json:"memory_percent"`
}

// SystemMetrics reports current load and host memory usage.
func (o *Orchestrator) SystemMetrics() SystemMetrics {
	m := SystemMetrics{
		RunningExecutions: o.store.Running(),
		TotalExecutions:   o.store.Len(),
		MaxConcurrent:     o.opts.MaxConcurrent,
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		m.MemoryUsedGB = float64(vm.Used) / (1 << 30)
		m.MemoryTotalGB = float64(vm.Total) / (1 << 30)
		m.MemoryPercent = vm.UsedPercent
	}
	return m
}

// RecommendedConcurrency derives an engine-wide concurrency cap from
// available host memory, clamped to a sane range. Falls back to the
// minimum when memory cannot be read.
func RecommendedConcurrency() int {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Warnw("Failed to read host memory, using minimum concurrency", "error", err)
		return minConcurrency
	}

	budget := int64(vm.Available) - reservedBytes
	n := int(budget / perExecutionBytes)
	if n < minConcurrency {
		return minConcurrency
	}
	if n > maxConcurrency {
		return maxConcurrency
	}
	return n
}

// warnMemoryPressure logs when the configured concurrency cap exceeds
// what host memory comfortably supports.
func warnMemoryPressure(maxConcurrent int) {
	recommended := RecommendedConcurrency()
	if maxConcurrent > recommended {
		logger.Warnw("Configured concurrency may exceed available memory",
			"max_concurrent", maxConcurrent,
			"recommended", recommended)
	}
}
