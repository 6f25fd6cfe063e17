// Package capability reports what the sandbox offers: which analysis
// libraries are importable and which resource ceilings apply. Both reports
// are read-only and never fail; callers use them to warn the user before a
// run, not to gate one.
package capability

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/vitalstat/vitalstat/internal/engine"
)

// LimitsReport is the static execution configuration plus host facts.
type LimitsReport struct {
	MaxWallTimeSeconds float64 `json:"max_wall_time_seconds"`
	MaxMemoryMB        int     `json:"max_memory_mb"`
	MaxOutputBytes     int     `json:"max_output_bytes"`
	Interpreter        string  `json:"interpreter"`
	HostMemoryMB       uint64  `json:"host_memory_mb"`
	HostCPUCount       int     `json:"host_cpu_count"`
}

// Reporter answers capability queries for one engine configuration.
type Reporter struct {
	limits engine.Limits
}

// NewReporter returns a reporter for the given ceilings.
func NewReporter(limits engine.Limits) *Reporter {
	return &Reporter{limits: limits}
}

// Libraries maps each allow-list entry to its availability inside the
// sandbox. Unavailable or denied entries are simply false.
func (r *Reporter) Libraries() map[string]bool {
	return engine.AvailableLibraries()
}

// Limits returns the configured ceilings and host introspection. Host
// probes that fail degrade to zero values rather than errors.
func (r *Reporter) Limits() LimitsReport {
	report := LimitsReport{
		MaxWallTimeSeconds: r.limits.MaxWallTime.Seconds(),
		MaxMemoryMB:        r.limits.MaxMemoryMB,
		MaxOutputBytes:     r.limits.MaxOutputBytes,
		Interpreter:        fmt.Sprintf("yaegi (%s)", runtime.Version()),
		HostCPUCount:       runtime.NumCPU(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		report.HostMemoryMB = vm.Total >> 20
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		report.HostCPUCount = n
	}
	return report
}
