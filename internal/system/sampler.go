// Package system samples host resource utilisation for the per-tick
// health snapshot.
package system

import (
	"context"
	"fmt"
	"math"
	"time"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
	gomem "github.com/shirou/gopsutil/v4/mem"
)

// System call wrappers for testing
var (
	cpuPercent    = gocpu.PercentWithContext
	virtualMemory = gomem.VirtualMemoryWithContext
)

const sampleTimeout = 5 * time.Second

// Sampler reads host CPU and memory usage. It implements the
// scheduler's HostSampler.
type Sampler struct{}

func NewSampler() *Sampler {
	return &Sampler{}
}

// Sample returns the host's current CPU and memory usage in percent.
// The CPU figure is the usage since the previous call (gopsutil keeps
// the last-sample state internally), so the first reading reflects
// boot-to-now averages.
func (s *Sampler) Sample(ctx context.Context) (cpuPct, memPct float64, err error) {
	sampleCtx, cancel := context.WithTimeout(ctx, sampleTimeout)
	defer cancel()

	percents, err := cpuPercent(sampleCtx, 0, false)
	if err != nil {
		return 0, 0, fmt.Errorf("cpu sample: %w", err)
	}
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	memStats, err := virtualMemory(sampleCtx)
	if err != nil {
		return 0, 0, fmt.Errorf("memory sample: %w", err)
	}
	memPct = memStats.UsedPercent

	return clampPercent(cpuPct), clampPercent(memPct), nil
}

// clampPercent keeps readings inside [0,100] and flattens NaN/Inf,
// which gopsutil can report during the first sampling interval.
func clampPercent(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
