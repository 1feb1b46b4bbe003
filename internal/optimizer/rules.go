package optimizer

import (
	"fmt"
	"sort"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rcourtman/pulse-perfmon/internal/models"
)

// Rule names
const (
	RuleMemoryPressure = "memory-pressure"
	RuleCPUHog         = "cpu-hog"
	RuleLowDisk        = "low-disk"
	RuleSwap           = "swap"
)

const clearCacheCommand = "rm -rf ~/.cache/*"

// Thresholds holds the trigger levels of the default rules. Percentages are 0-100.
type Thresholds struct {
	MemoryPressure    float64 // system pressure that enables quit suggestions
	ProcessMemory     float64 // per-process memory share worth quitting
	ProcessMemoryHigh float64 // above this a quit suggestion is high impact
	MaxQuitTargets    int
	ProcessCPU        float64
	ProcessCPUHigh    float64
	DiskFreeRatio     float64 // fraction of total below which disk is low
	SwapUsedRatio     float64
}

// DefaultThresholds returns the stock trigger levels.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MemoryPressure:    70,
		ProcessMemory:     5,
		ProcessMemoryHigh: 10,
		MaxQuitTargets:    3,
		ProcessCPU:        50,
		ProcessCPUHigh:    80,
		DiskFreeRatio:     0.1,
		SwapUsedRatio:     0.5,
	}
}

// DefaultRules returns the standard rule set in evaluation order. Processes
// whose name matches one of protected are never proposed as targets.
func DefaultRules(t Thresholds, protected []string) []Rule {
	return []Rule{
		MemoryPressureRule(t, protected),
		CPUHogRule(t, protected),
		LowDiskRule(t),
		SwapRule(t),
	}
}

// MemoryPressureRule proposes quitting the largest memory consumers while the
// system is under memory pressure.
func MemoryPressureRule(t Thresholds, protected []string) Rule {
	return NewRule(RuleMemoryPressure, func(snap models.Snapshot, procs []models.ProcessInfo) []models.Suggestion {
		if snap.Memory.Pressure <= t.MemoryPressure {
			return nil
		}

		hogs := make([]models.ProcessInfo, 0, len(procs))
		for _, p := range procs {
			if p.Memory > t.ProcessMemory && !isProtected(p.Name, protected) {
				hogs = append(hogs, p)
			}
		}
		sort.SliceStable(hogs, func(i, j int) bool {
			return hogs[i].Memory > hogs[j].Memory
		})
		if len(hogs) > t.MaxQuitTargets {
			hogs = hogs[:t.MaxQuitTargets]
		}

		out := make([]models.Suggestion, 0, len(hogs))
		for _, p := range hogs {
			impact := models.ImpactMedium
			if p.Memory > t.ProcessMemoryHigh {
				impact = models.ImpactHigh
			}
			out = append(out, models.Suggestion{
				Type:    models.SuggestionQuitApp,
				App:     p.Name,
				Reason:  fmt.Sprintf("Using %.1f%% of memory while system is under pressure", p.Memory),
				Impact:  impact,
				Command: fmt.Sprintf("kill -TERM %d", p.PID),
			})
		}
		return out
	})
}

// CPUHogRule flags every process burning CPU. Its suggestions are typed
// reduce_memory; consumers depend on that value.
func CPUHogRule(t Thresholds, protected []string) Rule {
	return NewRule(RuleCPUHog, func(_ models.Snapshot, procs []models.ProcessInfo) []models.Suggestion {
		var out []models.Suggestion
		for _, p := range procs {
			if p.CPU <= t.ProcessCPU || isProtected(p.Name, protected) {
				continue
			}
			impact := models.ImpactMedium
			if p.CPU > t.ProcessCPUHigh {
				impact = models.ImpactHigh
			}
			out = append(out, models.Suggestion{
				Type:   models.SuggestionReduceMemory,
				App:    p.Name,
				Reason: fmt.Sprintf("Consuming %.1f%% CPU continuously", p.CPU),
				Impact: impact,
			})
		}
		return out
	})
}

// LowDiskRule suggests clearing caches when free space drops below the ratio.
func LowDiskRule(t Thresholds) Rule {
	return NewRule(RuleLowDisk, func(snap models.Snapshot, _ []models.ProcessInfo) []models.Suggestion {
		if float64(snap.Disk.Available) >= float64(snap.Disk.Total)*t.DiskFreeRatio {
			return nil
		}
		return []models.Suggestion{{
			Type:    models.SuggestionClearCache,
			Reason:  fmt.Sprintf("Less than %.0f%% disk space remaining", t.DiskFreeRatio*100),
			Impact:  models.ImpactHigh,
			Command: clearCacheCommand,
		}}
	})
}

// SwapRule reports heavy swap use.
func SwapRule(t Thresholds) Rule {
	return NewRule(RuleSwap, func(snap models.Snapshot, _ []models.ProcessInfo) []models.Suggestion {
		if float64(snap.Memory.SwapUsed) <= float64(snap.Memory.SwapTotal)*t.SwapUsedRatio {
			return nil
		}
		return []models.Suggestion{{
			Type:   models.SuggestionReduceMemory,
			Reason: "High swap usage indicates memory pressure",
			Impact: models.ImpactHigh,
		}}
	})
}

func isProtected(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if wildcard.Match(pattern, name) {
			return true
		}
	}
	return false
}
