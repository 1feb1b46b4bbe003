package models

import (
	"fmt"
	"strings"
	"time"
)

// Snapshot is one point-in-time reading across every metric category.
type Snapshot struct {
	Timestamp   time.Time          `json:"timestamp"`
	CPU         CPU                `json:"cpu"`
	Memory      Memory             `json:"memory"`
	Disk        Disk               `json:"disk"`
	Network     Network            `json:"network"`
	Temperature map[string]float64 `json:"temperature,omitempty"`
}

// Clone returns a deep copy; the per-core slice and temperature map are not shared.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.CPU.PerCore != nil {
		out.CPU.PerCore = append(make([]float64, 0, len(s.CPU.PerCore)), s.CPU.PerCore...)
	}
	if s.Temperature != nil {
		out.Temperature = make(map[string]float64, len(s.Temperature))
		for k, v := range s.Temperature {
			out.Temperature[k] = v
		}
	}
	return out
}

// CPU holds processor utilisation.
type CPU struct {
	Overall     float64    `json:"overall"` // percent 0-100
	PerCore     []float64  `json:"perCore"`
	LoadAverage [3]float64 `json:"loadAverage"` // 1, 5 and 15 minute
}

// Memory holds RAM and swap usage in bytes.
type Memory struct {
	Total     uint64  `json:"total"`
	Used      uint64  `json:"used"`
	Available uint64  `json:"available"`
	Pressure  float64 `json:"pressure"` // 0-100
	SwapUsed  uint64  `json:"swapUsed"`
	SwapTotal uint64  `json:"swapTotal"`
}

// Disk holds usage of the monitored filesystem and its throughput.
type Disk struct {
	Total            uint64  `json:"total"`
	Used             uint64  `json:"used"`
	Available        uint64  `json:"available"`
	ReadBytesPerSec  float64 `json:"readBytesPerSec"`
	WriteBytesPerSec float64 `json:"writeBytesPerSec"`
}

// Network holds cumulative interface counters.
type Network struct {
	BytesSent     uint64 `json:"bytesSent"`
	BytesReceived uint64 `json:"bytesReceived"`
	PacketsIn     uint64 `json:"packetsIn"`
	PacketsOut    uint64 `json:"packetsOut"`
}

// ProcessInfo is one row of the process table. It only lives for a single sampling pass.
type ProcessInfo struct {
	PID      int32   `json:"pid"`
	Name     string  `json:"name"`
	CPU      float64 `json:"cpu"`    // percent, may exceed 100 on multi-core hosts
	Memory   float64 `json:"memory"` // percent of total RAM
	MemoryMB float64 `json:"memoryMB"`
	User     string  `json:"user"`
	State    string  `json:"state"`
}

// SuggestionType identifies the remediation a suggestion proposes.
type SuggestionType string

const (
	SuggestionQuitApp        SuggestionType = "quit_app"
	SuggestionClearCache     SuggestionType = "clear_cache"
	SuggestionDisableStartup SuggestionType = "disable_startup"
	SuggestionReduceMemory   SuggestionType = "reduce_memory"
)

// Impact ranks the expected benefit of a suggestion.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Suggestion is an advisory optimization. Command is never executed.
type Suggestion struct {
	Type    SuggestionType `json:"type"`
	App     string         `json:"app,omitempty"`
	Reason  string         `json:"reason"`
	Impact  Impact         `json:"impact"`
	Command string         `json:"command,omitempty"`
}

// Metric selects a single category of a snapshot.
type Metric string

const (
	MetricAll     Metric = "all"
	MetricCPU     Metric = "cpu"
	MetricMemory  Metric = "memory"
	MetricDisk    Metric = "disk"
	MetricNetwork Metric = "network"
)

// ParseMetric validates a metric filter. An empty value means MetricAll.
func ParseMetric(value string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(value))); m {
	case "":
		return MetricAll, nil
	case MetricAll, MetricCPU, MetricMemory, MetricDisk, MetricNetwork:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metric %q (expected cpu, memory, disk, network or all)", value)
	}
}

// SnapshotView is a snapshot narrowed to one category.
type SnapshotView struct {
	Timestamp   time.Time          `json:"timestamp"`
	CPU         *CPU               `json:"cpu,omitempty"`
	Memory      *Memory            `json:"memory,omitempty"`
	Disk        *Disk              `json:"disk,omitempty"`
	Network     *Network           `json:"network,omitempty"`
	Temperature map[string]float64 `json:"temperature,omitempty"`
}

// Project narrows the snapshot to the requested category.
func (s Snapshot) Project(metric Metric) SnapshotView {
	view := SnapshotView{Timestamp: s.Timestamp, Temperature: s.Temperature}
	switch metric {
	case MetricCPU:
		cpu := s.CPU
		view.CPU = &cpu
	case MetricMemory:
		mem := s.Memory
		view.Memory = &mem
	case MetricDisk:
		disk := s.Disk
		view.Disk = &disk
	case MetricNetwork:
		net := s.Network
		view.Network = &net
	default:
		cpu, mem, disk, net := s.CPU, s.Memory, s.Disk, s.Network
		view.CPU, view.Memory, view.Disk, view.Network = &cpu, &mem, &disk, &net
	}
	return view
}
