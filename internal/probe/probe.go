// Package probe defines the OS sampling capability consumed by the monitor.
package probe

import (
	"context"

	"github.com/rcourtman/pulse-perfmon/internal/models"
)

// Probe supplies one-shot readings of the local machine. Every call may be
// slow and may fail.
type Probe interface {
	ReadCPU(ctx context.Context) (models.CPU, error)
	ReadMemory(ctx context.Context) (models.Memory, error)
	ReadDisk(ctx context.Context) (models.Disk, error)
	ReadNetwork(ctx context.Context) (models.Network, error)
	// ReadTemperatures returns sensor name to celsius. Failure is not fatal to callers.
	ReadTemperatures(ctx context.Context) (map[string]float64, error)
	// ReadTopProcesses returns up to limit processes ordered by CPU usage.
	ReadTopProcesses(ctx context.Context, limit int) ([]models.ProcessInfo, error)
}
