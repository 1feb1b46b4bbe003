package probe

import (
	"context"
	"sync"

	"github.com/rcourtman/pulse-perfmon/internal/models"
)

// Static is a Probe that returns fixed readings. Set an Err field to make the
// matching read fail. Calls are counted per method.
type Static struct {
	CPU          models.CPU
	Memory       models.Memory
	Disk         models.Disk
	Network      models.Network
	Temperatures map[string]float64
	Processes    []models.ProcessInfo

	CPUErr         error
	MemoryErr      error
	DiskErr        error
	NetworkErr     error
	TemperatureErr error
	ProcessesErr   error

	mu        sync.Mutex
	calls     map[string]int
	lastLimit int
}

func (s *Static) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
}

// Calls returns how many times the named method was invoked.
func (s *Static) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *Static) ReadCPU(ctx context.Context) (models.CPU, error) {
	s.record("ReadCPU")
	if s.CPUErr != nil {
		return models.CPU{}, s.CPUErr
	}
	cpu := s.CPU
	cpu.PerCore = append([]float64(nil), s.CPU.PerCore...)
	return cpu, nil
}

func (s *Static) ReadMemory(ctx context.Context) (models.Memory, error) {
	s.record("ReadMemory")
	return s.Memory, s.MemoryErr
}

func (s *Static) ReadDisk(ctx context.Context) (models.Disk, error) {
	s.record("ReadDisk")
	return s.Disk, s.DiskErr
}

func (s *Static) ReadNetwork(ctx context.Context) (models.Network, error) {
	s.record("ReadNetwork")
	return s.Network, s.NetworkErr
}

func (s *Static) ReadTemperatures(ctx context.Context) (map[string]float64, error) {
	s.record("ReadTemperatures")
	if s.TemperatureErr != nil {
		return nil, s.TemperatureErr
	}
	out := make(map[string]float64, len(s.Temperatures))
	for k, v := range s.Temperatures {
		out[k] = v
	}
	return out, nil
}

// LastLimit returns the limit passed to the most recent ReadTopProcesses call.
func (s *Static) LastLimit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLimit
}

func (s *Static) ReadTopProcesses(ctx context.Context, limit int) ([]models.ProcessInfo, error) {
	s.record("ReadTopProcesses")
	s.mu.Lock()
	s.lastLimit = limit
	s.mu.Unlock()
	if s.ProcessesErr != nil {
		return nil, s.ProcessesErr
	}
	procs := append([]models.ProcessInfo(nil), s.Processes...)
	if limit > 0 && len(procs) > limit {
		procs = procs[:limit]
	}
	return procs, nil
}
