package hostmetrics

import (
	"context"
	"strings"

	"github.com/rcourtman/pulse-perfmon/internal/models"
	goprocess "github.com/shirou/gopsutil/v4/process"
)

var processes = goprocess.ProcessesWithContext

// collectProcesses walks the process table the way ps aux reports it: CPU is
// the lifetime average and memory is the RSS share of physical RAM.
func collectProcesses(ctx context.Context) ([]models.ProcessInfo, error) {
	procs, err := processes(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Exited between listing and inspection
			continue
		}
		info := models.ProcessInfo{PID: p.Pid, Name: name}

		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			info.CPU = cpu
		}
		if mem, err := p.MemoryPercentWithContext(ctx); err == nil {
			info.Memory = float64(mem)
		}
		if rss, err := p.MemoryInfoWithContext(ctx); err == nil && rss != nil {
			info.MemoryMB = float64(rss.RSS) / (1024 * 1024)
		}
		if user, err := p.UsernameWithContext(ctx); err == nil {
			info.User = user
		}
		if status, err := p.StatusWithContext(ctx); err == nil {
			info.State = strings.Join(status, ",")
		}

		out = append(out, info)
	}
	return out, nil
}
