// Package hostmetrics samples the local machine through gopsutil.
package hostmetrics

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/procfs"
	perrors "github.com/rcourtman/pulse-perfmon/internal/errors"
	"github.com/rcourtman/pulse-perfmon/internal/models"
	"github.com/rcourtman/pulse-perfmon/internal/sensors"
	"github.com/rs/zerolog/log"
	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	goload "github.com/shirou/gopsutil/v4/load"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"
)

// System call wrappers for testing
var (
	cpuPercent     = gocpu.PercentWithContext
	loadAvg        = goload.AvgWithContext
	virtualMemory  = gomem.VirtualMemoryWithContext
	swapMemory     = gomem.SwapMemoryWithContext
	diskUsage      = godisk.UsageWithContext
	diskIOCounters = godisk.IOCountersWithContext
	netInterfaces  = gonet.InterfacesWithContext
	netIOCounters  = gonet.IOCountersWithContext
	memoryPSI      = readMemoryPSI
	sensorsJSON    = sensors.CollectLocal
	listProcesses  = collectProcesses
	sleepCtx       = sleepContext
)

const (
	defaultDiskPath       = "/"
	defaultSampleInterval = time.Second
	defaultProcessLimit   = 10
)

// Config controls what the collector samples.
type Config struct {
	DiskPath       string
	SampleInterval time.Duration // window for CPU and disk throughput deltas
}

// Collector is the default probe backed by gopsutil, procfs and lm-sensors.
type Collector struct {
	diskPath       string
	sampleInterval time.Duration
}

// NewCollector creates a collector with defaults applied.
func NewCollector(cfg Config) *Collector {
	c := &Collector{
		diskPath:       strings.TrimSpace(cfg.DiskPath),
		sampleInterval: cfg.SampleInterval,
	}
	if c.diskPath == "" {
		c.diskPath = defaultDiskPath
	}
	if c.sampleInterval <= 0 {
		c.sampleInterval = defaultSampleInterval
	}
	return c
}

// ReadCPU samples per-core utilisation over the sample interval.
func (c *Collector) ReadCPU(ctx context.Context) (models.CPU, error) {
	perCore, err := cpuPercent(ctx, c.sampleInterval, true)
	if err != nil {
		return models.CPU{}, perrors.WrapProbeError("read_cpu", err)
	}

	out := models.CPU{PerCore: make([]float64, len(perCore))}
	var sum float64
	for i, v := range perCore {
		out.PerCore[i] = clampPercent(v)
		sum += out.PerCore[i]
	}
	if len(perCore) > 0 {
		out.Overall = clampPercent(sum / float64(len(perCore)))
	}

	if avg, err := loadAvg(ctx); err == nil && avg != nil {
		out.LoadAverage = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	} else if err != nil {
		log.Debug().Err(err).Msg("Load average unavailable")
	}

	return out, nil
}

// ReadMemory reports RAM, swap and a 0-100 pressure score.
func (c *Collector) ReadMemory(ctx context.Context) (models.Memory, error) {
	vm, err := virtualMemory(ctx)
	if err != nil {
		return models.Memory{}, perrors.WrapProbeError("read_memory", err)
	}

	out := models.Memory{
		Total:     vm.Total,
		Used:      vm.Used,
		Available: vm.Available,
	}
	if vm.Total > 0 && vm.Available <= vm.Total {
		out.Pressure = float64(vm.Total-vm.Available) / float64(vm.Total) * 100
	}
	// Kernel stall information wins when it reports more pressure than occupancy.
	if stall, err := memoryPSI(); err == nil && stall > out.Pressure {
		out.Pressure = stall
	}
	out.Pressure = clampPercent(out.Pressure)

	if swap, err := swapMemory(ctx); err == nil && swap != nil {
		out.SwapTotal = swap.Total
		out.SwapUsed = swap.Used
	} else if err != nil {
		log.Debug().Err(err).Msg("Swap stats unavailable")
	}

	return out, nil
}

func readMemoryPSI() (float64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, err
	}
	stats, err := fs.PSIStatsForResource("memory")
	if err != nil {
		return 0, err
	}
	if stats.Some == nil {
		return 0, fmt.Errorf("memory PSI has no 'some' line")
	}
	return stats.Some.Avg10, nil
}

// ReadDisk reports usage of the configured filesystem and block device
// throughput across the sample interval.
func (c *Collector) ReadDisk(ctx context.Context) (models.Disk, error) {
	usage, err := diskUsage(ctx, c.diskPath)
	if err != nil {
		return models.Disk{}, perrors.WrapProbeError("read_disk", err)
	}
	out := models.Disk{
		Total:     usage.Total,
		Used:      usage.Used,
		Available: usage.Free,
	}

	before, err := diskIOCounters(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Disk IO counters unavailable")
		return out, nil
	}
	if err := sleepCtx(ctx, c.sampleInterval); err != nil {
		return models.Disk{}, perrors.WrapProbeError("read_disk", err)
	}
	after, err := diskIOCounters(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Disk IO counters unavailable")
		return out, nil
	}

	readDelta, writeDelta := diskIODelta(before, after)
	seconds := c.sampleInterval.Seconds()
	out.ReadBytesPerSec = float64(readDelta) / seconds
	out.WriteBytesPerSec = float64(writeDelta) / seconds
	return out, nil
}

// diskIODelta sums byte deltas of whole block devices. Counter resets count as zero.
func diskIODelta(before, after map[string]godisk.IOCountersStat) (read, write uint64) {
	for name, cur := range after {
		if skipBlockDevice(name, after) {
			continue
		}
		prev, ok := before[name]
		if !ok {
			continue
		}
		if cur.ReadBytes > prev.ReadBytes {
			read += cur.ReadBytes - prev.ReadBytes
		}
		if cur.WriteBytes > prev.WriteBytes {
			write += cur.WriteBytes - prev.WriteBytes
		}
	}
	return read, write
}

// Partition names per naming scheme; the first group is the parent device.
var partitionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^((?:sd|vd|xvd|hd)[a-z]+)\d+$`),
	regexp.MustCompile(`^((?:nvme\d+n\d+)|(?:mmcblk\d+))p\d+$`),
}

func skipBlockDevice(name string, all map[string]godisk.IOCountersStat) bool {
	if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") {
		return true
	}
	// Partitions are already counted by their parent device (sda1, nvme0n1p2).
	// Device-mapper and md names (dm-10, md127) are never partitions.
	for _, re := range partitionPatterns {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if _, ok := all[m[1]]; ok {
			return true
		}
	}
	return false
}

// ReadNetwork sums counters over every non-loopback interface.
func (c *Collector) ReadNetwork(ctx context.Context) (models.Network, error) {
	counters, err := netIOCounters(ctx, true)
	if err != nil {
		return models.Network{}, perrors.WrapProbeError("read_network", err)
	}

	loopback := map[string]bool{"lo": true}
	if ifaces, err := netInterfaces(ctx); err == nil {
		for _, iface := range ifaces {
			if isLoopback(iface.Flags) {
				loopback[iface.Name] = true
			}
		}
	}

	var out models.Network
	for _, stat := range counters {
		if loopback[stat.Name] {
			continue
		}
		out.BytesSent += stat.BytesSent
		out.BytesReceived += stat.BytesRecv
		out.PacketsIn += stat.PacketsRecv
		out.PacketsOut += stat.PacketsSent
	}
	return out, nil
}

func isLoopback(flags []string) bool {
	for _, flag := range flags {
		if strings.EqualFold(flag, "loopback") {
			return true
		}
	}
	return false
}

// ReadTemperatures returns every lm-sensors temperature keyed by "chip/feature".
func (c *Collector) ReadTemperatures(ctx context.Context) (map[string]float64, error) {
	raw, err := sensorsJSON(ctx)
	if err != nil {
		return nil, perrors.WrapProbeError("read_temperatures", err)
	}
	readings, err := sensors.Parse(raw)
	if err != nil {
		return nil, perrors.WrapProbeError("read_temperatures", err)
	}
	if len(readings) == 0 {
		return nil, perrors.WrapProbeError("read_temperatures", fmt.Errorf("no temperature sensors found"))
	}
	return readings, nil
}

// ReadTopProcesses returns up to limit processes ordered by CPU usage, highest first.
func (c *Collector) ReadTopProcesses(ctx context.Context, limit int) ([]models.ProcessInfo, error) {
	if limit <= 0 {
		limit = defaultProcessLimit
	}
	procs, err := listProcesses(ctx)
	if err != nil {
		return nil, perrors.WrapProbeError("read_processes", err)
	}

	sort.SliceStable(procs, func(i, j int) bool {
		return procs[i].CPU > procs[j].CPU
	})
	if len(procs) > limit {
		procs = procs[:limit]
	}
	return procs, nil
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
