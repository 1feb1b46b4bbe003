package hostmetrics

import (
	"context"
	"errors"
	"testing"
	"time"

	perrors "github.com/rcourtman/pulse-perfmon/internal/errors"
	"github.com/rcourtman/pulse-perfmon/internal/models"
	godisk "github.com/shirou/gopsutil/v4/disk"
	goload "github.com/shirou/gopsutil/v4/load"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCPUClampsAndAverages(t *testing.T) {
	origCPUPercent := cpuPercent
	origLoadAvg := loadAvg
	t.Cleanup(func() {
		cpuPercent = origCPUPercent
		loadAvg = origLoadAvg
	})

	var gotInterval time.Duration
	var gotPerCPU bool
	cpuPercent = func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error) {
		gotInterval, gotPerCPU = interval, percpu
		return []float64{-4.2, 50, 147.9, 30}, nil
	}
	loadAvg = func(ctx context.Context) (*goload.AvgStat, error) {
		return &goload.AvgStat{Load1: 1.5, Load5: 1, Load15: 0.5}, nil
	}

	c := NewCollector(Config{SampleInterval: 250 * time.Millisecond})
	cpu, err := c.ReadCPU(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, gotInterval)
	assert.True(t, gotPerCPU)
	assert.Equal(t, []float64{0, 50, 100, 30}, cpu.PerCore)
	assert.InDelta(t, 45.0, cpu.Overall, 1e-9)
	assert.Equal(t, [3]float64{1.5, 1, 0.5}, cpu.LoadAverage)
}

func TestReadCPUError(t *testing.T) {
	origCPUPercent := cpuPercent
	t.Cleanup(func() { cpuPercent = origCPUPercent })

	cpuPercent = func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error) {
		return nil, errors.New("boom")
	}

	_, err := NewCollector(Config{}).ReadCPU(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.IsProbeError(err))
}

func TestReadCPULoadAverageFailureIsTolerated(t *testing.T) {
	origCPUPercent := cpuPercent
	origLoadAvg := loadAvg
	t.Cleanup(func() {
		cpuPercent = origCPUPercent
		loadAvg = origLoadAvg
	})

	cpuPercent = func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error) {
		return []float64{}, nil
	}
	loadAvg = func(ctx context.Context) (*goload.AvgStat, error) {
		return nil, errors.New("no loadavg")
	}

	cpu, err := NewCollector(Config{}).ReadCPU(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, cpu.Overall)
	assert.NotNil(t, cpu.PerCore)
}

func stubMemory(t *testing.T, vm *gomem.VirtualMemoryStat, swap *gomem.SwapMemoryStat, psi float64, psiErr error) {
	t.Helper()
	origVirtual := virtualMemory
	origSwap := swapMemory
	origPSI := memoryPSI
	t.Cleanup(func() {
		virtualMemory = origVirtual
		swapMemory = origSwap
		memoryPSI = origPSI
	})

	virtualMemory = func(ctx context.Context) (*gomem.VirtualMemoryStat, error) { return vm, nil }
	swapMemory = func(ctx context.Context) (*gomem.SwapMemoryStat, error) { return swap, nil }
	memoryPSI = func() (float64, error) { return psi, psiErr }
}

func TestReadMemoryPressureFromAvailable(t *testing.T) {
	stubMemory(t,
		&gomem.VirtualMemoryStat{Total: 1000, Used: 600, Available: 250},
		&gomem.SwapMemoryStat{Total: 400, Used: 100},
		0, errors.New("no psi"))

	mem, err := NewCollector(Config{}).ReadMemory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Memory{
		Total:     1000,
		Used:      600,
		Available: 250,
		Pressure:  75,
		SwapUsed:  100,
		SwapTotal: 400,
	}, mem)
}

func TestReadMemoryPrefersHigherStallPressure(t *testing.T) {
	stubMemory(t,
		&gomem.VirtualMemoryStat{Total: 1000, Used: 200, Available: 800},
		&gomem.SwapMemoryStat{},
		64.5, nil)

	mem, err := NewCollector(Config{}).ReadMemory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 64.5, mem.Pressure)
}

func TestReadMemoryError(t *testing.T) {
	origVirtual := virtualMemory
	t.Cleanup(func() { virtualMemory = origVirtual })
	virtualMemory = func(ctx context.Context) (*gomem.VirtualMemoryStat, error) {
		return nil, errors.New("meminfo unreadable")
	}

	_, err := NewCollector(Config{}).ReadMemory(context.Background())
	assert.ErrorIs(t, err, perrors.ErrProbeFailed)
}

func TestReadDiskThroughput(t *testing.T) {
	origUsage := diskUsage
	origIO := diskIOCounters
	origSleep := sleepCtx
	t.Cleanup(func() {
		diskUsage = origUsage
		diskIOCounters = origIO
		sleepCtx = origSleep
	})

	var gotPath string
	diskUsage = func(ctx context.Context, path string) (*godisk.UsageStat, error) {
		gotPath = path
		return &godisk.UsageStat{Total: 100, Used: 60, Free: 40}, nil
	}
	samples := []map[string]godisk.IOCountersStat{
		{
			"sda":     {ReadBytes: 1000, WriteBytes: 5000},
			"sda1":    {ReadBytes: 900, WriteBytes: 4000},
			"nvme0n1": {ReadBytes: 10, WriteBytes: 10},
			"loop0":   {ReadBytes: 0, WriteBytes: 0},
		},
		{
			"sda":     {ReadBytes: 3000, WriteBytes: 4000}, // write counter reset
			"sda1":    {ReadBytes: 2900, WriteBytes: 4000},
			"nvme0n1": {ReadBytes: 1010, WriteBytes: 2010},
			"loop0":   {ReadBytes: 9999, WriteBytes: 9999},
		},
	}
	call := 0
	diskIOCounters = func(ctx context.Context, names ...string) (map[string]godisk.IOCountersStat, error) {
		s := samples[call]
		call++
		return s, nil
	}
	var slept time.Duration
	sleepCtx = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	c := NewCollector(Config{DiskPath: "/data", SampleInterval: 2 * time.Second})
	disk, err := c.ReadDisk(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/data", gotPath)
	assert.Equal(t, 2*time.Second, slept)
	assert.Equal(t, uint64(100), disk.Total)
	assert.Equal(t, uint64(60), disk.Used)
	assert.Equal(t, uint64(40), disk.Available)
	assert.Equal(t, 1500.0, disk.ReadBytesPerSec)
	assert.Equal(t, 1000.0, disk.WriteBytesPerSec)
}

func TestDiskIODeltaCountsWholeDevicesOnly(t *testing.T) {
	tests := []struct {
		name   string
		before map[string]godisk.IOCountersStat
		after  map[string]godisk.IOCountersStat
		want   uint64
	}{
		{
			name:   "device mapper names are not partitions",
			before: map[string]godisk.IOCountersStat{"dm-1": {}, "dm-10": {}},
			after:  map[string]godisk.IOCountersStat{"dm-1": {ReadBytes: 100}, "dm-10": {ReadBytes: 5000}},
			want:   5100,
		},
		{
			name:   "md arrays are counted",
			before: map[string]godisk.IOCountersStat{"md1": {}, "md127": {}},
			after:  map[string]godisk.IOCountersStat{"md1": {ReadBytes: 7}, "md127": {ReadBytes: 3}},
			want:   10,
		},
		{
			name:   "scsi and virtio partitions skipped",
			before: map[string]godisk.IOCountersStat{"sda": {}, "sda1": {}, "vdb": {}, "vdb2": {}},
			after:  map[string]godisk.IOCountersStat{"sda": {ReadBytes: 10}, "sda1": {ReadBytes: 9}, "vdb": {ReadBytes: 20}, "vdb2": {ReadBytes: 19}},
			want:   30,
		},
		{
			name:   "nvme and mmc partitions skipped",
			before: map[string]godisk.IOCountersStat{"nvme0n1": {}, "nvme0n1p2": {}, "mmcblk0": {}, "mmcblk0p1": {}},
			after:  map[string]godisk.IOCountersStat{"nvme0n1": {ReadBytes: 40}, "nvme0n1p2": {ReadBytes: 39}, "mmcblk0": {ReadBytes: 2}, "mmcblk0p1": {ReadBytes: 1}},
			want:   42,
		},
		{
			name:   "partition without its parent is counted",
			before: map[string]godisk.IOCountersStat{"xvda1": {}},
			after:  map[string]godisk.IOCountersStat{"xvda1": {ReadBytes: 11}},
			want:   11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			read, _ := diskIODelta(tt.before, tt.after)
			assert.Equal(t, tt.want, read)
		})
	}
}

func TestReadDiskWithoutIOCounters(t *testing.T) {
	origUsage := diskUsage
	origIO := diskIOCounters
	t.Cleanup(func() {
		diskUsage = origUsage
		diskIOCounters = origIO
	})

	diskUsage = func(ctx context.Context, path string) (*godisk.UsageStat, error) {
		return &godisk.UsageStat{Total: 10, Used: 5, Free: 5}, nil
	}
	diskIOCounters = func(ctx context.Context, names ...string) (map[string]godisk.IOCountersStat, error) {
		return nil, errors.New("not supported")
	}

	disk, err := NewCollector(Config{}).ReadDisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), disk.Available)
	assert.Zero(t, disk.ReadBytesPerSec)
}

func TestReadDiskUsageError(t *testing.T) {
	origUsage := diskUsage
	t.Cleanup(func() { diskUsage = origUsage })
	diskUsage = func(ctx context.Context, path string) (*godisk.UsageStat, error) {
		return nil, errors.New("statfs failed")
	}

	_, err := NewCollector(Config{}).ReadDisk(context.Background())
	assert.True(t, perrors.IsProbeError(err))
}

func TestReadNetworkSkipsLoopback(t *testing.T) {
	origCounters := netIOCounters
	origIfaces := netInterfaces
	t.Cleanup(func() {
		netIOCounters = origCounters
		netInterfaces = origIfaces
	})

	netIOCounters = func(ctx context.Context, pernic bool) ([]gonet.IOCountersStat, error) {
		return []gonet.IOCountersStat{
			{Name: "lo", BytesSent: 1 << 20, BytesRecv: 1 << 20, PacketsSent: 100, PacketsRecv: 100},
			{Name: "lo1", BytesSent: 7, BytesRecv: 7, PacketsSent: 7, PacketsRecv: 7},
			{Name: "eth0", BytesSent: 100, BytesRecv: 200, PacketsSent: 3, PacketsRecv: 4},
			{Name: "wlan0", BytesSent: 10, BytesRecv: 20, PacketsSent: 1, PacketsRecv: 2},
		}, nil
	}
	netInterfaces = func(ctx context.Context) (gonet.InterfaceStatList, error) {
		return gonet.InterfaceStatList{
			{Name: "lo1", Flags: []string{"up", "loopback"}},
			{Name: "eth0", Flags: []string{"up", "broadcast"}},
		}, nil
	}

	network, err := NewCollector(Config{}).ReadNetwork(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Network{
		BytesSent:     110,
		BytesReceived: 220,
		PacketsIn:     6,
		PacketsOut:    4,
	}, network)
}

func TestReadTemperatures(t *testing.T) {
	origSensors := sensorsJSON
	t.Cleanup(func() { sensorsJSON = origSensors })

	sensorsJSON = func(ctx context.Context) (string, error) {
		return `{"coretemp-isa-0000":{"Package id 0":{"temp1_input":51.0}}}`, nil
	}
	temps, err := NewCollector(Config{}).ReadTemperatures(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"coretemp-isa-0000/Package id 0": 51}, temps)

	sensorsJSON = func(ctx context.Context) (string, error) {
		return `{"acpitz-acpi-0":{"Adapter":"ACPI interface"}}`, nil
	}
	_, err = NewCollector(Config{}).ReadTemperatures(context.Background())
	assert.True(t, perrors.IsProbeError(err))

	sensorsJSON = func(ctx context.Context) (string, error) {
		return "", errors.New("lm-sensors not installed")
	}
	_, err = NewCollector(Config{}).ReadTemperatures(context.Background())
	assert.True(t, perrors.IsProbeError(err))
}

func TestReadTopProcessesSortsAndTruncates(t *testing.T) {
	origList := listProcesses
	t.Cleanup(func() { listProcesses = origList })

	listProcesses = func(ctx context.Context) ([]models.ProcessInfo, error) {
		return []models.ProcessInfo{
			{PID: 1, Name: "init", CPU: 0.1},
			{PID: 2, Name: "build", CPU: 180},
			{PID: 3, Name: "db", CPU: 25},
			{PID: 4, Name: "shell", CPU: 0.5},
		}, nil
	}

	procs, err := NewCollector(Config{}).ReadTopProcesses(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, procs, 3)
	assert.Equal(t, []int32{2, 3, 4}, []int32{procs[0].PID, procs[1].PID, procs[2].PID})

	all, err := NewCollector(Config{}).ReadTopProcesses(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 4, "non-positive limit falls back to the default")
}

func TestReadTopProcessesError(t *testing.T) {
	origList := listProcesses
	t.Cleanup(func() { listProcesses = origList })
	listProcesses = func(ctx context.Context) ([]models.ProcessInfo, error) {
		return nil, errors.New("proc unreadable")
	}

	_, err := NewCollector(Config{}).ReadTopProcesses(context.Background(), 5)
	assert.True(t, perrors.IsProbeError(err))
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestNewCollectorDefaults(t *testing.T) {
	c := NewCollector(Config{DiskPath: "  "})
	assert.Equal(t, "/", c.diskPath)
	assert.Equal(t, time.Second, c.sampleInterval)
}
