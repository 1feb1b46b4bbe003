// Package perfmon composes the probe, caches, store and analyzer into the
// current, history, processes and optimize operations.
package perfmon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rcourtman/pulse-perfmon/internal/cache"
	perrors "github.com/rcourtman/pulse-perfmon/internal/errors"
	"github.com/rcourtman/pulse-perfmon/internal/metrics"
	"github.com/rcourtman/pulse-perfmon/internal/models"
	"github.com/rcourtman/pulse-perfmon/internal/optimizer"
	"github.com/rcourtman/pulse-perfmon/internal/probe"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SnapshotStore is the slice of the time-series store the monitor needs.
type SnapshotStore interface {
	Append(ctx context.Context, snap models.Snapshot) error
	QueryWindow(ctx context.Context, window string) ([]models.Snapshot, error)
}

// Options tunes the monitor. Zero values take defaults.
type Options struct {
	ProbeTimeout         time.Duration // bound on each probe call
	ProcessLimit         int           // size of the processes listing
	OptimizeProcessLimit int           // processes considered by optimize
}

const (
	defaultProbeTimeout         = 10 * time.Second
	defaultProcessLimit         = 10
	defaultOptimizeProcessLimit = 20
)

func (o Options) withDefaults() Options {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = defaultProbeTimeout
	}
	if o.ProcessLimit <= 0 {
		o.ProcessLimit = defaultProcessLimit
	}
	if o.OptimizeProcessLimit <= 0 {
		o.OptimizeProcessLimit = defaultOptimizeProcessLimit
	}
	return o
}

// Monitor is the only component that touches both the caches and the store.
type Monitor struct {
	probe    probe.Probe
	store    SnapshotStore
	caches   *cache.Registry
	analyzer *optimizer.Analyzer
	opts     Options
	now      func() time.Time
}

// New wires a monitor. A nil analyzer uses the default rule set.
func New(p probe.Probe, store SnapshotStore, caches *cache.Registry, analyzer *optimizer.Analyzer, opts Options) *Monitor {
	if analyzer == nil {
		analyzer = optimizer.New()
	}
	return &Monitor{
		probe:    p,
		store:    store,
		caches:   caches,
		analyzer: analyzer,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

var currentKey = cache.Key("metrics", map[string]any{"type": "current"})

// Current returns the latest snapshot, served from the metrics cache while it
// is fresh. Every snapshot produced on a miss is appended to the store before
// it becomes visible; a cache hit never appends.
func (m *Monitor) Current(ctx context.Context, metric models.Metric) (any, error) {
	snap, err := m.caches.Metrics.Get(ctx, currentKey, func(ctx context.Context) (models.Snapshot, error) {
		snap, err := m.collect(ctx)
		if err != nil {
			return models.Snapshot{}, err
		}
		if err := m.store.Append(ctx, snap); err != nil {
			return models.Snapshot{}, err
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}

	// The cached snapshot is shared by every hit; hand out a copy.
	snap = snap.Clone()
	if metric == models.MetricAll || metric == "" {
		return snap, nil
	}
	return snap.Project(metric), nil
}

// History returns persisted snapshots of the named window, newest first.
// Unknown windows resolve to one hour; the metric filter does not narrow rows.
func (m *Monitor) History(ctx context.Context, timeRange string, metric models.Metric) ([]models.Snapshot, error) {
	if timeRange == "" {
		timeRange = metrics.DefaultWindow
	}
	return m.store.QueryWindow(ctx, timeRange)
}

// Processes returns the top processes, ordered by cpu or memory when asked.
// Any other metric keeps the probe order.
func (m *Monitor) Processes(ctx context.Context, metric models.Metric) ([]models.ProcessInfo, error) {
	limit := m.opts.ProcessLimit
	key := cache.Key("processes", map[string]any{"limit": limit})
	cached, err := m.caches.Processes.Get(ctx, key, func(ctx context.Context) ([]models.ProcessInfo, error) {
		return m.readProcesses(ctx, limit)
	})
	if err != nil {
		return nil, err
	}

	// The cached slice is shared; sort a copy.
	procs := make([]models.ProcessInfo, len(cached))
	copy(procs, cached)
	switch metric {
	case models.MetricCPU:
		sort.SliceStable(procs, func(i, j int) bool { return procs[i].CPU > procs[j].CPU })
	case models.MetricMemory:
		sort.SliceStable(procs, func(i, j int) bool { return procs[i].Memory > procs[j].Memory })
	}
	return procs, nil
}

// Optimize analyzes a fresh snapshot and process list. Neither is cached or
// persisted.
func (m *Monitor) Optimize(ctx context.Context) ([]models.Suggestion, error) {
	var (
		snap  models.Snapshot
		procs []models.ProcessInfo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = m.collect(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		procs, err = m.readProcesses(gctx, m.opts.OptimizeProcessLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	suggestions := m.analyzer.Analyze(snap, procs)
	for _, s := range suggestions {
		suggestionsTotal.WithLabelValues(string(s.Type)).Inc()
	}
	return suggestions, nil
}

// collect reads every category concurrently. Temperature is optional.
func (m *Monitor) collect(ctx context.Context) (models.Snapshot, error) {
	snap := models.Snapshot{Timestamp: time.UnixMilli(m.now().UnixMilli())}
	timeout := m.opts.ProbeTimeout

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.CPU, err = callProbe(gctx, timeout, "read_cpu", m.probe.ReadCPU)
		return err
	})
	g.Go(func() (err error) {
		snap.Memory, err = callProbe(gctx, timeout, "read_memory", m.probe.ReadMemory)
		return err
	})
	g.Go(func() (err error) {
		snap.Disk, err = callProbe(gctx, timeout, "read_disk", m.probe.ReadDisk)
		return err
	})
	g.Go(func() (err error) {
		snap.Network, err = callProbe(gctx, timeout, "read_network", m.probe.ReadNetwork)
		return err
	})

	var temps map[string]float64
	g.Go(func() error {
		readings, err := callProbe(gctx, timeout, "read_temperatures", m.probe.ReadTemperatures)
		if err != nil {
			log.Debug().Err(err).Msg("Temperature unavailable")
			return nil
		}
		temps = readings
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.Snapshot{}, err
	}
	if snap.CPU.PerCore == nil {
		snap.CPU.PerCore = []float64{}
	}
	if len(temps) > 0 {
		snap.Temperature = temps
	}
	return snap, nil
}

func (m *Monitor) readProcesses(ctx context.Context, limit int) ([]models.ProcessInfo, error) {
	procs, err := callProbe(ctx, m.opts.ProbeTimeout, "read_processes", func(ctx context.Context) ([]models.ProcessInfo, error) {
		return m.probe.ReadTopProcesses(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	if procs == nil {
		procs = []models.ProcessInfo{}
	}
	return procs, nil
}

type probeResult[T any] struct {
	value T
	err   error
}

// callProbe bounds fn by timeout even when fn ignores its context. Errors are
// reported as probe errors.
func callProbe[T any](ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan probeResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- probeResult[T]{err: perrors.WrapProbeError(op, fmt.Errorf("panic: %v", r))}
			}
		}()
		value, err := fn(callCtx)
		done <- probeResult[T]{value: value, err: err}
	}()

	var zero T
	select {
	case res := <-done:
		if res.err != nil {
			return zero, asProbeError(op, res.err)
		}
		return res.value, nil
	case <-callCtx.Done():
		return zero, perrors.WrapProbeError(op, callCtx.Err())
	}
}

func asProbeError(op string, err error) error {
	if perrors.TypeOf(err) == perrors.ErrorTypeInternal {
		return perrors.WrapProbeError(op, err)
	}
	return err
}
