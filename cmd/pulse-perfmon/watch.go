package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcourtman/pulse-perfmon/internal/config"
	"github.com/rcourtman/pulse-perfmon/internal/logging"
	"github.com/rcourtman/pulse-perfmon/internal/models"
	"github.com/rcourtman/pulse-perfmon/internal/perfmon"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type watchOptions struct {
	interval         time.Duration
	optimizeInterval time.Duration
	metricsAddr      string
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	wopts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Record snapshots continuously and log suggestions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, wopts)
		},
	}
	cmd.Flags().DurationVar(&wopts.interval, "interval", 10*time.Second, "sampling interval")
	cmd.Flags().DurationVar(&wopts.optimizeInterval, "optimize-interval", time.Minute, "how often suggestions are computed; 0 disables")
	cmd.Flags().StringVar(&wopts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9091)")
	return cmd
}

func runWatch(ctx context.Context, opts *rootOptions, wopts *watchOptions) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	a.caches.Start(ctx)

	if wopts.metricsAddr != "" {
		if _, err := startMetricsServer(ctx, wopts.metricsAddr); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	watcher, err := config.NewWatcher(a.cfg, func(cfg *config.Config) {
		if opts.logLevel == "" {
			logging.SetLevel(cfg.LogLevel)
			log.Info().Str("level", cfg.LogLevel).Msg("Applied log level from configuration")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher")
		}
		defer watcher.Stop()
	}

	log.Info().
		Dur("interval", wopts.interval).
		Dur("optimize_interval", wopts.optimizeInterval).
		Str("db_path", a.cfg.DBPath).
		Msg("Starting performance watch")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sampleLoop(gctx, a.monitor, wopts.interval)
		return nil
	})
	if wopts.optimizeInterval > 0 {
		g.Go(func() error {
			optimizeLoop(gctx, a.monitor, wopts.optimizeInterval)
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("Performance watch stopped")
	return err
}

func sampleLoop(ctx context.Context, monitor *perfmon.Monitor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sample(ctx, monitor)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sample(ctx context.Context, monitor *perfmon.Monitor) {
	result := monitor.Handle(ctx, perfmon.Request{Action: string(perfmon.ActionCurrent)})
	if result.Status != perfmon.StatusSuccess {
		log.Warn().Str("error", result.Error).Msg("Sampling failed")
		return
	}
	snap, ok := result.Data.(models.Snapshot)
	if !ok {
		return
	}
	log.Info().
		Float64("cpu", snap.CPU.Overall).
		Float64("memory_pressure", snap.Memory.Pressure).
		Uint64("disk_available", snap.Disk.Available).
		Msg("Recorded snapshot")
}

func optimizeLoop(ctx context.Context, monitor *perfmon.Monitor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		result := monitor.Handle(ctx, perfmon.Request{Action: string(perfmon.ActionOptimize)})
		if result.Status != perfmon.StatusSuccess {
			log.Warn().Str("error", result.Error).Msg("Optimization analysis failed")
			continue
		}
		suggestions, _ := result.Data.([]models.Suggestion)
		for _, s := range suggestions {
			log.Info().
				Str("type", string(s.Type)).
				Str("app", s.App).
				Str("impact", string(s.Impact)).
				Str("command", s.Command).
				Msg(s.Reason)
		}
	}
}
