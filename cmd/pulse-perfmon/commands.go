package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rcourtman/pulse-perfmon/internal/cache"
	"github.com/rcourtman/pulse-perfmon/internal/metrics"
	"github.com/rcourtman/pulse-perfmon/internal/perfmon"
	"github.com/spf13/cobra"
)

var errRequestFailed = errors.New("request failed")

// runRequest executes one monitor request and prints its Result envelope.
func runRequest(cmd *cobra.Command, opts *rootOptions, req perfmon.Request) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.monitor.Handle(cmd.Context(), req)
	if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if result.Status != perfmon.StatusSuccess {
		return fmt.Errorf("%w: %s", errRequestFailed, result.Error)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCurrentCmd(opts *rootOptions) *cobra.Command {
	var metric string
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Sample the machine now and record the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, perfmon.Request{Action: string(perfmon.ActionCurrent), Metric: metric})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "limit output to cpu, memory, disk, network or all")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var timeRange, metric string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recorded snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, perfmon.Request{
				Action:    string(perfmon.ActionHistory),
				TimeRange: timeRange,
				Metric:    metric,
			})
		},
	}
	cmd.Flags().StringVar(&timeRange, "range", metrics.DefaultWindow, "history window: 1h, 24h or 7d")
	cmd.Flags().StringVar(&metric, "metric", "", "metric filter: cpu, memory, disk, network or all")
	return cmd
}

func newProcessesCmd(opts *rootOptions) *cobra.Command {
	var metric string
	cmd := &cobra.Command{
		Use:   "processes",
		Short: "List the busiest processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, perfmon.Request{Action: string(perfmon.ActionProcesses), Metric: metric})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "sort by cpu or memory")
	return cmd
}

func newOptimizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Suggest optimizations for the current machine state",
		Long:  "Suggest optimizations for the current machine state. Suggested commands are never executed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, perfmon.Request{Action: string(perfmon.ActionOptimize)})
		},
	}
}

type statsOutput struct {
	Store  metrics.StoreStats `json:"store"`
	Caches []cache.Stats      `json:"caches"`
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store and cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			storeStats, err := a.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), statsOutput{Store: storeStats, Caches: a.caches.Stats()})
		},
	}
}
