package main

import (
	"fmt"
	"time"

	"github.com/rcourtman/pulse-perfmon/internal/cache"
	"github.com/rcourtman/pulse-perfmon/internal/config"
	"github.com/rcourtman/pulse-perfmon/internal/hostmetrics"
	"github.com/rcourtman/pulse-perfmon/internal/logging"
	"github.com/rcourtman/pulse-perfmon/internal/metrics"
	"github.com/rcourtman/pulse-perfmon/internal/optimizer"
	"github.com/rcourtman/pulse-perfmon/internal/perfmon"
	"github.com/rcourtman/pulse-perfmon/internal/probe"
	"github.com/rs/zerolog/log"
)

// newProbe builds the OS probe; replaced in tests.
var newProbe = func(cfg *config.Config) probe.Probe {
	return hostmetrics.NewCollector(hostmetrics.Config{
		DiskPath:       cfg.DiskPath,
		SampleInterval: cfg.SampleInterval,
	})
}

// app owns every long-lived component of one CLI invocation.
type app struct {
	cfg     *config.Config
	store   *metrics.Store
	caches  *cache.Registry
	monitor *perfmon.Monitor
}

func openApp(opts *rootOptions) (*app, error) {
	// Baseline logger for configuration errors
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "perfmon"})

	cfg, err := config.Load(opts.dataDir)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "perfmon",
	})

	store, err := metrics.NewStore(storeConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}

	caches := cache.NewRegistry(registryConfig(cfg))
	analyzer := optimizer.New(optimizer.DefaultRules(optimizer.DefaultThresholds(), cfg.ProtectedProcesses)...)
	monitor := perfmon.New(newProbe(cfg), store, caches, analyzer, perfmon.Options{
		ProbeTimeout:         cfg.ProbeTimeout,
		ProcessLimit:         cfg.ProcessLimit,
		OptimizeProcessLimit: cfg.OptimizeProcessLimit,
	})

	log.Debug().
		Str("data_dir", cfg.DataDir).
		Str("db_path", cfg.DBPath).
		Strs("protected", cfg.ProtectedProcesses).
		Msg("Monitor initialized")

	return &app{cfg: cfg, store: store, caches: caches, monitor: monitor}, nil
}

func (a *app) Close() {
	a.caches.Close()
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close metrics store")
	}
}

func storeConfig(cfg *config.Config) metrics.StoreConfig {
	sc := metrics.DefaultConfig(cfg.DataDir)
	sc.DBPath = cfg.DBPath
	sc.Retention = cfg.Retention
	return sc
}

func registryConfig(cfg *config.Config) cache.RegistryConfig {
	rc := cache.DefaultRegistryConfig()
	rc.Metrics = withCacheSettings(rc.Metrics, cfg.MetricsTTL, cfg.CacheMaxKeys)
	rc.Processes = withCacheSettings(rc.Processes, cfg.ProcessesTTL, cfg.CacheMaxKeys)
	rc.Search.TTL = cfg.SearchTTL
	rc.Tags.TTL = cfg.TagsTTL
	return rc
}

func withCacheSettings(c cache.Config, ttl time.Duration, maxKeys int) cache.Config {
	c.TTL = ttl
	c.MaxKeys = maxKeys
	return c
}
