// Package config loads pulse-perfmon settings from the environment and .env files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Environment variables
const (
	EnvDataDir              = "PERFMON_DATA_DIR"
	EnvDBPath               = "PERFMON_DB_PATH"
	EnvMetricsTTL           = "PERFMON_METRICS_TTL"
	EnvProcessesTTL         = "PERFMON_PROCESSES_TTL"
	EnvSearchTTL            = "PERFMON_SEARCH_TTL"
	EnvTagsTTL              = "PERFMON_TAGS_TTL"
	EnvCacheMaxKeys         = "PERFMON_CACHE_MAX_KEYS"
	EnvProbeTimeout         = "PERFMON_PROBE_TIMEOUT"
	EnvSampleInterval       = "PERFMON_SAMPLE_INTERVAL"
	EnvProcessLimit         = "PERFMON_PROCESS_LIMIT"
	EnvOptimizeProcessLimit = "PERFMON_OPTIMIZE_PROCESS_LIMIT"
	EnvRetention            = "PERFMON_RETENTION"
	EnvDiskPath             = "PERFMON_DISK_PATH"
	EnvLogLevel             = "PERFMON_LOG_LEVEL"
	EnvLogFormat            = "PERFMON_LOG_FORMAT"
	EnvProtectedProcesses   = "PERFMON_PROTECTED_PROCESSES"
)

const defaultDataDirName = ".pulse-perfmon"

// Config holds every runtime setting
type Config struct {
	DataDir string
	DBPath  string
	EnvFile string // .env file inside DataDir; watched for changes

	MetricsTTL   time.Duration
	ProcessesTTL time.Duration
	SearchTTL    time.Duration
	TagsTTL      time.Duration
	CacheMaxKeys int

	ProbeTimeout         time.Duration
	SampleInterval       time.Duration
	ProcessLimit         int
	OptimizeProcessLimit int
	DiskPath             string

	Retention time.Duration // 0 keeps history forever

	LogLevel  string
	LogFormat string

	ProtectedProcesses []string // wildcard patterns never targeted by suggestions
}

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		DataDir:              dataDir,
		DBPath:               filepath.Join(dataDir, "performance.db"),
		EnvFile:              filepath.Join(dataDir, ".env"),
		MetricsTTL:           5 * time.Second,
		ProcessesTTL:         3 * time.Second,
		SearchTTL:            300 * time.Second,
		TagsTTL:              600 * time.Second,
		CacheMaxKeys:         1000,
		ProbeTimeout:         10 * time.Second,
		SampleInterval:       time.Second,
		ProcessLimit:         10,
		OptimizeProcessLimit: 20,
		DiskPath:             "/",
		LogLevel:             "info",
		LogFormat:            "auto",
	}
}

var (
	lookupEnv = os.LookupEnv
	homeDir   = os.UserHomeDir
)

// Load resolves the configuration. Precedence, highest first: process
// environment, <data dir>/.env, ./.env, defaults. A non-empty dataDir
// overrides PERFMON_DATA_DIR.
func Load(dataDir string) (*Config, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		if v, ok := lookupEnv(EnvDataDir); ok && strings.TrimSpace(v) != "" {
			dataDir = strings.TrimSpace(v)
		} else if cwdEnv, err := readEnvFile(".env"); err == nil && strings.TrimSpace(cwdEnv[EnvDataDir]) != "" {
			dataDir = strings.TrimSpace(cwdEnv[EnvDataDir])
		}
	}
	if dataDir == "" {
		home, err := homeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, defaultDataDirName)
	}

	cfg := Default(dataDir)

	layers := make([]map[string]string, 0, 2)
	for _, path := range []string{cfg.EnvFile, ".env"} {
		values, err := readEnvFile(path)
		if err != nil {
			return nil, err
		}
		if len(values) > 0 {
			log.Debug().Str("file", path).Int("keys", len(values)).Msg("Loaded environment file")
		}
		layers = append(layers, values)
	}

	lookup := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		for _, layer := range layers {
			if v, ok := layer[key]; ok {
				return v, true
			}
		}
		return "", false
	}

	if err := cfg.apply(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readEnvFile returns the values of a .env file, or nothing if it does not exist.
func readEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

func (c *Config) apply(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDBPath); ok && strings.TrimSpace(v) != "" {
		c.DBPath = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvDiskPath); ok && strings.TrimSpace(v) != "" {
		c.DiskPath = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvLogFormat); ok && strings.TrimSpace(v) != "" {
		c.LogFormat = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvProtectedProcesses); ok {
		c.ProtectedProcesses = splitList(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvMetricsTTL, &c.MetricsTTL},
		{EnvProcessesTTL, &c.ProcessesTTL},
		{EnvSearchTTL, &c.SearchTTL},
		{EnvTagsTTL, &c.TagsTTL},
		{EnvProbeTimeout, &c.ProbeTimeout},
		{EnvSampleInterval, &c.SampleInterval},
		{EnvRetention, &c.Retention},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvCacheMaxKeys, &c.CacheMaxKeys},
		{EnvProcessLimit, &c.ProcessLimit},
		{EnvOptimizeProcessLimit, &c.OptimizeProcessLimit},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", i.key, err)
		}
		*i.dst = parsed
	}

	return nil
}

// parseDuration accepts Go duration syntax ("5s", "1h30m") or whole seconds ("5").
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the monitor cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("database path is required")
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"metrics TTL", c.MetricsTTL},
		{"processes TTL", c.ProcessesTTL},
		{"search TTL", c.SearchTTL},
		{"tags TTL", c.TagsTTL},
		{"probe timeout", c.ProbeTimeout},
		{"sample interval", c.SampleInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.value)
		}
	}
	// CPU and disk reads block for one sample interval inside each probe call.
	if c.SampleInterval >= c.ProbeTimeout {
		return fmt.Errorf("sample interval (%s) must be shorter than probe timeout (%s)", c.SampleInterval, c.ProbeTimeout)
	}

	if c.CacheMaxKeys <= 0 {
		return fmt.Errorf("cache max keys must be positive, got %d", c.CacheMaxKeys)
	}
	if c.ProcessLimit <= 0 {
		return fmt.Errorf("process limit must be positive, got %d", c.ProcessLimit)
	}
	if c.OptimizeProcessLimit <= 0 {
		return fmt.Errorf("optimize process limit must be positive, got %d", c.OptimizeProcessLimit)
	}
	if c.Retention < 0 {
		return fmt.Errorf("retention must not be negative, got %s", c.Retention)
	}

	switch c.LogFormat {
	case "auto", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q (expected auto, json or console)", c.LogFormat)
	}

	return nil
}
