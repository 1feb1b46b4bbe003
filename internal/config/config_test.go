package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv clears every PERFMON_* variable and runs the test from an empty directory.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvDataDir, EnvDBPath, EnvMetricsTTL, EnvProcessesTTL, EnvSearchTTL, EnvTagsTTL,
		EnvCacheMaxKeys, EnvProbeTimeout, EnvSampleInterval, EnvProcessLimit,
		EnvOptimizeProcessLimit, EnvRetention, EnvDiskPath, EnvLogLevel, EnvLogFormat,
		EnvProtectedProcesses,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "performance.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(dir, ".env"), cfg.EnvFile)
	assert.Equal(t, 5*time.Second, cfg.MetricsTTL)
	assert.Equal(t, 3*time.Second, cfg.ProcessesTTL)
	assert.Equal(t, 300*time.Second, cfg.SearchTTL)
	assert.Equal(t, 600*time.Second, cfg.TagsTTL)
	assert.Equal(t, 1000, cfg.CacheMaxKeys)
	assert.Equal(t, 10*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, time.Second, cfg.SampleInterval)
	assert.Equal(t, 10, cfg.ProcessLimit)
	assert.Equal(t, 20, cfg.OptimizeProcessLimit)
	assert.Zero(t, cfg.Retention)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Empty(t, cfg.ProtectedProcesses)
}

func TestLoadDefaultDataDirUnderHome(t *testing.T) {
	isolateEnv(t)
	home := t.TempDir()
	origHome := homeDir
	homeDir = func() (string, error) { return home, nil }
	t.Cleanup(func() { homeDir = origHome })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".pulse-perfmon"), cfg.DataDir)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvMetricsTTL, "15s")
	t.Setenv(EnvProcessesTTL, "7")
	t.Setenv(EnvRetention, "168h")
	t.Setenv(EnvProcessLimit, "25")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvProtectedProcesses, "systemd, sshd*, ,Xorg")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.MetricsTTL)
	assert.Equal(t, 7*time.Second, cfg.ProcessesTTL)
	assert.Equal(t, 168*time.Hour, cfg.Retention)
	assert.Equal(t, 25, cfg.ProcessLimit)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{"systemd", "sshd*", "Xorg"}, cfg.ProtectedProcesses)
}

func TestLoadEnvFilePrecedence(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PERFMON_METRICS_TTL=20s\nPERFMON_PROCESS_LIMIT=30\n"), 0600))
	require.NoError(t, os.WriteFile(".env", []byte("PERFMON_METRICS_TTL=40s\nPERFMON_TAGS_TTL=1m\n"), 0600))
	t.Setenv(EnvProcessLimit, "5")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, cfg.MetricsTTL, "data dir .env wins over ./.env")
	assert.Equal(t, time.Minute, cfg.TagsTTL, "./.env still fills unset keys")
	assert.Equal(t, 5, cfg.ProcessLimit, "process environment wins over files")
	_, set := os.LookupEnv(EnvMetricsTTL)
	assert.False(t, set, "loading must not mutate the process environment")
}

func TestLoadDataDirFromEnvironment(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvDBPath, filepath.Join(dir, "custom.db"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "custom.db"), cfg.DBPath)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	isolateEnv(t)
	t.Setenv(EnvProbeTimeout, "soon")
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvProbeTimeout)

	isolateEnv(t)
	t.Setenv(EnvCacheMaxKeys, "lots")
	_, err = Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvCacheMaxKeys)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero metrics ttl", func(c *Config) { c.MetricsTTL = 0 }},
		{"negative probe timeout", func(c *Config) { c.ProbeTimeout = -time.Second }},
		{"zero sample interval", func(c *Config) { c.SampleInterval = 0 }},
		{"zero max keys", func(c *Config) { c.CacheMaxKeys = 0 }},
		{"zero process limit", func(c *Config) { c.ProcessLimit = 0 }},
		{"zero optimize limit", func(c *Config) { c.OptimizeProcessLimit = 0 }},
		{"negative retention", func(c *Config) { c.Retention = -time.Hour }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"sample interval equals probe timeout", func(c *Config) { c.SampleInterval = c.ProbeTimeout }},
		{"sample interval exceeds probe timeout", func(c *Config) { c.SampleInterval, c.ProbeTimeout = 5*time.Second, 2*time.Second }},
	}

	require.NoError(t, Default(t.TempDir()).Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsSampleIntervalNotUnderProbeTimeout(t *testing.T) {
	isolateEnv(t)
	t.Setenv(EnvProbeTimeout, "2s")
	t.Setenv(EnvSampleInterval, "3s")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be shorter than probe timeout")
}
