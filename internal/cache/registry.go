package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rcourtman/pulse-perfmon/internal/models"
)

// Cache names
const (
	NameMetrics   = "metrics"
	NameProcesses = "processes"
	NameSearch    = "search"
	NameTags      = "tags"
)

// RegistryConfig configures every logical cache
type RegistryConfig struct {
	Metrics   Config
	Processes Config
	Search    Config
	Tags      Config
}

// DefaultRegistryConfig returns the standard freshness windows per data class.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Metrics:   Config{Name: NameMetrics, TTL: 5 * time.Second, CheckPeriod: 10 * time.Second},
		Processes: Config{Name: NameProcesses, TTL: 3 * time.Second, CheckPeriod: 5 * time.Second},
		Search:    Config{Name: NameSearch, TTL: 300 * time.Second, CheckPeriod: 60 * time.Second, MaxKeys: 500},
		Tags:      Config{Name: NameTags, TTL: 600 * time.Second, CheckPeriod: 120 * time.Second, MaxKeys: 2000},
	}
}

// Registry holds the independently configured cache instances. Search and
// Tags serve the file-search subsystem and share the same abstraction.
type Registry struct {
	Metrics   *Cache[models.Snapshot]
	Processes *Cache[[]models.ProcessInfo]
	Search    *Cache[json.RawMessage]
	Tags      *Cache[[]string]
}

// NewRegistry builds every cache from cfg.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		Metrics:   New[models.Snapshot](withName(cfg.Metrics, NameMetrics)),
		Processes: New[[]models.ProcessInfo](withName(cfg.Processes, NameProcesses)),
		Search:    New[json.RawMessage](withName(cfg.Search, NameSearch)),
		Tags:      New[[]string](withName(cfg.Tags, NameTags)),
	}
}

func withName(cfg Config, name string) Config {
	if cfg.Name == "" {
		cfg.Name = name
	}
	return cfg
}

// Start launches the janitor of every cache.
func (r *Registry) Start(ctx context.Context) {
	r.Metrics.Start(ctx)
	r.Processes.Start(ctx)
	r.Search.Start(ctx)
	r.Tags.Start(ctx)
}

// Close stops every janitor.
func (r *Registry) Close() {
	r.Metrics.Close()
	r.Processes.Close()
	r.Search.Close()
	r.Tags.Close()
}

// Flush empties every cache.
func (r *Registry) Flush() {
	r.Metrics.Flush()
	r.Processes.Flush()
	r.Search.Flush()
	r.Tags.Flush()
}

// Stats returns counters for every cache in a stable order.
func (r *Registry) Stats() []Stats {
	return []Stats{
		r.Metrics.Stats(),
		r.Processes.Stats(),
		r.Search.Stats(),
		r.Tags.Stats(),
	}
}
