package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfmon_cache_hits_total",
			Help: "Total number of cache lookups served from a live entry",
		},
		[]string{"cache"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfmon_cache_misses_total",
			Help: "Total number of cache lookups that required the producer",
		},
		[]string{"cache"},
	)

	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfmon_cache_evictions_total",
			Help: "Total number of live entries evicted by the key cap",
		},
		[]string{"cache"},
	)
)
