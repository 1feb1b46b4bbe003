package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "perfmon_store_appends_total",
			Help: "Total number of snapshots appended to the metrics store",
		},
	)

	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfmon_store_errors_total",
			Help: "Total number of failed metrics store operations by operation",
		},
		[]string{"op"},
	)
)
