package perfmon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfmon_requests_total",
			Help: "Total number of monitor requests by action and status",
		},
		[]string{"action", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perfmon_request_duration_seconds",
			Help:    "Time spent serving a monitor request",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"action"},
	)

	suggestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfmon_suggestions_total",
			Help: "Total number of optimization suggestions emitted by type",
		},
		[]string{"type"},
	)
)
