package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laketemp_fetch_total",
			Help: "Total upstream fetches by source and outcome",
		},
		[]string{"source", "status"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "laketemp_fetch_latency_seconds",
			Help:    "Upstream fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	DatasetRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laketemp_dataset_refresh_total",
			Help: "Shared dataset refreshes by result (success, skipped, failed)",
		},
		[]string{"dataset", "result"},
	)

	DatasetInterval = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "laketemp_dataset_interval_seconds",
			Help: "Current refresh interval of each shared dataset",
		},
		[]string{"dataset"},
	)

	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "laketemp_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a per-host request slot",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"host"},
	)

	LakeTemperature = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "laketemp_lake_temperature_celsius",
			Help: "Latest reported water temperature per lake",
		},
		[]string{"entity_id", "source"},
	)

	LakeAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "laketemp_lake_available",
			Help: "1 if the lake sensor is available, 0 otherwise",
		},
		[]string{"entity_id"},
	)
)
