package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by route, method and status class
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration tracks HTTP request processing time
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portfolio_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// PriceLookupsTotal counts price oracle lookups by outcome
	PriceLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_price_lookups_total",
			Help: "Total number of price oracle lookups",
		},
		[]string{"outcome"},
	)

	// PriceLookupDuration tracks price oracle round trip time
	PriceLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portfolio_price_lookup_duration_seconds",
			Help:    "Price oracle lookup duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	// SnapshotsWritten counts daily snapshots written by trigger
	SnapshotsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_snapshots_written_total",
			Help: "Total number of daily snapshots written",
		},
		[]string{"trigger"},
	)

	// SnapshotRunDuration tracks how long a full snapshot run takes
	SnapshotRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portfolio_snapshot_run_duration_seconds",
			Help:    "Full snapshot run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
