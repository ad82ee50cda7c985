package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings created",
	}, []string{"type"})

	BookingStatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_status_updates_total",
		Help: "Total number of booking status updates",
	}, []string{"status"})

	BookingsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_deleted_total",
		Help: "Total number of bookings removed from the store",
	}, []string{"scope"})

	MutationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_mutation_failures_total",
		Help: "Total number of rejected booking writes",
	}, []string{"action"})

	AggregationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_aggregation_latency_seconds",
		Help:    "Latency of fetching and denormalizing a scope of bookings",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})

	LookupFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_lookup_failures_total",
		Help: "Total number of failed user or product lookups",
	}, []string{"kind"})

	DegradedRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_degraded_records_total",
		Help: "Total number of bookings rendered as degraded rows",
	})

	StaleFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_stale_fetches_total",
		Help: "Total number of fetch results discarded because a newer fetch started",
	})

	ExportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_exports_total",
		Help: "Total number of spreadsheet exports",
	})

	LookupCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lookup_cache_hits_total",
		Help: "Total number of lookups served from the cache",
	}, []string{"kind"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
