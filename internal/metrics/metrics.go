package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts cache lookups by cache (address|domain) and result (hit|miss|error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_verifier_cache_lookups_total",
			Help: "Total number of verification cache lookups",
		},
		[]string{"cache", "result"},
	)

	// CacheWrites counts cache writes by cache and result (stored|error).
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_verifier_cache_writes_total",
			Help: "Total number of verification cache writes",
		},
		[]string{"cache", "result"},
	)

	// Verifications counts output records by source (api|addressCache|domainCache|error).
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_verifier_verifications_total",
			Help: "Total number of verified addresses by provenance",
		},
		[]string{"source"},
	)

	// APICalls counts remote verification calls by outcome.
	APICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_verifier_api_calls_total",
			Help: "Total number of remote verification calls",
		},
		[]string{"outcome"},
	)

	// GreylistRetries counts retry attempts after a greylisted response.
	GreylistRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "email_verifier_greylist_retries_total",
			Help: "Total number of greylist retry attempts",
		},
	)

	// SweptEntries counts expired cache entries removed by the sweeper.
	SweptEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "email_verifier_cache_swept_entries_total",
			Help: "Total number of expired cache entries removed",
		},
	)

	// APILatency measures HTTP request latencies of the server host.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "email_verifier_http_latency_seconds",
			Help:    "HTTP endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
