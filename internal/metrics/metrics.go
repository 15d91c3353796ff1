package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job metrics
var (
	// JobsTotal tracks completed job runs by connector type and status
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhi_jobs_total",
			Help: "Total number of ingestion jobs by connector type and final status",
		},
		[]string{"enclave_id", "connector_type", "status"},
	)

	// JobDuration tracks job duration from start to terminal state
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nhi_job_duration_seconds",
			Help:    "Job duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"enclave_id", "connector_type"},
	)

	// JobsInProgress tracks currently running jobs
	JobsInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nhi_jobs_in_progress",
			Help: "Number of jobs currently running",
		},
		[]string{"enclave_id"},
	)

	// FetchDuration tracks the source fetch stage duration
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nhi_fetch_duration_seconds",
			Help:    "Connector fetch duration in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"connector_type"},
	)
)

// Pipeline metrics
var (
	// FindingsIngestedTotal tracks raw findings written to the store
	FindingsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhi_findings_ingested_total",
			Help: "Total number of findings recorded",
		},
		[]string{"enclave_id", "source_type"},
	)

	// IdentitiesUpsertedTotal tracks identity resolution outcomes
	IdentitiesUpsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhi_identities_upserted_total",
			Help: "Total number of identity upserts by outcome (created, merged)",
		},
		[]string{"enclave_id", "outcome"},
	)

	// UnresolvedFindingsTotal tracks findings that could not be resolved
	UnresolvedFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhi_unresolved_findings_total",
			Help: "Total number of findings skipped during resolution",
		},
		[]string{"enclave_id", "source_type"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal tracks HTTP requests by method, path and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhi_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nhi_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)
