package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Acquisition Metrics
var (
	// AcquisitionRequestsTotal tracks upstream requests by source and status
	AcquisitionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_requests_total",
			Help: "Total upstream acquisition requests by source and status (ok/http_error/network_error/breaker_open)",
		},
		[]string{"source", "status"},
	)

	// AcquisitionDuration tracks upstream request latency in seconds
	AcquisitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acquisition_request_duration_seconds",
			Help:    "Upstream acquisition request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	// AcquisitionRetriesTotal tracks retry attempts by source
	AcquisitionRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_retries_total",
			Help: "Total acquisition retry attempts by source",
		},
		[]string{"source"},
	)

	// AcquisitionCacheFallbacks tracks runs served from the local post cache
	AcquisitionCacheFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_cache_fallbacks_total",
			Help: "Total acquisitions served from the local post cache after an upstream failure",
		},
		[]string{"source"},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by source and new state",
		},
		[]string{"source", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)
)

// Workflow Metrics
var (
	// WorkflowRunsTotal tracks pipeline workflow executions by workflow and result
	WorkflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_runs_total",
			Help: "Total workflow executions by workflow and result (ok/partial/error)",
		},
		[]string{"workflow", "result"},
	)

	// WorkflowDuration tracks end-to-end workflow duration in seconds
	WorkflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_duration_seconds",
			Help:    "End-to-end workflow duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"workflow"},
	)

	// AnalysisFailuresTotal tracks analysis step failures by component and error type
	AnalysisFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_failures_total",
			Help: "Total analysis step failures by component and error type",
		},
		[]string{"component", "type"},
	)

	// ArtifactsWrittenTotal tracks artifacts written by kind
	ArtifactsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifacts_written_total",
			Help: "Total report artifacts written by kind (csv/png/json)",
		},
		[]string{"kind"},
	)
)

// Report Cache Metrics
var (
	// ReportCacheHits tracks dashboard report cache hits
	ReportCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_cache_hits_total",
			Help: "Total number of dashboard report cache hits",
		},
	)

	// ReportCacheMisses tracks dashboard report cache misses
	ReportCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_cache_misses_total",
			Help: "Total number of dashboard report cache misses",
		},
	)

	// ReportCacheSize tracks current number of entries in the report cache
	ReportCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "report_cache_entries",
			Help: "Current number of entries in the dashboard report cache",
		},
	)

	// ReportCacheEvictions tracks number of expired report cache entries evicted
	ReportCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_cache_evictions_total",
			Help: "Total number of expired report cache entries evicted",
		},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

// HTTP Error Metrics
// Note: http_errors_total{type} is provided by internal/errors package
