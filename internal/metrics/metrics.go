// Package metrics provides Prometheus metrics for the crawler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the crawler.
type Metrics struct {
	// Table outcomes
	TablesInspected *prometheus.CounterVec
	TablesSkipped   *prometheus.CounterVec // reason: "unchanged" | "not_found" | "timeout" | "fetch_failed"

	// Timing
	InspectDuration  *prometheus.HistogramVec
	FinalizeDuration *prometheus.HistogramVec

	// Run progress
	TablesTotal     *prometheus.GaugeVec
	TablesProcessed *prometheus.GaugeVec
	TablesPerMinute prometheus.Gauge

	// Errors
	WarehouseErrors  *prometheus.CounterVec
	StorageErrors    *prometheus.CounterVec
	CheckpointErrors *prometheus.CounterVec
	RetryAttempts    *prometheus.CounterVec
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "odps_crawler"
	}

	m := &Metrics{
		TablesInspected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tables_inspected_total",
				Help:      "Total number of tables fully inspected",
			},
			[]string{"project"},
		),
		TablesSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tables_skipped_total",
				Help:      "Total number of tables skipped, by reason",
			},
			[]string{"project", "reason"},
		),
		InspectDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inspect_duration_seconds",
				Help:      "Time to inspect one table",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"project"},
		),
		FinalizeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "finalize_duration_seconds",
				Help:      "Time to publish the snapshot artifacts",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
			},
			[]string{"project"},
		),
		TablesTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tables_total",
				Help:      "Number of tables listed for the current run",
			},
			[]string{"project"},
		),
		TablesProcessed: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tables_processed",
				Help:      "Number of tables processed so far in the current run",
			},
			[]string{"project"},
		),
		TablesPerMinute: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tables_per_minute",
				Help:      "Current table processing rate",
			},
		),
		WarehouseErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warehouse_errors_total",
				Help:      "Total number of warehouse fetch errors",
			},
			[]string{"project", "operation"},
		),
		StorageErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of storage write errors",
			},
			[]string{"project", "backend"},
		),
		CheckpointErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkpoint_errors_total",
				Help:      "Total number of checkpoint save errors",
			},
			[]string{"project"},
		),
		RetryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"project", "operation"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncInspected increments the inspected counter.
func (m *Metrics) IncInspected(project string) {
	m.TablesInspected.WithLabelValues(project).Inc()
}

// IncSkipped increments the skipped counter for a reason.
func (m *Metrics) IncSkipped(project, reason string) {
	m.TablesSkipped.WithLabelValues(project, reason).Inc()
}

// ObserveInspectDuration records one table inspection time.
func (m *Metrics) ObserveInspectDuration(project string, seconds float64) {
	m.InspectDuration.WithLabelValues(project).Observe(seconds)
}

// ObserveFinalizeDuration records the snapshot publish time.
func (m *Metrics) ObserveFinalizeDuration(project string, seconds float64) {
	m.FinalizeDuration.WithLabelValues(project).Observe(seconds)
}

// SetProgress updates the run progress gauges.
func (m *Metrics) SetProgress(project string, processed, total float64) {
	m.TablesProcessed.WithLabelValues(project).Set(processed)
	m.TablesTotal.WithLabelValues(project).Set(total)
}

// SetTablesPerMinute sets the current processing rate.
func (m *Metrics) SetTablesPerMinute(rate float64) {
	m.TablesPerMinute.Set(rate)
}

// IncWarehouseErrors increments the warehouse errors counter.
func (m *Metrics) IncWarehouseErrors(project, operation string) {
	m.WarehouseErrors.WithLabelValues(project, operation).Inc()
}

// IncStorageErrors increments the storage errors counter.
func (m *Metrics) IncStorageErrors(project, backend string) {
	m.StorageErrors.WithLabelValues(project, backend).Inc()
}

// IncCheckpointErrors increments the checkpoint errors counter.
func (m *Metrics) IncCheckpointErrors(project string) {
	m.CheckpointErrors.WithLabelValues(project).Inc()
}

// IncRetryAttempts increments the retry attempts counter.
func (m *Metrics) IncRetryAttempts(project, operation string) {
	m.RetryAttempts.WithLabelValues(project, operation).Inc()
}
