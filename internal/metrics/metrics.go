package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store holds the Prometheus metrics collectors.
type Store struct {
	Registry          *prometheus.Registry // Use a custom registry
	SyncRunning       prometheus.Gauge
	SyncDuration      prometheus.Histogram
	PhaseDuration     *prometheus.HistogramVec
	RowsLoadedTotal   *prometheus.CounterVec
	RowsDumpedTotal   *prometheus.CounterVec
	DumpFilesWritten  prometheus.Counter
	DumpBytesWritten  prometheus.Counter
	FilesAppliedTotal prometheus.Counter
	ApplyDuration     *prometheus.HistogramVec
	SyncErrorsTotal   *prometheus.CounterVec
}

// NewMetricsStore creates and registers Prometheus metrics.
func NewMetricsStore() *Store {
	registry := prometheus.NewRegistry() // non-global registry

	return &Store{
		Registry: registry,
		SyncRunning: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "d1sync_up",
			Help: "Indicates if a sync run is currently in progress (1 = running, 0 = not running).",
		}),
		SyncDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "d1sync_run_duration_seconds",
			Help:    "Duration of the entire sync run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~9h
		}),
		PhaseDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "d1sync_phase_duration_seconds",
			Help:    "Duration histogram per sync phase.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
		}, []string{"phase"}), // Phases: load, dump, apply
		RowsLoadedTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "d1sync_rows_loaded_total",
			Help: "Rows materialized into the local snapshot store, labeled by table.",
		}, []string{"table"}),
		RowsDumpedTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "d1sync_rows_dumped_total",
			Help: "Rows serialized into unit-of-work files, labeled by table.",
		}, []string{"table"}),
		DumpFilesWritten: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "d1sync_dump_files_written_total",
			Help: "Unit-of-work files written to the dump directory.",
		}),
		DumpBytesWritten: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "d1sync_dump_bytes_written_total",
			Help: "Bytes written across all unit-of-work files.",
		}),
		FilesAppliedTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "d1sync_files_applied_total",
			Help: "Unit-of-work files successfully executed against the remote target.",
		}),
		ApplyDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "d1sync_apply_file_duration_seconds",
			Help:    "Duration histogram for executing individual unit-of-work files.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"file"}),
		SyncErrorsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "d1sync_errors_total",
			Help: "Errors encountered during sync, labeled by error category and phase.",
		}, []string{"category", "phase"}), // Categories: precondition, connectivity, schema, apply, internal
	}
}
