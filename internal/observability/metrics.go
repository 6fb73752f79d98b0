package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forecast"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingest pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunsCompleted   *prometheus.CounterVec // labels: outcome={complete,partial,failed}
	LastImportedRun prometheus.Gauge

	// Fetch metrics.
	FilesFetched     *prometheus.CounterVec // labels: result={downloaded,skipped,failed}
	DownloadBytes    prometheus.Counter
	DownloadDuration prometheus.Histogram

	// Extract and import metrics.
	ExtractErrors       prometheus.Counter
	CellLookups         *prometheus.CounterVec // labels: result={hit,miss}
	RecordsImported     prometheus.Counter
	ImportBatchDuration prometheus.Histogram
	RetentionDeletions  *prometheus.CounterVec // labels: kind={files,rows}
	QueryRequests       *prometheus.CounterVec // labels: kind={coordinate,place}, outcome={ok,not_found,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunsCompleted,
		m.LastImportedRun,
		m.FilesFetched,
		m.DownloadBytes,
		m.DownloadDuration,
		m.ExtractErrors,
		m.CellLookups,
		m.RecordsImported,
		m.ImportBatchDuration,
		m.RetentionDeletions,
		m.QueryRequests,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the scheduler is active, 0 when shut down.",
		}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Model runs processed by outcome.",
		}, []string{"outcome"}),
		LastImportedRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_imported_run_timestamp_seconds",
			Help:      "Issuance time of the most recently imported run.",
		}),
		FilesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_fetched_total",
			Help:      "Grid files handled by the fetcher by result.",
		}, []string{"result"}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Decompressed bytes written by the fetcher.",
		}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of a single grid file download.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ExtractErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_errors_total",
			Help:      "Grid files skipped because they could not be decoded.",
		}),
		CellLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cell_lookup_cache_total",
			Help:      "Grid point to cell cache lookups by result.",
		}, []string{"result"}),
		RecordsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_imported_total",
			Help:      "Forecast records upserted into the tile store.",
		}),
		ImportBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_batch_duration_seconds",
			Help:      "Duration of one upsert batch.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		RetentionDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deletions_total",
			Help:      "Expired run directories and forecast rows removed.",
		}, []string{"kind"}),
		QueryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_requests_total",
			Help:      "Weather queries by lookup kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}
