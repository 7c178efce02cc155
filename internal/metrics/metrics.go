package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "welltest_calculations_total",
			Help: "Derived-column calculations run, by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "welltest_rows_processed_total",
			Help: "Rows that produced a value in a derived-column calculation",
		},
		[]string{"operation"},
	)

	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "welltest_imports_total",
			Help: "Table imports, by source format and outcome",
		},
		[]string{"format", "status"},
	)

	RowsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "welltest_rows_imported_total",
			Help: "Data rows loaded into the editor",
		},
		[]string{"format"},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "welltest_source_fetches_total",
			Help: "Source file fetches, by scheme and outcome",
		},
		[]string{"scheme", "status"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "welltest_source_fetch_latency_seconds",
			Help:    "Source file fetch latency in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	ProjectSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "welltest_project_saves_total",
			Help: "Table saves to the project file, by outcome",
		},
		[]string{"status"},
	)

	APIRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "welltest_api_request_latency_seconds",
			Help:    "HTTP API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Status maps an error to the status label used across counters.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
