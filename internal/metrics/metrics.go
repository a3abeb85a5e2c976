// Package metrics registers the Prometheus collectors exported on /api/v1/metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Import outcome labels.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

var (
	importTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_import_total",
		Help: "Total imports by mode and outcome",
	}, []string{"mode", "status"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "larder_import_duration_seconds",
		Help:    "Time to reconcile one import",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"mode"})

	exportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_export_total",
		Help: "Total exports by outcome",
	}, []string{"status"})

	truncationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_import_truncations_total",
		Help: "Imports truncated by a plan limit, by collection",
	}, []string{"collection"})

	syncFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_sync_failures_total",
		Help: "Failures written to the failure ledger, by data type",
	}, []string{"data_type"})

	archiveUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_archive_uploads_total",
		Help: "Backup archive uploads by outcome",
	}, []string{"status"})

	archiveSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "larder_archive_size_bytes",
		Help:    "Compressed size of uploaded backup archives",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

// ObserveImport records one finished import.
func ObserveImport(mode, status string, elapsed time.Duration) {
	importTotal.WithLabelValues(mode, status).Inc()
	importDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveExport records one finished export.
func ObserveExport(status string) {
	exportTotal.WithLabelValues(status).Inc()
}

// IncTruncation records a quota truncation of collection.
func IncTruncation(collection string) {
	truncationsTotal.WithLabelValues(collection).Inc()
}

// IncSyncFailure records a failure ledger entry.
func IncSyncFailure(dataType string) {
	syncFailuresTotal.WithLabelValues(dataType).Inc()
}

// ObserveArchive records one archive upload attempt. size is ignored on failure.
func ObserveArchive(status string, size int64) {
	archiveUploadsTotal.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		archiveSizeBytes.Observe(float64(size))
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
