// Package metrics provides Prometheus metrics for a mirror run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one run. A run registers into its own
// registry so the textfile only carries gdmirror series.
type Metrics struct {
	registry *prometheus.Registry

	filesTotal      *prometheus.CounterVec
	bytesDownloaded prometheus.Counter
	foldersTotal    prometheus.Counter
	listPagesTotal  prometheus.Counter
	retriesTotal    *prometheus.CounterVec
	transferSeconds prometheus.Histogram
	lastRunSeconds  prometheus.Gauge
	lastRunSuccess  prometheus.Gauge
}

// New creates and registers the run collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		filesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdmirror_files_total",
				Help: "Files processed, by result",
			},
			[]string{"result"},
		),
		bytesDownloaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gdmirror_bytes_downloaded_total",
				Help: "Bytes written to the local mirror",
			},
		),
		foldersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gdmirror_folders_total",
				Help: "Remote folders mirrored",
			},
		),
		listPagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gdmirror_list_pages_total",
				Help: "Folder listing pages fetched",
			},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdmirror_retries_total",
				Help: "Retried Drive requests, by operation",
			},
			[]string{"operation"},
		),
		transferSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gdmirror_transfer_duration_seconds",
				Help:    "Duration of single file transfers",
				Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
			},
		),
		lastRunSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gdmirror_last_run_duration_seconds",
				Help: "Duration of the last mirror run",
			},
		),
		lastRunSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gdmirror_last_run_success",
				Help: "1 if the last run finished without file failures",
			},
		),
	}
}

// RecordFile counts a per-file result such as "saved" or "failed".
func (m *Metrics) RecordFile(result string, bytes int64) {
	m.filesTotal.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.bytesDownloaded.Add(float64(bytes))
	}
}

// RecordTransfer observes the duration of one file transfer.
func (m *Metrics) RecordTransfer(d time.Duration) {
	m.transferSeconds.Observe(d.Seconds())
}

// RecordFolder counts a mirrored folder.
func (m *Metrics) RecordFolder() {
	m.foldersTotal.Inc()
}

// RecordListPage counts a listing page.
func (m *Metrics) RecordListPage() {
	m.listPagesTotal.Inc()
}

// RecordRetry counts a retried request.
func (m *Metrics) RecordRetry(operation string) {
	m.retriesTotal.WithLabelValues(operation).Inc()
}

// RecordRun sets the run gauges.
func (m *Metrics) RecordRun(d time.Duration, success bool) {
	m.lastRunSeconds.Set(d.Seconds())
	if success {
		m.lastRunSuccess.Set(1)
	} else {
		m.lastRunSuccess.Set(0)
	}
}

// WriteTextfile writes the collectors in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
