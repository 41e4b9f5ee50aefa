// Package metrics counts scan outcomes in a Prometheus registry that can be
// written out as a node exporter textfile once a run finishes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/robert-malhotra/chunkscan/internal/chunking"
	"github.com/robert-malhotra/chunkscan/internal/scan"
)

// Metrics holds the scan metrics.
type Metrics struct {
	registry *prometheus.Registry

	FilesTotal         *prometheus.CounterVec
	FailuresTotal      *prometheus.CounterVec
	VariablesTotal     prometheus.Counter
	BytesScannedTotal  prometheus.Counter
	ExtractionDuration prometheus.Histogram
	ProbeReadDuration  prometheus.Histogram
}

// New creates the metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkscan",
			Name:      "files_total",
			Help:      "Files scanned, by outcome",
		}, []string{"outcome"}),
		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkscan",
			Name:      "failures_total",
			Help:      "Failed files, by reason",
		}, []string{"reason"}),
		VariablesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkscan",
			Name:      "variables_total",
			Help:      "Variable layout facts extracted",
		}),
		BytesScannedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkscan",
			Name:      "scanned_bytes_total",
			Help:      "Total size of the files scanned successfully",
		}),
		ExtractionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chunkscan",
			Name:      "extraction_duration_seconds",
			Help:      "Histogram of per-file extraction durations",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		}),
		ProbeReadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chunkscan",
			Name:      "probe_read_duration_seconds",
			Help:      "Histogram of single-point probe read durations",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records one scan result.
func (m *Metrics) Observe(r scan.Result) {
	m.ExtractionDuration.Observe(r.Elapsed.Seconds())
	if !r.OK() {
		m.FilesTotal.WithLabelValues("failed").Inc()
		m.FailuresTotal.WithLabelValues(chunking.Reason(r.Err.Err)).Inc()
		return
	}
	m.FilesTotal.WithLabelValues("ok").Inc()
	m.BytesScannedTotal.Add(float64(r.Size))
	m.VariablesTotal.Add(float64(len(r.Facts)))
	for _, f := range r.Facts {
		if f.ReadTime.Valid {
			m.ProbeReadDuration.Observe(f.ReadTime.Value.Seconds())
		}
	}
}

// WriteTextfile writes every metric to path in the text exposition format,
// replacing the file atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
