// Package metrics exposes Prometheus collectors for the import pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "promptvault"

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	filesProcessed    *prometheus.CounterVec
	fileDuration      prometheus.Histogram
	retries           *prometheus.CounterVec
	promptsExtracted  prometheus.Counter
	duplicatesRemoved prometheus.Counter
	promptsStored     *prometheus.CounterVec
	categorizations   *prometheus.CounterVec
	sessions          *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

// New registers the collectors plus Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		filesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Export files processed, by outcome and source.",
		}, []string{"outcome", "source"}),
		fileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_processing_seconds",
			Help:      "Time spent parsing one export file, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_retries_total",
			Help:      "Automatic retries after a recoverable error, by error type.",
		}, []string{"type"}),
		promptsExtracted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_extracted_total",
			Help:      "Prompts extracted before deduplication.",
		}),
		duplicatesRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_deduplicated_total",
			Help:      "Prompts dropped as near-duplicates.",
		}),
		promptsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_stored_total",
			Help:      "Prompts reaching the store step, by result (imported, skipped, failed).",
		}, []string{"result"}),
		categorizations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "categorizations_total",
			Help:      "Categorization lookups, by path (memory, shared, ai, heuristic).",
		}, []string{"path"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_sessions_total",
			Help:      "Finished import sessions, by status.",
		}, []string{"status"}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "import_sessions_active",
			Help:      "Import sessions currently running.",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FileProcessed(outcome, source string, d time.Duration) {
	if m == nil {
		return
	}
	m.filesProcessed.WithLabelValues(outcome, source).Inc()
	m.fileDuration.Observe(d.Seconds())
}

func (m *Metrics) Retry(errType string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(errType).Inc()
}

func (m *Metrics) PromptsExtracted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.promptsExtracted.Add(float64(n))
}

func (m *Metrics) DuplicatesRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicatesRemoved.Add(float64(n))
}

func (m *Metrics) PromptStored(result string) {
	if m == nil {
		return
	}
	m.promptsStored.WithLabelValues(result).Inc()
}

func (m *Metrics) Categorized(path string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.categorizations.WithLabelValues(path).Add(float64(n))
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionFinished(status string) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessions.WithLabelValues(status).Inc()
}
