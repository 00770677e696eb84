package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exports. All Record methods
// are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Mailbox sync
	SyncRunsTotal    *prometheus.CounterVec
	SyncDuration     prometheus.Histogram
	MessagesImported prometheus.Counter
	MessagesSkipped  prometheus.Counter
	MessagesFailed   prometheus.Counter

	// Extraction
	ExtractionRunsTotal     *prometheus.CounterVec
	ExtractionFailuresTotal *prometheus.CounterVec
	TasksCreated            prometheus.Counter
	NotesCreated            prometheus.Counter

	// Errors
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// Rate limiting
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		SyncRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_sync_runs_total",
				Help: "Mailbox sync runs by outcome",
			},
			[]string{"outcome"},
		),

		SyncDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assistant_sync_duration_seconds",
				Help:    "Mailbox sync duration in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),

		MessagesImported: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assistant_messages_imported_total",
				Help: "Messages stored by mailbox sync",
			},
		),

		MessagesSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assistant_messages_skipped_total",
				Help: "Messages skipped because they were already stored",
			},
		),

		MessagesFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assistant_messages_failed_total",
				Help: "Messages that could not be fetched, parsed or stored",
			},
		),

		ExtractionRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_extraction_runs_total",
				Help: "Successful extraction runs by generator",
			},
			[]string{"generator"},
		),

		ExtractionFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_extraction_failures_total",
				Help: "Generator failures by generator and category",
			},
			[]string{"generator", "category"},
		),

		TasksCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assistant_tasks_created_total",
				Help: "Tasks created from email analysis",
			},
		),

		NotesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assistant_notes_created_total",
				Help: "Notes created from email analysis",
			},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assistant_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_rate_limit_blocks_total",
				Help: "Requests rejected by rate limiting",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordSync records one sync run. outcome is "ok" or an error category.
func (m *Metrics) RecordSync(outcome string, duration time.Duration, imported, skipped, failed int) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(outcome).Inc()
	m.SyncDuration.Observe(duration.Seconds())
	m.MessagesImported.Add(float64(imported))
	m.MessagesSkipped.Add(float64(skipped))
	m.MessagesFailed.Add(float64(failed))
}

// RecordExtraction records a successful analysis and what it created.
func (m *Metrics) RecordExtraction(generator string, tasks, notes int) {
	if m == nil {
		return
	}
	m.ExtractionRunsTotal.WithLabelValues(generator).Inc()
	m.TasksCreated.Add(float64(tasks))
	m.NotesCreated.Add(float64(notes))
}

// RecordExtractionFailure records a generator failure.
func (m *Metrics) RecordExtractionFailure(generator, category string) {
	if m == nil {
		return
	}
	m.ExtractionFailuresTotal.WithLabelValues(generator, category).Inc()
}

// RecordError records an error by type and component.
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic records a recovered panic.
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock records a rejected request.
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// HTTPHandler serves this registry in the Prometheus text format.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
