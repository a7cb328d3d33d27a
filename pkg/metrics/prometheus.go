package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pr_sentinel"

// PrometheusCollector implements the MetricsCollector interface using Prometheus
type PrometheusCollector struct {
	factory    promauto.Factory
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusCollector creates a collector whose series are registered on reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	collector := &PrometheusCollector{
		factory:    promauto.With(reg),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}

	collector.initializeMetrics()

	return collector
}

func (p *PrometheusCollector) initializeMetrics() {
	// HTTP request metrics
	p.RegisterCustomCounter("http_requests_total", "Total number of HTTP requests",
		[]string{"method", "endpoint", "status_code"})
	p.RegisterCustomHistogram("http_request_duration_seconds", "HTTP request duration in seconds",
		[]string{"method", "endpoint", "status_code"}, nil)

	// Upstream API metrics
	p.RegisterCustomCounter("github_requests_total", "Total number of GitHub API requests",
		[]string{"operation", "status"})
	p.RegisterCustomHistogram("github_request_duration_seconds", "GitHub API request duration in seconds",
		[]string{"operation"}, []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0})
	p.RegisterCustomCounter("claude_requests_total", "Total number of Claude API requests",
		[]string{"operation", "status"})
	p.RegisterCustomHistogram("claude_request_duration_seconds", "Claude API request duration in seconds",
		[]string{"operation"}, []float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0})

	// Poller metrics
	p.RegisterCustomCounter("poll_repository_total", "Repository poll attempts by outcome",
		[]string{"repository", "status"})
	p.RegisterCustomHistogram("poll_cycle_duration_seconds", "Duration of a full poll cycle in seconds",
		[]string{}, []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0})
	p.RegisterCustomCounter("pr_changes_total", "Pull request changes detected by the poller",
		[]string{"repository", "type"})
	p.RegisterCustomGauge("tracked_pull_requests", "Open pull requests held in the seen-PR ledger",
		[]string{})
	p.RegisterCustomGauge("monitored_repositories", "Repositories watched by the poller",
		[]string{})

	// Webhook metrics
	p.RegisterCustomCounter("webhook_events_total", "Webhook deliveries by event type and outcome",
		[]string{"event_type", "outcome"})

	// Review processing metrics
	p.RegisterCustomCounter("reviews_total", "Pull request reviews by outcome",
		[]string{"status", "error_code"})
	p.RegisterCustomHistogram("review_duration_seconds", "End-to-end review duration in seconds",
		[]string{"status"}, []float64{1.0, 5.0, 10.0, 30.0, 60.0, 120.0})
	p.RegisterCustomHistogram("review_phase_duration_seconds", "Duration of each review phase in seconds",
		[]string{"phase"}, []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0})
	p.RegisterCustomCounter("diff_fetch_retries_total", "Diff fetch attempts that were retried",
		[]string{})

	// Worker metrics
	p.RegisterCustomCounter("worker_jobs_total", "Worker jobs by outcome",
		[]string{"outcome"})
	p.RegisterCustomGauge("worker_queue_depth", "Jobs waiting in the worker queue",
		[]string{})

	// Bus metrics
	p.RegisterCustomCounter("bus_handler_panics_total", "Subscriber panics recovered by the notification bus",
		[]string{"topic"})

	// Database metrics
	p.RegisterCustomCounter("db_queries_total", "Review store operations by outcome",
		[]string{"operation", "status"})
	p.RegisterCustomHistogram("db_query_duration_seconds", "Review store operation duration in seconds",
		[]string{"operation"}, []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0})

	// Circuit breaker metrics
	p.RegisterCustomGauge("circuit_breaker_state", "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		[]string{"name"})
	p.RegisterCustomCounter("circuit_breaker_events_total", "Total circuit breaker state transitions",
		[]string{"name", "to"})
}

// IncrementCounter increments a counter metric. Unknown names and label sets
// that do not match the registered ones are ignored.
func (p *PrometheusCollector) IncrementCounter(name string, labels map[string]string) {
	counter, exists := p.counters[name]
	if !exists {
		return
	}

	c, err := counter.GetMetricWith(labels)
	if err != nil {
		return
	}
	c.Inc()
}

// RecordDuration records a duration in a histogram
func (p *PrometheusCollector) RecordDuration(name string, duration float64, labels map[string]string) {
	histogram, exists := p.histograms[name]
	if !exists {
		return
	}

	h, err := histogram.GetMetricWith(labels)
	if err != nil {
		return
	}
	h.Observe(duration)
}

// SetGauge sets a gauge value
func (p *PrometheusCollector) SetGauge(name string, value float64, labels map[string]string) {
	gauge, exists := p.gauges[name]
	if !exists {
		return
	}

	g, err := gauge.GetMetricWith(labels)
	if err != nil {
		return
	}
	g.Set(value)
}

// RegisterCustomCounter registers a new counter metric
func (p *PrometheusCollector) RegisterCustomCounter(name, help string, labels []string) {
	if _, exists := p.counters[name]; exists {
		return
	}

	p.counters[name] = p.factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// RegisterCustomHistogram registers a new histogram metric
func (p *PrometheusCollector) RegisterCustomHistogram(name, help string, labels []string, buckets []float64) {
	if _, exists := p.histograms[name]; exists {
		return
	}

	if buckets == nil {
		buckets = prometheus.DefBuckets
	}

	p.histograms[name] = p.factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// RegisterCustomGauge registers a new gauge metric
func (p *PrometheusCollector) RegisterCustomGauge(name, help string, labels []string) {
	if _, exists := p.gauges[name]; exists {
		return
	}

	p.gauges[name] = p.factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}
