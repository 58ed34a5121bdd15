// Package metrics exposes Prometheus metrics for uploads, HTTP traffic and
// rate limiting.
//
// Metrics are registered on a registry owned by the Metrics value rather
// than the global default registerer, so several servers (and tests) can
// live in one process.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the metrics set.
type Config struct {
	// Namespace is the metrics namespace (default: "depot").
	Namespace string

	// Buckets are the histogram buckets for durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// RuntimeCollectors adds the Go runtime and process collectors.
	RuntimeCollectors bool
}

// Option configures the metrics set.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRuntimeCollectors enables or disables the Go and process collectors.
func WithRuntimeCollectors(enabled bool) Option {
	return func(c *Config) {
		c.RuntimeCollectors = enabled
	}
}

func defaultConfig() Config {
	return Config{
		Namespace:         "depot",
		Buckets:           prometheus.DefBuckets,
		RuntimeCollectors: true,
	}
}

// Metrics holds the application's collectors.
type Metrics struct {
	registry *prometheus.Registry

	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimited    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	registry := prometheus.NewRegistry()
	if config.RuntimeCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "uploads_total",
			Help:      "Upload attempts by outcome",
		}, []string{"outcome"}),

		uploadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "upload_duration_seconds",
			Help:      "Time spent validating and storing an upload",
			Buckets:   config.Buckets,
		}, []string{"outcome"}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code",
		}, []string{"method", "status"}),

		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   config.Buckets,
		}, []string{"method"}),

		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit",
		}, []string{"limit"}),
	}
}

// ObserveUpload records the outcome of one upload attempt.
func (m *Metrics) ObserveUpload(outcome string, duration time.Duration) {
	m.uploadsTotal.WithLabelValues(outcome).Inc()
	m.uploadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRateLimited records a request rejected by the named limit.
func (m *Metrics) ObserveRateLimited(limit string) {
	m.rateLimited.WithLabelValues(limit).Inc()
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
