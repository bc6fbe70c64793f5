package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "scrubber"

// Event outcomes
const (
	OutcomeScrubbed = "scrubbed"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Metrics holds the collectors of the scrubbing service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal       *prometheus.CounterVec
	remarksTotal      *prometheus.CounterVec
	processingSeconds prometheus.Histogram
	eventBytes        prometheus.Histogram
	compileErrors     prometheus.Counter
	configCacheHits   prometheus.Counter
	configCacheMisses prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Events processed, by outcome.",
			},
			[]string{"outcome"},
		),
		remarksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remarks_total",
				Help:      "Remarks recorded on scrubbed values, by rule and remark type.",
			},
			[]string{"rule", "type"},
		),
		processingSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processing_seconds",
				Help:      "Time spent scrubbing one event.",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
			},
		),
		eventBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_bytes",
				Help:      "Size of incoming event payloads.",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
			},
		),
		compileErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_compile_errors_total",
				Help:      "PII configs that failed to compile cleanly.",
			},
		),
		configCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_cache_hits_total",
				Help:      "Compiled PII config cache hits.",
			},
		),
		configCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_cache_misses_total",
				Help:      "Compiled PII config cache misses.",
			},
		),
	}

	m.registry.MustRegister(
		m.eventsTotal,
		m.remarksTotal,
		m.processingSeconds,
		m.eventBytes,
		m.compileErrors,
		m.configCacheHits,
		m.configCacheMisses,
	)
	return m
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveEvent records one processed event
func (m *Metrics) ObserveEvent(outcome string, size int, seconds float64) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(outcome).Inc()
	m.eventBytes.Observe(float64(size))
	if outcome != OutcomeFailed {
		m.processingSeconds.Observe(seconds)
	}
}

// AddRemarks records remarks counted per rule id and remark type
func (m *Metrics) AddRemarks(rule, remarkType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.remarksTotal.WithLabelValues(rule, remarkType).Add(float64(n))
}

// CompileError records a config that compiled with errors
func (m *Metrics) CompileError() {
	if m == nil {
		return
	}
	m.compileErrors.Inc()
}

// ConfigCache records a lookup in the compiled config cache
func (m *Metrics) ConfigCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.configCacheHits.Inc()
		return
	}
	m.configCacheMisses.Inc()
}
