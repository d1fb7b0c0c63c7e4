package metrics

import (
	"sync"
	"time"

	"oqs-hq/chatrelay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// maxModelLabels bounds the distinct model label values. Clients may pass
// any model name, so anything past the limit is aggregated into "other".
const maxModelLabels = 200

// Collector owns every Prometheus metric of the relay.
//
// All methods are safe on a nil *Collector and on a disabled one, so callers
// never have to check whether metrics are configured.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	modelRequests   *prometheus.CounterVec
	degraded        *prometheus.CounterVec
	retries         *prometheus.CounterVec
	heartbeats      *prometheus.CounterVec
	fragments       *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	streamDuration  *prometheus.HistogramVec
	backendUp       *prometheus.GaugeVec
	activeSessions  prometheus.Gauge
	ledgerDropped   prometheus.Counter

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics with registry.
// A nil registry gets a fresh private registry.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "chatrelay"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Copy so defaults do not leak back into the caller's config.
	c := *cfg
	if c.Namespace == "" {
		c.Namespace = config.DefaultMetricsNamespace
	}
	if len(c.DurationBuckets) == 0 {
		c.DurationBuckets = config.DefaultDurationBuckets
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.Namespace,
			Subsystem: c.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.Namespace,
			Subsystem: c.Subsystem,
			Name:      name,
			Help:      help,
			Buckets:   c.DurationBuckets,
		}, labels)
	}

	col := &Collector{
		config:   &c,
		registry: registry,

		requests:        counter("requests_total", "Total chat requests by backend, mode and terminal status", "backend", "mode", "status"),
		requestDuration: histogram("request_duration_seconds", "End-to-end chat request duration in seconds", "backend", "mode"),
		modelRequests:   counter("model_requests_total", "Total chat requests by backend and model", "backend", "model"),
		degraded:        counter("degraded_total", "Degraded outcomes by backend and failure reason", "backend", "reason"),
		retries:         counter("retries_total", "Retried upstream attempts by backend and failure reason", "backend", "reason"),
		heartbeats:      counter("heartbeats_total", "Heartbeat markers written to clients", "backend"),
		fragments:       counter("fragments_total", "Content fragments written to clients", "backend"),
		upstreamLatency: histogram("upstream_latency_seconds", "Latency of upstream calls in seconds", "backend", "operation"),
		streamDuration:  histogram("stream_duration_seconds", "Duration of streamed responses in seconds", "backend"),
		backendUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: c.Namespace,
			Subsystem: c.Subsystem,
			Name:      "backend_up",
			Help:      "Backend health status (1=healthy, 0=unhealthy)",
		}, []string{"backend"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: c.Namespace,
			Subsystem: c.Subsystem,
			Name:      "active_sessions",
			Help:      "Conversation sessions currently held in memory",
		}),
		ledgerDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: c.Namespace,
			Subsystem: c.Subsystem,
			Name:      "ledger_dropped_total",
			Help:      "Ledger records dropped because the write queue was full",
		}),

		cardinalityLimiter: NewCardinalityLimiter(maxModelLabels),
	}

	registry.MustRegister(
		col.requests,
		col.requestDuration,
		col.modelRequests,
		col.degraded,
		col.retries,
		col.heartbeats,
		col.fragments,
		col.upstreamLatency,
		col.streamDuration,
		col.backendUp,
		col.activeSessions,
		col.ledgerDropped,
	)

	return col
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordRequest records one completed chat request.
//
// Parameters:
//   - backend: backend name
//   - model: model that served the request
//   - mode: "once" or "stream"
//   - status: terminal status ("ok", "empty", "degraded", "echo")
//   - duration: wall time of the request
func (c *Collector) RecordRequest(backend, model, mode, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}

	if !c.cardinalityLimiter.Allow(backend + "\x00" + model) {
		model = "other"
	}

	c.requests.WithLabelValues(backend, mode, status).Inc()
	c.requestDuration.WithLabelValues(backend, mode).Observe(duration.Seconds())
	c.modelRequests.WithLabelValues(backend, model).Inc()
}

// RecordDegraded records a degraded outcome and its failure reason
// (e.g. "timeout", "connection", "http:503").
func (c *Collector) RecordDegraded(backend, reason string) {
	if !c.enabled() {
		return
	}
	c.degraded.WithLabelValues(backend, reason).Inc()
}

// RecordRetry records one retried attempt.
func (c *Collector) RecordRetry(backend, reason string) {
	if !c.enabled() {
		return
	}
	c.retries.WithLabelValues(backend, reason).Inc()
}

// RecordHeartbeats adds n written heartbeats.
func (c *Collector) RecordHeartbeats(backend string, n int) {
	if !c.enabled() || n <= 0 {
		return
	}
	c.heartbeats.WithLabelValues(backend).Add(float64(n))
}

// RecordFragments adds n written content fragments.
func (c *Collector) RecordFragments(backend string, n int) {
	if !c.enabled() || n <= 0 {
		return
	}
	c.fragments.WithLabelValues(backend).Add(float64(n))
}

// RecordUpstreamLatency records the latency of an upstream call.
// operation is "complete", "open" or "probe".
func (c *Collector) RecordUpstreamLatency(backend, operation string, latency time.Duration) {
	if !c.enabled() {
		return
	}
	c.upstreamLatency.WithLabelValues(backend, operation).Observe(latency.Seconds())
}

// RecordStreamDuration records how long a stream stayed open.
func (c *Collector) RecordStreamDuration(backend string, d time.Duration) {
	if !c.enabled() {
		return
	}
	c.streamDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// SetBackendUp updates the health gauge of a backend (1=healthy, 0=unhealthy).
func (c *Collector) SetBackendUp(backend string, healthy bool) {
	if !c.enabled() {
		return
	}
	v := 0.0
	if healthy {
		v = 1.0
	}
	c.backendUp.WithLabelValues(backend).Set(v)
}

// SetActiveSessions sets the current number of sessions.
func (c *Collector) SetActiveSessions(n int) {
	if !c.enabled() {
		return
	}
	c.activeSessions.Set(float64(n))
}

// RecordLedgerDropped counts a ledger record dropped on a full queue.
func (c *Collector) RecordLedgerDropped() {
	if !c.enabled() {
		return
	}
	c.ledgerDropped.Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label set may be used: it is already known or the
// limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	_, exists := cl.current[labelSet]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
