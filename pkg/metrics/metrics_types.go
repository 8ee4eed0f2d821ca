package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every metric the client exports
const namespace = "kvclient"

// Registry holds all metrics for the client
type Registry struct {
	// Topology Metrics
	TopologyRefreshesTotal       *prometheus.CounterVec
	TopologyRefreshDuration      prometheus.Histogram
	TopologyCandidateErrorsTotal *prometheus.CounterVec
	TopologyNodesTotal           prometheus.Gauge
	TopologyMastersTotal         prometheus.Gauge
	TopologyReplicasTotal        prometheus.Gauge
	TopologySlotsCovered         prometheus.Gauge
	TopologyCacheHitsTotal       prometheus.Counter
	TopologyLastRefreshUnix      prometheus.Gauge

	// Routing Metrics
	RoutingLookupsTotal *prometheus.CounterVec

	// Connection Pool Metrics
	PoolActiveConnections    *prometheus.GaugeVec
	PoolIdleConnections      *prometheus.GaugeVec
	PoolBorrowsTotal         *prometheus.CounterVec
	PoolBorrowWaitDuration   prometheus.Histogram
	PoolConnectionsCreated   prometheus.Counter
	PoolConnectionsDestroyed prometheus.Counter

	// Executor Metrics
	ExecutorCommandsTotal      *prometheus.CounterVec
	ExecutorCommandDuration    *prometheus.HistogramVec
	ExecutorRedirectsTotal     *prometheus.CounterVec
	ExecutorRedirectsExhausted prometheus.Counter
	ExecutorTasksInFlight      prometheus.Gauge
	ExecutorBatchFanout        prometheus.Histogram
	NodeErrorsTotal            *prometheus.CounterVec

	// Transport Metrics
	TransportConnectsTotal    *prometheus.CounterVec
	TransportHandshakesTotal  *prometheus.CounterVec
	TransportRequestsTotal    *prometheus.CounterVec
	TransportBytesSent        prometheus.Counter
	TransportBytesReceived    prometheus.Counter
	TransportFramesCompressed prometheus.Counter

	// Journal Metrics
	JournalEventsTotal     *prometheus.CounterVec
	JournalDroppedTotal    prometheus.Counter
	JournalSinkErrorsTotal prometheus.Counter

	// HTTP Metrics (ops endpoint)
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	// Initialize all metrics
	r.initTopologyMetrics()
	r.initRoutingMetrics()
	r.initPoolMetrics()
	r.initExecutorMetrics()
	r.initTransportMetrics()
	r.initJournalMetrics()
	r.initHTTPMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Registration builders. Names are given without the namespace; the
// builders qualify and register against the instance registry.

func (r *Registry) counter(name, help string) prometheus.Counter {
	return promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
}

func (r *Registry) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func (r *Registry) gauge(name, help string) prometheus.Gauge {
	return promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

func (r *Registry) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func (r *Registry) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets})
}

func (r *Registry) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
}
