package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsRejected *prometheus.CounterVec
	DegradedTotal    prometheus.Counter

	// Operation metrics
	OperationCalls    *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	startTime time.Time
	gatherer  prometheus.Gatherer

	// Snapshot for the JSON status API
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON status API
type Snapshot struct {
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	ActiveSessions  int64   `json:"active_sessions"`
	CreatedSessions int64   `json:"created_sessions"`
	RejectedTotal   int64   `json:"rejected_sessions"`
	DegradedTotal   int64   `json:"degraded_sessions"`
	AvgDurationMs   float64 `json:"avg_request_ms"`
	UptimeSeconds   float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates metrics registered with the default Prometheus registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewRegistryMetrics creates metrics on a fresh registry
func NewRegistryMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWith(reg, reg)
}

// NewMetricsWith creates metrics registered with reg and exposed through g
func NewMetricsWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		gatherer:  g,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iosdriver_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iosdriver_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iosdriver_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iosdriver_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "iosdriver_sessions_active",
				Help: "Number of live automation sessions",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "iosdriver_sessions_created_total",
				Help: "Total number of sessions constructed",
			},
		),
		SessionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iosdriver_sessions_rejected_total",
				Help: "Total number of session requests rejected at construction",
			},
			[]string{"reason"},
		),
		DegradedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "iosdriver_session_driver_degraded_total",
				Help: "Sessions started without a native driver",
			},
		),

		OperationCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iosdriver_operation_calls_total",
				Help: "Total number of session operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iosdriver_operation_duration_seconds",
				Help:    "Session operation duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "iosdriver_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Gatherer returns the registry the metrics are exposed from
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOperation records a session operation
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	m.OperationCalls.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SessionCreated counts a constructed session
func (m *Metrics) SessionCreated() {
	m.SessionsCreated.Inc()
	m.mu.Lock()
	m.snapshot.CreatedSessions++
	m.mu.Unlock()
}

// SessionRejected counts a session request refused at construction
func (m *Metrics) SessionRejected(reason string) {
	m.SessionsRejected.WithLabelValues(reason).Inc()
	m.mu.Lock()
	m.snapshot.RejectedTotal++
	m.mu.Unlock()
}

// DriverDegraded counts a session started without a native driver
func (m *Metrics) DriverDegraded() {
	m.DegradedTotal.Inc()
	m.mu.Lock()
	m.snapshot.DegradedTotal++
	m.mu.Unlock()
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}
