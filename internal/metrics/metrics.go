package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh cycle results recorded on the snapshot counter.
const (
	ResultOK           = "ok"
	ResultError        = "error"
	ResultUnauthorized = "unauthorized"
)

// Metrics exposes the monitor's operational metrics for Prometheus
// scraping. All methods are safe on a nil receiver so instrumentation can
// be left unwired in tests.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	snapshotRefreshes   *prometheus.CounterVec
	snapshotDuration    prometheus.Histogram
	sessionRenewals     prometheus.Counter
	streamMessages      *prometheus.CounterVec
	streamDropped       prometheus.Counter
	streamReconnects    prometheus.Counter
	devicesTracked      prometheus.Gauge
	eventLogSize        prometheus.Gauge
}

// New creates a fresh Metrics registry with all monitor metrics
// registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ewm",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests served by the view API",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ewm",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the view API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	snapshotRefreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ewm",
		Name:      "snapshot_refreshes_total",
		Help:      "Count of snapshot refresh cycles by result",
	}, []string{"result"})

	snapshotDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ewm",
		Name:      "snapshot_refresh_duration_seconds",
		Help:      "Duration of snapshot refresh cycles end to end",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	sessionRenewals := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ewm",
		Name:      "session_renewals_total",
		Help:      "Count of re-logins triggered by rejected credentials",
	})

	streamMessages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ewm",
		Name:      "stream_messages_total",
		Help:      "Count of stream messages applied by type",
	}, []string{"type"})

	streamDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ewm",
		Name:      "stream_messages_dropped_total",
		Help:      "Count of stream messages dropped as undecodable",
	})

	streamReconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ewm",
		Name:      "stream_reconnects_total",
		Help:      "Count of reconnect waits entered by the stream client",
	})

	devicesTracked := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ewm",
		Name:      "devices_tracked",
		Help:      "Devices currently held in the reconciled collection",
	})

	eventLogSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ewm",
		Name:      "event_log_size",
		Help:      "Entries currently held in the recent-event log",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		snapshotRefreshes,
		snapshotDuration,
		sessionRenewals,
		streamMessages,
		streamDropped,
		streamReconnects,
		devicesTracked,
		eventLogSize,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		snapshotRefreshes:   snapshotRefreshes,
		snapshotDuration:    snapshotDuration,
		sessionRenewals:     sessionRenewals,
		streamMessages:      streamMessages,
		streamDropped:       streamDropped,
		streamReconnects:    streamReconnects,
		devicesTracked:      devicesTracked,
		eventLogSize:        eventLogSize,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveSnapshotRefresh records one refresh cycle's result and duration.
func (m *Metrics) ObserveSnapshotRefresh(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.snapshotRefreshes.WithLabelValues(result).Inc()
	m.snapshotDuration.Observe(duration.Seconds())
}

// IncSessionRenewal increments the re-login counter.
func (m *Metrics) IncSessionRenewal() {
	if m == nil {
		return
	}
	m.sessionRenewals.Inc()
}

// IncStreamMessage counts one applied stream message of the given type.
func (m *Metrics) IncStreamMessage(msgType string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(msgType).Inc()
}

// IncStreamDropped counts one dropped undecodable message.
func (m *Metrics) IncStreamDropped() {
	if m == nil {
		return
	}
	m.streamDropped.Inc()
}

// IncStreamReconnect counts one reconnect wait.
func (m *Metrics) IncStreamReconnect() {
	if m == nil {
		return
	}
	m.streamReconnects.Inc()
}

// SetDevicesTracked updates the collection size gauge.
func (m *Metrics) SetDevicesTracked(n int) {
	if m == nil {
		return
	}
	m.devicesTracked.Set(float64(n))
}

// SetEventLogSize updates the event log gauge.
func (m *Metrics) SetEventLogSize(n int) {
	if m == nil {
		return
	}
	m.eventLogSize.Set(float64(n))
}

// RegisterSnapshotAge registers a gauge computed from fn at scrape time,
// reporting seconds since the last successful snapshot.
func (m *Metrics) RegisterSnapshotAge(fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ewm",
		Name:      "snapshot_age_seconds",
		Help:      "Seconds since the last successful snapshot refresh",
	}, fn))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
