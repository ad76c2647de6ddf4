package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for pi-exthost metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	hostcallsTotal *prometheus.CounterVec
	eventsTotal    *prometheus.CounterVec
	vfsOpsTotal    *prometheus.CounterVec
	sessionAppends prometheus.Counter
	sessionBytes   prometheus.Counter

	dispatchDuration *prometheus.HistogramVec

	uptime prometheus.GaugeFunc
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		hostcallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hostcalls_total",
				Help:      "Total hostcall operations by operation name and result",
			},
			[]string{"operation", "result"},
		),

		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dispatched_total",
				Help:      "Total events dispatched by event name",
			},
			[]string{"event"},
		),

		vfsOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vfs_ops_total",
				Help:      "Total virtual filesystem operations by kind",
			},
			[]string{"kind"},
		),

		sessionAppends: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_store_appends_total",
				Help:      "Total session-store append operations",
			},
		),

		sessionBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_store_append_bytes_total",
				Help:      "Total bytes appended to the session store",
			},
		),

		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_dispatch_duration_milliseconds",
				Help:      "Duration of event dispatch fan-out in milliseconds",
				Buckets:   buckets,
			},
			[]string{"event"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since pi-exthost started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.hostcallsTotal,
		pm.eventsTotal,
		pm.vfsOpsTotal,
		pm.sessionAppends,
		pm.sessionBytes,
		pm.dispatchDuration,
		pm.uptime,
	)

	promMetrics = pm
}

// RecordPrometheusHostcall records a hostcall operation result.
func RecordPrometheusHostcall(operation string, failed bool) {
	if promMetrics == nil {
		return
	}
	result := "success"
	if failed {
		result = "failed"
	}
	promMetrics.hostcallsTotal.WithLabelValues(operation, result).Inc()
}

// RecordPrometheusEventDispatch records an event dispatch and its latency.
func RecordPrometheusEventDispatch(eventName string, latencyMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.eventsTotal.WithLabelValues(eventName).Inc()
	promMetrics.dispatchDuration.WithLabelValues(eventName).Observe(float64(latencyMs))
}

// RecordPrometheusVFSOp records a VFS operation by kind.
func RecordPrometheusVFSOp(kind string) {
	if promMetrics == nil {
		return
	}
	promMetrics.vfsOpsTotal.WithLabelValues(kind).Inc()
}

// RecordPrometheusSessionAppend records a session-store append and its byte
// size.
func RecordPrometheusSessionAppend(bytes int) {
	if promMetrics == nil {
		return
	}
	promMetrics.sessionAppends.Inc()
	promMetrics.sessionBytes.Add(float64(bytes))
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics
// scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom
// collectors).
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
