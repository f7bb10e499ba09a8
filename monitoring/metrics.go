// Package monitoring exposes Prometheus metrics and a websocket hub that
// streams service lifecycle events.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 生命周期状态对应的指标值
var lifecycleValues = map[string]float64{
	"uninitialized": 0,
	"initializing":  1,
	"ready":         2,
	"failed":        3,
}

// Metrics 指标收集器
type Metrics struct {
	registry *prometheus.Registry

	classifications  *prometheus.CounterVec
	classifyDuration *prometheus.HistogramVec
	lifecycleState   prometheus.Gauge
	trainingDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewMetrics registers every collector on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubclass_classifications_total",
			Help: "Per-model predictions served, by outcome.",
		}, []string{"method", "model", "outcome"}),
		classifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pubclass_classify_duration_seconds",
			Help:    "Wall-clock time of classify calls.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"method"}),
		lifecycleState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubclass_lifecycle_state",
			Help: "0 uninitialized, 1 initializing, 2 ready, 3 failed.",
		}),
		trainingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pubclass_training_duration_seconds",
			Help:    "Time to train one model slot.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"model", "method"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubclass_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pubclass_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		m.classifications,
		m.classifyDuration,
		m.lifecycleState,
		m.trainingDuration,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SetLifecycleState records the service state; unknown names are ignored.
func (m *Metrics) SetLifecycleState(state string) {
	if v, ok := lifecycleValues[state]; ok {
		m.lifecycleState.Set(v)
	}
}

func (m *Metrics) ObserveTraining(model, method string, d time.Duration) {
	m.trainingDuration.WithLabelValues(model, method).Observe(d.Seconds())
}

func (m *Metrics) ObserveClassification(method, model, outcome string) {
	m.classifications.WithLabelValues(method, model, outcome).Inc()
}

func (m *Metrics) ObserveClassifyDuration(method string, d time.Duration) {
	m.classifyDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
