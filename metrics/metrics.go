package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tutortoise/defect-classification-service/classification"
)

// PoolSource returns current session pool stats, or false before the model
// has been loaded.
type PoolSource func() (classification.PoolStats, bool)

type Metrics struct {
	registry          *prometheus.Registry
	requestCount      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	inferenceDuration prometheus.Histogram
	predictions       *prometheus.CounterVec
	failures          *prometheus.CounterVec
}

func New(pool PoolSource) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			}, []string{"path", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"path"},
		),
		inferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_duration_seconds",
			Help:    "Duration of model forward passes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictions_total",
				Help: "Predictions served, by label",
			}, []string{"label"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_failures_total",
				Help: "Failed predictions, by failing stage",
			}, []string{"kind"},
		),
	}

	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.inferenceDuration,
		m.predictions,
		m.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if pool != nil {
		m.registerPool(pool)
	}
	return m
}

func (m *Metrics) registerPool(pool PoolSource) {
	gauge := func(name, help string, value func(classification.PoolStats) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			stats, ok := pool()
			if !ok {
				return 0
			}
			return value(stats)
		})
	}

	m.registry.MustRegister(
		gauge("session_pool_size", "Number of inference sessions",
			func(s classification.PoolStats) float64 { return float64(s.Size) }),
		gauge("session_pool_in_use", "Inference sessions currently in use",
			func(s classification.PoolStats) float64 { return float64(s.InUse) }),
		gauge("session_pool_acquired_total", "Sessions acquired since load",
			func(s classification.PoolStats) float64 { return float64(s.TotalAcquired) }),
		gauge("session_pool_acquire_failures_total", "Session acquisitions that timed out or were cancelled",
			func(s classification.PoolStats) float64 { return float64(s.AcquireFailures) }),
		gauge("session_pool_wait_seconds_total", "Cumulative time spent waiting for a session",
			func(s classification.PoolStats) float64 { return s.WaitTime.Seconds() }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "model_loaded",
			Help: "1 once the model has been loaded",
		}, func() float64 {
			if _, ok := pool(); ok {
				return 1
			}
			return 0
		}),
	)
}

func (m *Metrics) ObserveRequest(path, method string, status int, took time.Duration) {
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path).Observe(took.Seconds())
}

func (m *Metrics) ObserveInference(took time.Duration) {
	m.inferenceDuration.Observe(took.Seconds())
}

func (m *Metrics) ObservePrediction(label string) {
	m.predictions.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveFailure(kind classification.Kind) {
	m.failures.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
