// Package metrics exposes Prometheus counters for the image server on a
// private registry so tests can build as many instances as they need.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace    = "anyimage"
	labelOutcome = "outcome"
	labelResult  = "result"
)

// Metrics 同时满足 imgsrv.Recorder 与 pipeline.Recorder。
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	transforms    *prometheus.HistogramVec
	cacheFailures prometheus.Counter
}

// New 注册全部指标；inflight 为 nil 时不导出 in-flight gauge。
func New(inflight func() int) *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "image requests by final outcome",
	}, []string{labelOutcome})

	transforms := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transform_seconds",
		Help:      "time spent building derivatives, from probe to last byte",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{labelResult})

	cacheFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_write_failures_total",
		Help:      "derivatives that were served but could not be written to disk",
	})

	registry.MustRegister(requests, transforms, cacheFailures)
	if inflight != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_builds",
			Help:      "derivatives currently being built",
		}, func() float64 {
			return float64(inflight())
		}))
	}

	return &Metrics{
		registry:      registry,
		requests:      requests,
		transforms:    transforms,
		cacheFailures: cacheFailures,
	}
}

func (m *Metrics) ObserveRequest(outcome string) {
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransform(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transforms.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheWriteFailed() {
	m.cacheFailures.Inc()
}

// Handler 返回 Prometheus 文本格式的导出 handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
