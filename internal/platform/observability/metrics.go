package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"foodcal-server-go/internal/domain/eventbus"
)

const (
	OutcomeIdentified = "identified"
	OutcomeFallback   = "fallback"
)

// Metrics Prometheus 指标集合，注册到独立的 Registry 便于测试
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	HTTPInFlight    prometheus.Gauge
	Predictions     *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	ModelLatency    *prometheus.HistogramVec
	Estimates       *prometheus.CounterVec
	PanicRecoveries prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodcal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "foodcal_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "foodcal_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),
		Predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodcal_predictions_total",
				Help: "Image predictions by outcome",
			},
			[]string{"outcome"},
		),
		Fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodcal_fallbacks_total",
				Help: "Fallback records returned, by failing pipeline stage",
			},
			[]string{"stage"},
		),
		ModelLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "foodcal_model_latency_seconds",
				Help:    "Latency of the external vision model call",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"provider"},
		),
		Estimates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodcal_text_estimates_total",
				Help: "Text estimates by whether any known food matched",
			},
			[]string{"matched"},
		),
		PanicRecoveries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "foodcal_panic_recoveries_total",
				Help: "Total number of panics recovered in HTTP handlers",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one finished request (RED metrics).
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveAnalysis records one analyzer outcome.
func (m *Metrics) ObserveAnalysis(e eventbus.AnalysisEventData) {
	if e.Fallback {
		m.Predictions.WithLabelValues(OutcomeFallback).Inc()
		stage := e.Stage
		if stage == "" {
			stage = "unknown"
		}
		m.Fallbacks.WithLabelValues(stage).Inc()
	} else {
		m.Predictions.WithLabelValues(OutcomeIdentified).Inc()
	}
	if e.ModelLatency > 0 {
		m.ModelLatency.WithLabelValues(e.Provider).Observe(e.ModelLatency.Seconds())
	}
}

func (m *Metrics) ObserveEstimate(e eventbus.EstimateEventData) {
	m.Estimates.WithLabelValues(strconv.FormatBool(e.Matched > 0)).Inc()
}

// Subscribe wires the metrics to analyzer events.
func (m *Metrics) Subscribe(bus *eventbus.Bus) error {
	if err := bus.Subscribe(eventbus.EventAnalysisCompleted, m.ObserveAnalysis); err != nil {
		return err
	}
	if err := bus.Subscribe(eventbus.EventAnalysisFallback, m.ObserveAnalysis); err != nil {
		return err
	}
	return bus.Subscribe(eventbus.EventEstimateCompleted, m.ObserveEstimate)
}
