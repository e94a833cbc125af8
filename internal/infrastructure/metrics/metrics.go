package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Completion outcomes
const (
	OutcomeCompleted        = "completed"
	OutcomeAlreadyCompleted = "already_completed"
	OutcomeNotFound         = "not_found"
	OutcomeConflict         = "conflict"
	OutcomeError            = "error"
)

// Metrics owns a private registry with HTTP and streak collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	completions     *prometheus.CounterVec
	streakLength    prometheus.Histogram
	recomputes      *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streak_completions_total",
				Help: "Task completion attempts by outcome",
			},
			[]string{"outcome"},
		),
		streakLength: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "streak_current_length",
				Help:    "Current streak length after a successful completion",
				Buckets: []float64{1, 2, 3, 5, 7, 14, 30, 60, 100, 365},
			},
		),
		recomputes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streak_recomputes_total",
				Help: "Streak recomputations by whether stored values changed",
			},
			[]string{"changed"},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.completions,
		m.streakLength,
		m.recomputes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			m.requestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				fmt.Sprintf("%d", status),
			).Inc()

			m.requestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// ObserveCompletion counts one completion attempt. current is only
// recorded for successful completions.
func (m *Metrics) ObserveCompletion(outcome string, current int) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCompleted {
		m.streakLength.Observe(float64(current))
	}
}

// ObserveRecompute counts one streak recomputation.
func (m *Metrics) ObserveRecompute(changed bool) {
	if m == nil {
		return
	}
	m.recomputes.WithLabelValues(fmt.Sprintf("%t", changed)).Inc()
}
