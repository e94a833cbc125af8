package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCompletion(t *testing.T) {
	m := New()

	m.ObserveCompletion(OutcomeCompleted, 3)
	m.ObserveCompletion(OutcomeCompleted, 1)
	m.ObserveCompletion(OutcomeAlreadyCompleted, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.completions.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues(OutcomeAlreadyCompleted)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.streakLength))
}

func TestObserveRecompute(t *testing.T) {
	m := New()

	m.ObserveRecompute(true)
	m.ObserveRecompute(false)
	m.ObserveRecompute(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.recomputes.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recomputes.WithLabelValues("false")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCompletion(OutcomeCompleted, 1)
		m.ObserveRecompute(true)
	})
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/tasks/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	for _, path := range []string{"/tasks/1", "/tasks/2", "/missing"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/tasks/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/missing", "404")))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}
