package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountsByRouteAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := echo.New()
	e.Use(Metrics(reg))
	e.GET("/api/v1/appointments/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/api/v1/appointments/a", "/api/v1/appointments/b", "/api/v1/appointments/missing"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "scheduler_http_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			assert.Equal(t, "/api/v1/appointments/:id", labels["route"])
			counts[labels["status"]] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, counts["200"])
	assert.Equal(t, 1.0, counts["404"])

	n, err := testutil.GatherAndCount(reg, "scheduler_http_request_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_PlainErrorCountsAs500(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/boom", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := Metrics(reg)(func(c echo.Context) error { return assert.AnError })
	require.Error(t, h(c))

	n, err := testutil.GatherAndCount(reg, "scheduler_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "scheduler_http_requests_total" {
			continue
		}
		for _, l := range f.GetMetric()[0].GetLabel() {
			switch l.GetName() {
			case "status":
				assert.Equal(t, "500", l.GetValue())
			case "route":
				assert.Equal(t, "unmatched", l.GetValue())
			}
		}
	}
}
