package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records request counts and latency per route template. Collectors
// are registered on reg, or the default registerer when reg is nil.
func Metrics(reg prometheus.Registerer) echo.MiddlewareFunc {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "http_request_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	reg.MustRegister(requests, latency)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
