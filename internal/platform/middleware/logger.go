package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger writes one "request" event per request. Server errors log at error
// level, client errors at warn.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}

			var evt *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				evt = logger.Error().Err(err)
			case status >= http.StatusBadRequest:
				evt = logger.Warn()
			default:
				evt = logger.Info()
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Int64("bytes_out", c.Response().Size).
				Str("remote_ip", c.RealIP())
			if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
				evt.Str("trace_id", sc.TraceID().String())
			}
			evt.Msg("request")

			return err
		}
	}
}
