package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "scheduler.internal.platform.middleware"

// Tracing starts a server span named "HTTP {method} {route}" for every
// request and stores it on the request context so handlers and services
// create child spans. An incoming W3C traceparent header becomes the parent.
// A nil provider falls back to the global one.
func Tracing(tp trace.TracerProvider) echo.MiddlewareFunc {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)
	propagator := propagation.TraceContext{}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}

			ctx, span := tracer.Start(ctx, "HTTP "+req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("http.url", req.URL.String()),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			span.SetAttributes(attribute.Int("http.status_code", status))
			if rid, ok := c.Get("request_id").(string); ok && rid != "" {
				span.SetAttributes(attribute.String("request_id", rid))
			}
			if status >= http.StatusInternalServerError {
				if err != nil {
					span.RecordError(err)
				}
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			return err
		}
	}
}
