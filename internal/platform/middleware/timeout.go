package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout returns middleware that sets a context deadline on each
// incoming request. The handler runs on the caller's goroutine and is
// expected to honour the deadline through its context. If the deadline has
// passed when it returns and nothing was written yet, a 504 with the JSON
// error envelope replaces its result. Paths under any of skipPrefixes
// run without a deadline.
func RequestTimeout(timeout time.Duration, skipPrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skipPrefixes {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return gatewayTimeout(c)
			}
			return err
		}
	}
}

func gatewayTimeout(c echo.Context) error {
	return c.JSON(http.StatusGatewayTimeout, errorBody{
		Error:   "timeout",
		Message: "request processing exceeded the allowed time limit",
	})
}
