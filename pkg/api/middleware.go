package api

import (
	"fmt"
	"time"

	echo "github.com/labstack/echo/v5"
)

// requestMetadata stamps every response with the API version and the time
// the handler spent on the request. Headers are written before the body.
func requestMetadata() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			h := c.Response().Header()
			h.Set("X-API-Version", APIVersion)
			if resp, err := echo.UnwrapResponse(c.Response()); err == nil {
				resp.Before(func() {
					h.Set("X-Request-Duration", fmt.Sprintf("%.6f", time.Since(start).Seconds()))
				})
			}
			return next(c)
		}
	}
}

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}
