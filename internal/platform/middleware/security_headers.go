package middleware

import (
	"github.com/labstack/echo/v4"
)

var apiSecurityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "no-referrer",
	// Responses carry patient identifiers and triage data.
	"Cache-Control": "no-store",
}

// SecurityHeaders sets the response headers expected of a JSON API that
// handles patient data. The /metrics scrape endpoint is left alone.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path != "/metrics" {
				h := c.Response().Header()
				for k, v := range apiSecurityHeaders {
					h.Set(k, v)
				}
			}
			return next(c)
		}
	}
}
