package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthos/healthos/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
	}
}

// LimiterStore decides whether a request identified by key may proceed.
// When it may not, retryAfter says how long the caller should wait.
type LimiterStore interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimitOptions wires the middleware to its store.
type RateLimitOptions struct {
	Store  LimiterStore
	Limit  int
	Logger zerolog.Logger
	// OnLimited is called for every rejected request.
	OnLimited func()
}

// RateLimit rejects requests over the store's budget with 429. Store errors
// are logged and the request is let through.
func RateLimit(opts RateLimitOptions) echo.MiddlewareFunc {
	limit := strconv.Itoa(opts.Limit)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateLimitKey(c)
			allowed, retryAfter, err := opts.Store.Allow(c.Request().Context(), key)
			if err != nil {
				opts.Logger.Warn().Err(err).Str("key", key).Msg("rate limit store unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if !allowed {
				if opts.OnLimited != nil {
					opts.OnLimited()
				}
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// rateLimitKey buckets authenticated callers by hospital and user, and
// anonymous callers by client IP.
func rateLimitKey(c echo.Context) string {
	ctx := c.Request().Context()
	if uid := auth.UserIDFromContext(ctx); uid != "" {
		return "user:" + auth.HospitalIDFromContext(ctx) + ":" + uid
	}
	return "ip:" + c.RealIP()
}
