package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"pos-system/internal/errs"
)

const rateLimitedKind errs.Kind = "RATE_LIMITED"

type RateLimitOption func(*rateLimitConfig)

type rateLimitConfig struct {
	store limiter.Store
}

// WithLimiterStore replaces the in-process store.
func WithLimiterStore(store limiter.Store) RateLimitOption {
	return func(c *rateLimitConfig) { c.store = store }
}

// RateLimit limits requests per client IP and route. formatted follows the
// limiter notation, e.g. "60-M".
func RateLimit(formatted string, opts ...RateLimitOption) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", formatted, err)
	}

	cfg := rateLimitConfig{store: memory.NewStore()}
	for _, opt := range opts {
		opt(&cfg)
	}
	instance := limiter.New(cfg.store, rate)
	log := logrus.WithField("component", "ratelimit")

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + "|" + c.Request.Method + " " + route

		lctx, err := instance.Get(c.Request.Context(), key)
		if err != nil {
			// Fail open on store errors.
			log.WithError(err).Warn("Rate limit store unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			log.WithFields(logrus.Fields{"client_ip": c.ClientIP(), "route": route}).Debug("Rate limit reached")
			abortWith(c, http.StatusTooManyRequests, rateLimitedKind, "Too many requests")
			return
		}
		c.Next()
	}, nil
}
