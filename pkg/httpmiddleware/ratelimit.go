package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig configures the fixed window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window and key.
	Max    int
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. Defaults to the
	// client IP.
	KeyFunc func(*http.Request) string
	// Prefix namespaces the Redis counters.
	Prefix string
}

// RateLimiter counts requests per key in Redis so the limit holds across
// API replicas.
type RateLimiter struct {
	client redis.Cmdable
	cfg    RateLimitConfig
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by client.
func NewRateLimiter(client redis.Cmdable, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	}
	return &RateLimiter{client: client, cfg: cfg, now: time.Now}
}

// Allow counts a request for key and reports whether it is within the
// limit, how many requests remain and when the window resets.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (remaining int, resetAt time.Time, allowed bool, err error) {
	now := rl.now()
	window := now.Truncate(rl.cfg.Window)
	resetAt = window.Add(rl.cfg.Window)
	redisKey := rl.cfg.Prefix + ":" + key + ":" + strconv.FormatInt(window.Unix(), 10)

	var incr *redis.IntCmd
	_, err = rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, resetAt.Sub(now)+time.Second)
		return nil
	})
	if err != nil {
		return 0, resetAt, true, errors.Wrap(err, "count request")
	}

	count := int(incr.Val())
	if count > rl.cfg.Max {
		return 0, resetAt, false, nil
	}
	return rl.cfg.Max - count, resetAt, true, nil
}

// Middleware rejects requests over the limit with 429. Every response
// carries X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
// Requests are let through when Redis is unavailable.
func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, allowed, err := rl.Allow(r.Context(), rl.cfg.KeyFunc(r))
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			if !allowed {
				retry := max(resetAt.Sub(rl.now()), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
