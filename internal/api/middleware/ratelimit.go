package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// counter increments the hit count of one window and returns the new total.
type counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	client *redis.Client
}

// Incr bumps the window counter. The key expires with its window.
func (c redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimiter enforces fixed window limits with counters kept in Redis
type RateLimiter struct {
	counter counter
	logger  *zap.Logger
	now     func() time.Time
}

// RateLimitConfig defines one limit. Name keeps the counters of limits
// sharing a key function apart.
type RateLimitConfig struct {
	Name     string
	Requests int
	Window   time.Duration
	KeyFunc  func(*http.Request) string // "" skips the limit
}

// NewRateLimiter creates a rate limiter. With a nil client every request is allowed.
func NewRateLimiter(client *redis.Client, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{logger: logger, now: time.Now}
	if client != nil {
		rl.counter = redisCounter{client: client}
	}
	return rl
}

// Limit returns a middleware that enforces config. Counter failures let the
// request through.
func (rl *RateLimiter) Limit(config RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.counter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := config.KeyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			windowStart := rl.now().Truncate(config.Window)
			reset := windowStart.Add(config.Window)
			count, err := rl.counter.Incr(r.Context(), windowKey(config.Name, key, windowStart), config.Window)
			if err != nil {
				rl.logger.Error("Rate limit check failed", zap.String("limit", config.Name), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			remaining := max(config.Requests-int(count), 0)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if int(count) > config.Requests {
				retry := int64(reset.Sub(rl.now()).Round(time.Second).Seconds())
				h.Set("Retry-After", strconv.FormatInt(max(retry, 1), 10))
				rl.logger.Warn("Rate limit exceeded",
					zap.String("limit", config.Name),
					zap.String("key", key),
					zap.String("path", r.URL.Path),
				)
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func windowKey(name, key string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", name, key, windowStart.Unix())
}

// GetRealIP returns the client address. The router runs chi's RealIP first,
// so RemoteAddr already reflects X-Forwarded-For and X-Real-IP.
func GetRealIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// KeyByIP keys on the client address
func KeyByIP(r *http.Request) string {
	return "ip:" + GetRealIP(r)
}

// KeyByUser keys on the user ID from context, which is the anon: ID for
// anonymous callers. Falls back to the IP when no user is set.
func KeyByUser(r *http.Request) string {
	if id := UserID(r.Context()); id != "" {
		return "user:" + id
	}
	return KeyByIP(r)
}

// KeyByAnonIP keys anonymous callers by IP and skips signed-in users. Clearing
// the anonymous cookie does not escape it.
func KeyByAnonIP(r *http.Request) string {
	if u := GetUser(r.Context()); u != nil && !u.IsAnonymous() {
		return ""
	}
	return "anon-ip:" + GetRealIP(r)
}

// GlobalRateLimit applies to all requests from an IP
var GlobalRateLimit = RateLimitConfig{
	Name:     "global",
	Requests: 100,
	Window:   time.Minute,
	KeyFunc:  KeyByIP,
}

// ClipRateLimit applies to synchronous renders (per user)
var ClipRateLimit = RateLimitConfig{
	Name:     "clip",
	Requests: 10,
	Window:   time.Hour,
	KeyFunc:  KeyByUser,
}

// AnonClipRateLimit is the per-IP backstop for anonymous renders
var AnonClipRateLimit = RateLimitConfig{
	Name:     "anon-clip",
	Requests: 5,
	Window:   time.Hour,
	KeyFunc:  KeyByAnonIP,
}

// RunCreationRateLimit applies to queued run creation (per user)
var RunCreationRateLimit = RateLimitConfig{
	Name:     "runs",
	Requests: 20,
	Window:   time.Minute,
	KeyFunc:  KeyByUser,
}
