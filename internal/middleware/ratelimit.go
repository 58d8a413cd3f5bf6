package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/fitback/internal/config"
	"github.com/iliyamo/fitback/internal/logging"
)

// tokenBucketScript refills and takes one token atomically.  State lives in a
// hash per key that expires after the policy window when idle.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals)
		last_refill = last_refill + (intervals * interval_ms)
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// RateLimiter enforces per-policy token buckets in Redis.  Without Redis, or
// when Redis errors, requests pass through.
type RateLimiter struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	log logging.Logger
	now func() time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log logging.Logger) *RateLimiter {
	return &RateLimiter{cfg: cfg, rdb: rdb, log: log, now: time.Now}
}

func (l *RateLimiter) active() bool { return l != nil && l.cfg.Enabled && l.rdb != nil }

// Limit returns a middleware enforcing p.  message is what a blocked client
// is told.
func (l *RateLimiter) Limit(p config.RateLimitPolicy, message string) echo.MiddlewareFunc {
	if !l.active() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := int64(p.Window / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := l.key(p, c)
			ctx := c.Request().Context()
			vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{key},
				l.now().UnixMilli(), p.Max, p.RefillInterval().Milliseconds(), ttl).Result()
			if err != nil {
				l.log.Warn(ctx, "rate limit: redis error, allowing request", "key", key, "error", err)
				return next(c)
			}
			arr, ok := vals.([]interface{})
			if !ok || len(arr) != 3 {
				l.log.Warn(ctx, "rate limit: unexpected script result", "key", key, "result", fmt.Sprintf("%#v", vals))
				return next(c)
			}
			allowed := asInt64(arr[0]) == 1
			remaining := asInt64(arr[1])
			retryMs := asInt64(arr[2])

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(p.Max))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if l.cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 0 {
					secs = 0
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				if l.cfg.Debug {
					l.log.Debug(ctx, "rate limit: blocked", "key", key, "retry_ms", retryMs)
				}
				return deny(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", message)
			}
			return next(c)
		}
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// key builds prefix:policy:<strategy parts>.
func (l *RateLimiter) key(p config.RateLimitPolicy, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()
	parts := []string{l.cfg.Prefix, p.Name}

	switch strings.ToLower(l.cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", userID(c))
	case "ip_user":
		parts = append(parts, "ip", ip, "user", userID(c))
	case "user_route":
		parts = append(parts, "user", userID(c), "route", route)
	default: // ip_route
		parts = append(parts, "ip", ip, "route", route)
	}
	return strings.Join(parts, ":")
}
