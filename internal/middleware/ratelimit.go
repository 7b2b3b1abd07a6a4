package middleware

import (
    "math"
    "net/http"
    "strconv"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "github.com/iliyamo/bus-charter-booking/internal/config"
)

// tokenBucket refills refill_tokens every interval_ms up to capacity and
// takes one token per call.  Returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
    tokens = capacity
    last_refill = now_ms
end

local elapsed = math.max(0, now_ms - last_refill)
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
    tokens = math.min(capacity, tokens + intervals * refill_tokens)
    last_refill = last_refill + intervals * interval_ms
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

// RateLimit applies a per-caller, per-route token bucket kept in Redis.
// When Redis fails the request is let through and the error logged.
// Without a Redis client the buckets live in process memory instead.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return passThrough
    }
    if rdb == nil {
        return localRateLimit(cfg)
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := bucketKey(cfg, c)
            vals, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key},
                time.Now().UnixMilli(), cfg.Capacity, cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(), int64(cfg.TTL/time.Second)).Int64Slice()
            if err != nil || len(vals) != 3 {
                log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(vals[1], 10))
            if vals[0] != 1 {
                return tooMany(c, int(math.Ceil(float64(vals[2])/1000)))
            }
            return next(c)
        }
    }
}

func bucketKey(cfg config.RateLimitConfig, c echo.Context) string {
    return cfg.Prefix + ":" + identity(c) + ":" + c.Request().Method + " " + c.Path()
}

func tooMany(c echo.Context, retryAfter int) error {
    c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
    return c.JSON(http.StatusTooManyRequests, map[string]any{
        "success":     false,
        "error":       "rate limit exceeded",
        "retry_after": retryAfter,
    })
}

type localBucket struct {
    lim  *rate.Limiter
    seen time.Time
}

// localLimiter keeps one x/time/rate limiter per key.  Buckets idle for
// longer than ttl are dropped on the next sweep.
type localLimiter struct {
    mu      sync.Mutex
    buckets map[string]*localBucket
    every   rate.Limit
    burst   int
    ttl     time.Duration
    swept   time.Time
}

func (l *localLimiter) get(key string, now time.Time) *rate.Limiter {
    l.mu.Lock()
    defer l.mu.Unlock()
    if now.Sub(l.swept) > l.ttl {
        for k, b := range l.buckets {
            if now.Sub(b.seen) > l.ttl {
                delete(l.buckets, k)
            }
        }
        l.swept = now
    }
    b, ok := l.buckets[key]
    if !ok {
        b = &localBucket{lim: rate.NewLimiter(l.every, l.burst)}
        l.buckets[key] = b
    }
    b.seen = now
    return b.lim
}

func localRateLimit(cfg config.RateLimitConfig) echo.MiddlewareFunc {
    l := &localLimiter{
        buckets: make(map[string]*localBucket),
        every:   rate.Every(cfg.RefillInterval / time.Duration(cfg.RefillTokens)),
        burst:   cfg.Capacity,
        ttl:     cfg.TTL,
        swept:   time.Now(),
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            now := time.Now()
            lim := l.get(bucketKey(cfg, c), now)
            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            r := lim.ReserveN(now, 1)
            if delay := r.DelayFrom(now); delay > 0 {
                r.CancelAt(now)
                return tooMany(c, int(math.Ceil(delay.Seconds())))
            }
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.TokensAt(now))))
            return next(c)
        }
    }
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }
