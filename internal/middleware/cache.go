package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/config"
)

// captureWriter tees the response body into buf, up to limit bytes.
type captureWriter struct {
    http.ResponseWriter
    status    int
    buf       bytes.Buffer
    limit     int
    truncated bool
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
    if !cw.truncated {
        if cw.limit > 0 && cw.buf.Len()+len(b) > cw.limit {
            cw.truncated = true
            cw.buf.Reset()
        } else {
            cw.buf.Write(b)
        }
    }
    return cw.ResponseWriter.Write(b)
}

type cachedResponse struct {
    Status      int    `json:"status"`
    ContentType string `json:"content_type"`
    Body        []byte `json:"body"`
}

func cacheKey(prefix string, c echo.Context) string {
    sum := sha1.Sum([]byte(c.Path() + "?" + c.Request().URL.RawQuery))
    return fmt.Sprintf("%s:%x", prefix, sum)
}

// ResponseCache serves repeated GETs from Redis.  Only complete 200
// responses are stored; anything larger than MaxBodyBytes is skipped.
func ResponseCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return passThrough
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 30 * time.Second
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if c.Request().Method != http.MethodGet {
                return next(c)
            }
            ctx := c.Request().Context()
            key := cacheKey(cfg.Prefix, c)

            if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
                var cr cachedResponse
                if json.Unmarshal(raw, &cr) == nil {
                    c.Response().Header().Set("X-Cache", "HIT")
                    return c.Blob(cr.Status, cr.ContentType, cr.Body)
                }
            } else if err != redis.Nil {
                log.Warn("response cache read failed", zap.String("key", key), zap.Error(err))
                return next(c)
            }

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if cw.status != http.StatusOK || cw.truncated {
                return nil
            }
            payload, err := json.Marshal(cachedResponse{
                Status:      cw.status,
                ContentType: c.Response().Header().Get(echo.HeaderContentType),
                Body:        cw.buf.Bytes(),
            })
            if err != nil {
                return nil
            }
            if err := rdb.Set(context.WithoutCancel(ctx), key, payload, ttl).Err(); err != nil {
                log.Warn("response cache write failed", zap.String("key", key), zap.Error(err))
            }
            return nil
        }
    }
}
