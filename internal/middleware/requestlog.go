package middleware

import (
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/metrics"
)

// RequestLogger assigns an X-Request-ID (reusing a valid incoming one),
// logs every request once with zap and feeds the latency histogram.
func RequestLogger(log *zap.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            req := c.Request()
            rid := req.Header.Get(echo.HeaderXRequestID)
            if _, err := uuid.Parse(rid); err != nil {
                rid = uuid.NewString()
            }
            c.Set(ctxRequestID, rid)
            c.Response().Header().Set(echo.HeaderXRequestID, rid)

            err := next(c)
            if err != nil {
                c.Error(err)
            }

            status := c.Response().Status
            elapsed := time.Since(start)
            route := c.Path()
            if route == "" {
                route = "unmatched"
            }
            m.ObserveRequest(req.Method, route, statusClass(status), elapsed.Seconds())

            fields := []zap.Field{
                zap.String("request_id", rid),
                zap.String("method", req.Method),
                zap.String("route", route),
                zap.String("uri", req.RequestURI),
                zap.Int("status", status),
                zap.Duration("latency", elapsed),
                zap.String("remote_ip", c.RealIP()),
            }
            switch {
            case status >= 500:
                log.Error("request", fields...)
            case status >= 400:
                log.Warn("request", fields...)
            default:
                log.Info("request", fields...)
            }
            return nil
        }
    }
}

func statusClass(status int) string {
    switch {
    case status >= 500:
        return "5xx"
    case status >= 400:
        return "4xx"
    case status >= 300:
        return "3xx"
    default:
        return "2xx"
    }
}
