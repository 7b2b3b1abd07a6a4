package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth and RequestLogger.
const (
    ctxUserID    = "user_id"
    ctxRole      = "role"
    ctxRequestID = "request_id"
)

// UserID returns the authenticated admin's id, if any.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(ctxUserID).(uint64)
    return id, ok
}

// Role returns the authenticated role, or "".
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// RequestID returns the id assigned by RequestLogger.
func RequestID(c echo.Context) string {
    id, _ := c.Get(ctxRequestID).(string)
    return id
}

// identity is the rate limit key component for the caller: the user id
// when authenticated, the client IP otherwise.
func identity(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return "user:" + formatUint(id)
    }
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    return "ip:" + ip
}
