package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// RequireRole lets the request through only when JWTAuth stored one of
// roles in the context.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !allowed[Role(c)] {
                return deny(c, http.StatusForbidden, "forbidden")
            }
            return next(c)
        }
    }
}
