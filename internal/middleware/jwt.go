package middleware

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-charter-booking/internal/utils"
)

// JWTAuth validates a Bearer access token and stores the user id and role
// in the context for RequireRole and the handlers.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(auth, "Bearer ") {
                return deny(c, http.StatusUnauthorized, "missing bearer token")
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
            if err != nil {
                return deny(c, http.StatusUnauthorized, "invalid token")
            }
            id, _ := claims.UserID()
            c.Set(ctxUserID, id)
            c.Set(ctxRole, claims.Role)
            return next(c)
        }
    }
}

func deny(c echo.Context, status int, msg string) error {
    return c.JSON(status, map[string]any{"success": false, "error": msg})
}
