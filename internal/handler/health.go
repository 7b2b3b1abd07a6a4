package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Health reports liveness and, when db is set, database reachability.
func Health(db Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if db != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
            defer cancel()
            if err := db.PingContext(ctx); err != nil {
                return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "database": "down"})
            }
        }
        return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
    }
}
