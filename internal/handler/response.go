// Package handler exposes the HTTP API.  Every JSON response uses the
// envelope {"success":true,"data":...} or {"success":false,"error":"..."}.
package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/middleware"
    "github.com/iliyamo/bus-charter-booking/internal/service"
)

type envelope struct {
    Success bool   `json:"success"`
    Data    any    `json:"data,omitempty"`
    Error   string `json:"error,omitempty"`
}

func ok(c echo.Context, status int, data any) error {
    return c.JSON(status, envelope{Success: true, Data: data})
}

func failed(c echo.Context, status int, msg string) error {
    return c.JSON(status, envelope{Success: false, Error: msg})
}

// statusOf maps a service error kind to an HTTP status.
func statusOf(err error) int {
    switch {
    case errors.Is(err, service.ErrValidation):
        return http.StatusBadRequest
    case errors.Is(err, service.ErrRejected):
        return http.StatusUnprocessableEntity
    case errors.Is(err, service.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, service.ErrConflict):
        return http.StatusConflict
    case errors.Is(err, service.ErrGateway):
        return http.StatusBadGateway
    case errors.Is(err, service.ErrUnauthorized):
        return http.StatusUnauthorized
    }
    return http.StatusInternalServerError
}

// writeErr renders err.  Unexpected errors are logged here, once, and
// reach the client only as "operation failed".
func writeErr(c echo.Context, log *zap.Logger, op string, err error) error {
    status := statusOf(err)
    msg := service.Message(err)
    if status == http.StatusInternalServerError || msg == "" {
        log.Error(op+" failed", zap.String("request_id", middleware.RequestID(c)), zap.Error(err))
        return failed(c, http.StatusInternalServerError, "operation failed")
    }
    if status == http.StatusBadGateway {
        log.Warn(op+" gateway error", zap.String("request_id", middleware.RequestID(c)), zap.Error(err))
    }
    return failed(c, status, msg)
}

func idParam(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}
