package handler

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/repository"
    "github.com/iliyamo/bus-charter-booking/internal/service"
)

// AdminHandler serves /v1/admin.  Routes are mounted behind JWTAuth and
// RequireRole(ADMIN).
type AdminHandler struct {
    Bookings Bookings
    Costs    Costs
    Payments Payments
    Refunds  Refunds
    Fleet    Fleet
    Log      *zap.Logger
}

func badID(c echo.Context) error { return failed(c, http.StatusBadRequest, "invalid id") }

// ListReservations supports ?status=, ?date=YYYY-MM-DD and ?limit=.
func (h *AdminHandler) ListReservations(c echo.Context) error {
    f := repository.ReservationFilter{Status: c.QueryParam("status")}
    if raw := c.QueryParam("date"); raw != "" {
        d, err := time.Parse(dateLayout, raw)
        if err != nil {
            return failed(c, http.StatusBadRequest, "date must be a date formatted YYYY-MM-DD")
        }
        f.TripDate = &d
    }
    if raw := c.QueryParam("limit"); raw != "" {
        n, err := strconv.Atoi(raw)
        if err != nil || n < 1 {
            return failed(c, http.StatusBadRequest, "limit must be a positive integer")
        }
        f.Limit = n
    }
    list, err := h.Bookings.List(c.Request().Context(), f)
    if err != nil {
        return writeErr(c, h.Log, "list reservations", err)
    }
    return ok(c, http.StatusOK, list)
}

func (h *AdminHandler) GetReservation(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    d, err := h.Bookings.Detail(c.Request().Context(), id)
    if err != nil {
        return writeErr(c, h.Log, "reservation detail", err)
    }
    return ok(c, http.StatusOK, d)
}

type statusReq struct {
    Status string `json:"status" validate:"required"`
}

func (h *AdminHandler) UpdateReservationStatus(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    var req statusReq
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    res, err := h.Bookings.UpdateStatus(c.Request().Context(), id, req.Status)
    if err != nil {
        return writeErr(c, h.Log, "update reservation status", err)
    }
    return ok(c, http.StatusOK, res)
}

type assignBusReq struct {
    BusID uint64 `json:"bus_id" validate:"required"`
}

func (h *AdminHandler) AssignBus(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    var req assignBusReq
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    res, err := h.Bookings.AssignBus(c.Request().Context(), id, req.BusID)
    if err != nil {
        return writeErr(c, h.Log, "assign bus", err)
    }
    return ok(c, http.StatusOK, res)
}

func (h *AdminHandler) AdjustCost(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    var req service.AdjustInput
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    cost, err := h.Costs.Adjust(c.Request().Context(), id, req)
    if err != nil {
        return writeErr(c, h.Log, "adjust cost", err)
    }
    return ok(c, http.StatusOK, cost)
}

func (h *AdminHandler) DeleteReservation(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    if err := h.Bookings.Delete(c.Request().Context(), id); err != nil {
        return writeErr(c, h.Log, "delete reservation", err)
    }
    return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) ManualPayment(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    var req service.ManualPaymentInput
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    inv, err := h.Payments.ProcessManualPayment(c.Request().Context(), id, req)
    if err != nil {
        return writeErr(c, h.Log, "manual payment", err)
    }
    return ok(c, http.StatusCreated, inv)
}

func (h *AdminHandler) ApproveCancellation(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    res, err := h.Bookings.ApproveCancellation(c.Request().Context(), id)
    if err != nil {
        return writeErr(c, h.Log, "approve cancellation", err)
    }
    return ok(c, http.StatusOK, res)
}

func (h *AdminHandler) RejectCancellation(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    res, err := h.Bookings.RejectCancellation(c.Request().Context(), id)
    if err != nil {
        return writeErr(c, h.Log, "reject cancellation", err)
    }
    return ok(c, http.StatusOK, res)
}

func (h *AdminHandler) ConfirmInvoice(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    inv, err := h.Payments.ConfirmPayment(c.Request().Context(), id)
    if err != nil {
        return writeErr(c, h.Log, "confirm payment", err)
    }
    return ok(c, http.StatusOK, inv)
}

func (h *AdminHandler) ListRefunds(c echo.Context) error {
    list, err := h.Refunds.ListRefunds(c.Request().Context(), c.QueryParam("status"))
    if err != nil {
        return writeErr(c, h.Log, "list refunds", err)
    }
    return ok(c, http.StatusOK, list)
}

type processRefundReq struct {
    Decision   string `json:"decision" validate:"required,oneof=approved rejected"`
    AdminNotes string `json:"admin_notes" validate:"max=2000"`
}

func (h *AdminHandler) ProcessRefund(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    var req processRefundReq
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    rf, err := h.Refunds.ProcessRefund(c.Request().Context(), id, req.Decision, req.AdminNotes)
    if err != nil {
        return writeErr(c, h.Log, "process refund", err)
    }
    return ok(c, http.StatusOK, rf)
}

func (h *AdminHandler) ListBuses(c echo.Context) error {
    buses, err := h.Fleet.ListBuses(c.Request().Context())
    if err != nil {
        return writeErr(c, h.Log, "list buses", err)
    }
    return ok(c, http.StatusOK, buses)
}

func (h *AdminHandler) CreateBus(c echo.Context) error {
    var req service.BusInput
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    b, err := h.Fleet.CreateBus(c.Request().Context(), req)
    if err != nil {
        return writeErr(c, h.Log, "create bus", err)
    }
    return ok(c, http.StatusCreated, b)
}

func (h *AdminHandler) UpdateBusStatus(c echo.Context) error {
    id, good := idParam(c, "id")
    if !good {
        return badID(c)
    }
    var req statusReq
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    b, err := h.Fleet.UpdateBusStatus(c.Request().Context(), id, req.Status)
    if err != nil {
        return writeErr(c, h.Log, "update bus status", err)
    }
    return ok(c, http.StatusOK, b)
}

func (h *AdminHandler) ListFuelPrices(c echo.Context) error {
    limit, _ := strconv.Atoi(c.QueryParam("limit"))
    list, err := h.Costs.ListFuelPrices(c.Request().Context(), limit)
    if err != nil {
        return writeErr(c, h.Log, "list fuel prices", err)
    }
    return ok(c, http.StatusOK, list)
}

type fuelPriceReq struct {
    PricePerLiter float64 `json:"price_per_liter" validate:"required,gt=0"`
}

func (h *AdminHandler) CreateFuelPrice(c echo.Context) error {
    var req fuelPriceReq
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    fp, err := h.Costs.SetFuelPrice(c.Request().Context(), req.PricePerLiter)
    if err != nil {
        return writeErr(c, h.Log, "create fuel price", err)
    }
    return ok(c, http.StatusCreated, fp)
}
