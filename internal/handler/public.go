package handler

import (
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/service"
)

const (
    dateLayout     = "2006-01-02"
    maxWebhookBody = 1 << 20
)

// PublicHandler serves the customer-facing API.  Customers are anonymous;
// anything that changes a booking needs the reference code and the
// email it was made with.
type PublicHandler struct {
    Bookings    Bookings
    Costs       Costs
    Payments    Payments
    Refunds     Refunds
    Fleet       Fleet
    FrontendURL string
    Log         *zap.Logger
}

type quoteReq struct {
    Passengers int      `json:"passengers" validate:"required,gte=1,lte=100"`
    DistanceKm *float64 `json:"distance_km" validate:"omitempty,gte=0"`
}

// Quote estimates a trip's cost without creating anything.
func (h *PublicHandler) Quote(c echo.Context) error {
    var req quoteReq
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    b, err := h.Costs.Quote(c.Request().Context(), req.Passengers, req.DistanceKm)
    if err != nil {
        return writeErr(c, h.Log, "quote", err)
    }
    return ok(c, http.StatusOK, b)
}

type reservationReq struct {
    Name          string   `json:"name" validate:"required,max=255"`
    Email         string   `json:"email" validate:"required,email,max=255"`
    Phone         string   `json:"phone" validate:"required,max=32"`
    Address       *string  `json:"address" validate:"omitempty,max=500"`
    IDDocumentRef *string  `json:"id_document_ref" validate:"omitempty,max=500"`
    Origin        string   `json:"origin" validate:"required,max=255"`
    Destination   string   `json:"destination" validate:"required,max=255"`
    DistanceKm    *float64 `json:"distance_km" validate:"omitempty,gte=0"`
    TripDate      string   `json:"trip_date" validate:"required,datetime=2006-01-02"`
    DepartureTime string   `json:"departure_time" validate:"required,datetime=15:04"`
    ArrivalTime   *string  `json:"arrival_time" validate:"omitempty,datetime=15:04"`
    Passengers    int      `json:"passengers" validate:"required,gte=1,lte=100"`
    TravelType    string   `json:"travel_type" validate:"omitempty,oneof=one_way round_trip"`
}

// CreateReservation books a charter and returns it with its reference and
// first cost.
func (h *PublicHandler) CreateReservation(c echo.Context) error {
    var req reservationReq
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    trip, _ := time.Parse(dateLayout, req.TripDate)
    d, err := h.Bookings.CreateReservation(c.Request().Context(), service.CreateReservationInput{
        Name:          req.Name,
        Email:         req.Email,
        Phone:         req.Phone,
        Address:       req.Address,
        IDDocumentRef: req.IDDocumentRef,
        Origin:        req.Origin,
        Destination:   req.Destination,
        DistanceKm:    req.DistanceKm,
        TripDate:      trip,
        DepartureTime: req.DepartureTime,
        ArrivalTime:   req.ArrivalTime,
        Passengers:    req.Passengers,
        TravelType:    req.TravelType,
    })
    if err != nil {
        return writeErr(c, h.Log, "create reservation", err)
    }
    return ok(c, http.StatusCreated, d)
}

func (h *PublicHandler) GetReservation(c echo.Context) error {
    d, err := h.Bookings.Lookup(c.Request().Context(), c.Param("ref"))
    if err != nil {
        return writeErr(c, h.Log, "lookup reservation", err)
    }
    return ok(c, http.StatusOK, d)
}

func (h *PublicHandler) RecalculateCost(c echo.Context) error {
    cost, err := h.Costs.CalculateByReference(c.Request().Context(), c.Param("ref"))
    if err != nil {
        return writeErr(c, h.Log, "calculate cost", err)
    }
    return ok(c, http.StatusOK, cost)
}

type checkoutReq struct {
    Email string `json:"email" validate:"omitempty,email"`
}

// Checkout opens a gateway checkout for the booking's deposit.
func (h *PublicHandler) Checkout(c echo.Context) error {
    var req checkoutReq
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    out, err := h.Payments.CreateCheckout(c.Request().Context(), c.Param("ref"), req.Email)
    if err != nil {
        return writeErr(c, h.Log, "create checkout", err)
    }
    return ok(c, http.StatusCreated, out)
}

// PaymentSuccess is where the gateway returns the browser.  It always
// answers with a redirect to the frontend, never with JSON.
func (h *PublicHandler) PaymentSuccess(c echo.Context) error {
    q := url.Values{}
    out, err := h.Payments.ConfirmRedirect(c.Request().Context(), c.QueryParam("checkout_id"), c.QueryParam("state"))
    switch {
    case err == nil:
        q.Set("status", out.Status)
        q.Set("reference", out.Reference)
    default:
        msg := service.Message(err)
        if statusOf(err) == http.StatusInternalServerError || msg == "" {
            h.Log.Error("confirm redirect failed", zap.Error(err))
            msg = "we could not confirm your payment yet"
        }
        q.Set("status", "error")
        q.Set("message", msg)
        if ref := c.QueryParam("reference"); ref != "" {
            q.Set("reference", ref)
        }
    }
    return c.Redirect(http.StatusFound, h.resultURL(q))
}

// PaymentCancel sends the browser back to the frontend untouched.
func (h *PublicHandler) PaymentCancel(c echo.Context) error {
    q := url.Values{}
    q.Set("status", "cancelled")
    if ref := c.QueryParam("reference"); ref != "" {
        q.Set("reference", ref)
    }
    return c.Redirect(http.StatusFound, h.resultURL(q))
}

func (h *PublicHandler) resultURL(q url.Values) string {
    return strings.TrimRight(h.FrontendURL, "/") + "/payment/result?" + q.Encode()
}

// Webhook receives gateway notifications.  The raw body is needed for
// signature verification.
func (h *PublicHandler) Webhook(c echo.Context) error {
    body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
    if err != nil {
        return failed(c, http.StatusBadRequest, "unreadable body")
    }
    if err := h.Payments.HandleWebhook(c.Request().Context(), body, c.Request().Header); err != nil {
        return writeErr(c, h.Log, "webhook", err)
    }
    return ok(c, http.StatusOK, map[string]bool{"received": true})
}

type refundReq struct {
    Email  string   `json:"email" validate:"required,email"`
    Reason string   `json:"reason" validate:"required,min=10,max=500"`
    Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
}

func (h *PublicHandler) RequestRefund(c echo.Context) error {
    var req refundReq
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    rf, err := h.Refunds.RequestRefund(c.Request().Context(), service.RefundRequestInput{
        Reference: c.Param("ref"),
        Email:     req.Email,
        Reason:    req.Reason,
        Amount:    req.Amount,
    })
    if err != nil {
        return writeErr(c, h.Log, "request refund", err)
    }
    return ok(c, http.StatusCreated, rf)
}

type cancellationReq struct {
    Email  string `json:"email" validate:"required,email"`
    Reason string `json:"reason" validate:"required,max=1000"`
}

func (h *PublicHandler) RequestCancellation(c echo.Context) error {
    var req cancellationReq
    if msg, good := bind(c, &req); !good {
        return failed(c, http.StatusBadRequest, msg)
    }
    res, err := h.Bookings.RequestCancellation(c.Request().Context(), c.Param("ref"), req.Email, req.Reason)
    if err != nil {
        return writeErr(c, h.Log, "request cancellation", err)
    }
    return ok(c, http.StatusOK, res)
}

// AvailableBuses lists buses free on ?date=YYYY-MM-DD (today by default).
func (h *PublicHandler) AvailableBuses(c echo.Context) error {
    date := time.Now().UTC()
    if raw := c.QueryParam("date"); raw != "" {
        d, err := time.Parse(dateLayout, raw)
        if err != nil {
            return failed(c, http.StatusBadRequest, "date must be a date formatted YYYY-MM-DD")
        }
        date = d
    }
    buses, err := h.Fleet.AvailableBuses(c.Request().Context(), date)
    if err != nil {
        return writeErr(c, h.Log, "available buses", err)
    }
    return ok(c, http.StatusOK, buses)
}

func (h *PublicHandler) CurrentFuelPrice(c echo.Context) error {
    fp, err := h.Costs.CurrentFuelPrice(c.Request().Context())
    if err != nil {
        return writeErr(c, h.Log, "current fuel price", err)
    }
    return ok(c, http.StatusOK, fp)
}
