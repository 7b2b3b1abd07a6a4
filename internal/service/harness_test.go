package service

import (
    "context"
    "net/url"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "github.com/iliyamo/bus-charter-booking/internal/checkoutstate"
    "github.com/iliyamo/bus-charter-booking/internal/model"
)

type harness struct {
    db       *memDB
    gw       *fakeGateway
    events   *recorder
    states   *checkoutstate.MemoryStore
    costs    *CostService
    bookings *BookingService
    payments *PaymentService
    refunds  *RefundService
    fleet    *FleetService
}

func newHarness(t *testing.T) *harness {
    t.Helper()
    h := &harness{db: newMemDB(), gw: &fakeGateway{}, events: &recorder{}, states: checkoutstate.NewMemoryStore(time.Hour)}
    d := h.db.deps()
    d.Events = h.events
    h.costs = NewCostService(d)
    h.bookings = NewBookingService(d, h.costs)
    h.payments = NewPaymentService(d, PaymentConfig{Gateway: h.gw, States: h.states, BaseURL: "https://api.example/", Currency: "PHP"})
    h.refunds = NewRefundService(d, h.gw, "PHP")
    h.fleet = NewFleetService(d)
    return h
}

func (h *harness) withFuel(t *testing.T, price float64) {
    t.Helper()
    _, err := h.db.deps().FuelPrices.Create(context.Background(), price, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
    require.NoError(t, err)
}

func bookingInput(passengers int, km *float64) CreateReservationInput {
    return CreateReservationInput{
        Name:          "Maria Santos",
        Email:         "Maria@Example.com ",
        Phone:         "09171234567",
        Origin:        "Manila",
        Destination:   "Baguio",
        DistanceKm:    km,
        TripDate:      time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
        DepartureTime: "07:30",
        Passengers:    passengers,
        TravelType:    model.TravelRoundTrip,
    }
}

func (h *harness) book(t *testing.T, passengers int, km *float64) *model.ReservationDetail {
    t.Helper()
    d, err := h.bookings.CreateReservation(context.Background(), bookingInput(passengers, km))
    require.NoError(t, err)
    return d
}

// checkout opens a checkout and returns it with the state token embedded
// in its success URL.
func (h *harness) checkout(t *testing.T, code string) (*CheckoutResult, string) {
    t.Helper()
    co, err := h.payments.CreateCheckout(context.Background(), code, "")
    require.NoError(t, err)
    u, err := url.Parse(h.gw.lastRequest.SuccessURL)
    require.NoError(t, err)
    return co, u.Query().Get("state")
}

func (h *harness) reservation(t *testing.T, id uint64) *model.Reservation {
    t.Helper()
    r, err := h.db.deps().Reservations.GetByID(context.Background(), id)
    require.NoError(t, err)
    return r
}

func (h *harness) invoice(t *testing.T, id uint64) *model.Invoice {
    t.Helper()
    inv, err := h.db.deps().Invoices.GetByID(context.Background(), id)
    require.NoError(t, err)
    return inv
}

func km(v float64) *float64 { return &v }
