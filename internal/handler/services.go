package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/iliyamo/bus-charter-booking/internal/model"
    "github.com/iliyamo/bus-charter-booking/internal/pricing"
    "github.com/iliyamo/bus-charter-booking/internal/repository"
    "github.com/iliyamo/bus-charter-booking/internal/service"
)

// The interfaces below are the slices of the service layer each handler
// uses; *service.XService values satisfy them.

type Bookings interface {
    CreateReservation(ctx context.Context, in service.CreateReservationInput) (*model.ReservationDetail, error)
    Lookup(ctx context.Context, code string) (*model.ReservationDetail, error)
    Detail(ctx context.Context, id uint64) (*model.ReservationDetail, error)
    List(ctx context.Context, f repository.ReservationFilter) ([]model.Reservation, error)
    UpdateStatus(ctx context.Context, id uint64, status string) (*model.Reservation, error)
    AssignBus(ctx context.Context, id, busID uint64) (*model.Reservation, error)
    Delete(ctx context.Context, id uint64) error
    RequestCancellation(ctx context.Context, code, email, reason string) (*model.Reservation, error)
    ApproveCancellation(ctx context.Context, id uint64) (*model.Reservation, error)
    RejectCancellation(ctx context.Context, id uint64) (*model.Reservation, error)
}

type Costs interface {
    Quote(ctx context.Context, passengers int, distanceKm *float64) (*pricing.Breakdown, error)
    CalculateByReference(ctx context.Context, code string) (*model.CalculatedCost, error)
    Adjust(ctx context.Context, reservationID uint64, in service.AdjustInput) (*model.CalculatedCost, error)
    CurrentFuelPrice(ctx context.Context) (*model.FuelPrice, error)
    SetFuelPrice(ctx context.Context, pricePerLiter float64) (*model.FuelPrice, error)
    ListFuelPrices(ctx context.Context, limit int) ([]model.FuelPrice, error)
}

type Payments interface {
    CreateCheckout(ctx context.Context, code, email string) (*service.CheckoutResult, error)
    ConfirmRedirect(ctx context.Context, checkoutID, state string) (*service.RedirectResult, error)
    HandleWebhook(ctx context.Context, payload []byte, header http.Header) error
    ConfirmPayment(ctx context.Context, invoiceID uint64) (*model.Invoice, error)
    ProcessManualPayment(ctx context.Context, reservationID uint64, in service.ManualPaymentInput) (*model.Invoice, error)
}

type Refunds interface {
    RequestRefund(ctx context.Context, in service.RefundRequestInput) (*model.Refund, error)
    ProcessRefund(ctx context.Context, refundID uint64, decision, notes string) (*model.Refund, error)
    ListRefunds(ctx context.Context, status string) ([]model.Refund, error)
}

type Fleet interface {
    CreateBus(ctx context.Context, in service.BusInput) (*model.Bus, error)
    ListBuses(ctx context.Context) ([]model.Bus, error)
    UpdateBusStatus(ctx context.Context, id uint64, status string) (*model.Bus, error)
    AvailableBuses(ctx context.Context, date time.Time) ([]model.Bus, error)
}

var (
    _ Bookings = (*service.BookingService)(nil)
    _ Costs    = (*service.CostService)(nil)
    _ Payments = (*service.PaymentService)(nil)
    _ Refunds  = (*service.RefundService)(nil)
    _ Fleet    = (*service.FleetService)(nil)
)
