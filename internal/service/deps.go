package service

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/metrics"
    "github.com/iliyamo/bus-charter-booking/internal/model"
    "github.com/iliyamo/bus-charter-booking/internal/queue"
    "github.com/iliyamo/bus-charter-booking/internal/repository"
)

// TxRunner runs fn in a database transaction, committing on nil.
type TxRunner interface {
    WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type CustomerStore interface {
    GetByID(ctx context.Context, id uint64) (*model.Customer, error)
    UpsertByEmailTx(ctx context.Context, tx *sql.Tx, c *model.Customer) error
}

type ReservationStore interface {
    CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error
    GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
    GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error)
    List(ctx context.Context, f repository.ReservationFilter) ([]model.Reservation, error)
    UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string) error
    UpdateDistanceTx(ctx context.Context, tx *sql.Tx, id uint64, distanceKm float64) error
    AssignBusTx(ctx context.Context, tx *sql.Tx, id, busID uint64) error
    RequestCancellationTx(ctx context.Context, tx *sql.Tx, id uint64, reason string, at time.Time) error
    ApproveCancellationTx(ctx context.Context, tx *sql.Tx, id uint64) error
    RejectCancellationTx(ctx context.Context, tx *sql.Tx, id uint64) error
    Delete(ctx context.Context, id uint64) error
}

type ReferenceStore interface {
    CodeExistsTx(ctx context.Context, tx *sql.Tx, code string) (bool, error)
    CreateTx(ctx context.Context, tx *sql.Tx, reservationID uint64, code string) (*model.BookingReference, error)
    GetByCode(ctx context.Context, code string) (*model.BookingReference, error)
    GetByReservationID(ctx context.Context, reservationID uint64) (*model.BookingReference, error)
}

type BusStore interface {
    Create(ctx context.Context, b *model.Bus) error
    GetByID(ctx context.Context, id uint64) (*model.Bus, error)
    List(ctx context.Context) ([]model.Bus, error)
    UpdateStatus(ctx context.Context, id uint64, status string) error
    AvailableOn(ctx context.Context, date time.Time) ([]model.Bus, error)
    IsAvailableOnTx(ctx context.Context, tx *sql.Tx, busID uint64, date time.Time, exceptReservationID uint64) (bool, error)
}

type FuelPriceStore interface {
    Current(ctx context.Context) (*model.FuelPrice, error)
    GetByID(ctx context.Context, id uint64) (*model.FuelPrice, error)
    Create(ctx context.Context, pricePerLiter float64, effective time.Time) (*model.FuelPrice, error)
    List(ctx context.Context, limit int) ([]model.FuelPrice, error)
}

type CostStore interface {
    GetByID(ctx context.Context, id uint64) (*model.CalculatedCost, error)
    GetByReservationID(ctx context.Context, reservationID uint64) (*model.CalculatedCost, error)
    GetByReservationIDTx(ctx context.Context, tx *sql.Tx, reservationID uint64) (*model.CalculatedCost, error)
    Upsert(ctx context.Context, c *model.CalculatedCost) error
    UpsertTx(ctx context.Context, tx *sql.Tx, c *model.CalculatedCost) error
}

type InvoiceStore interface {
    GetByID(ctx context.Context, id uint64) (*model.Invoice, error)
    GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Invoice, error)
    GetByCostID(ctx context.Context, costID uint64) (*model.Invoice, error)
    GetByCostIDForUpdateTx(ctx context.Context, tx *sql.Tx, costID uint64) (*model.Invoice, error)
    GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Invoice, error)
    GetByPaymentIntentID(ctx context.Context, intentID string) (*model.Invoice, error)
    GetByPaymentID(ctx context.Context, paymentID string) (*model.Invoice, error)
    LatestAwaiting(ctx context.Context) (*model.Invoice, error)
    CreateTx(ctx context.Context, tx *sql.Tx, inv *model.Invoice) error
    RefreshCheckoutTx(ctx context.Context, tx *sql.Tx, id uint64, gateway, checkoutID, checkoutURL string, intentID *string, amount float64) error
    MarkPaidTx(ctx context.Context, tx *sql.Tx, id uint64, intentID, paymentID *string, at time.Time) (bool, error)
    RecordManualPaymentTx(ctx context.Context, tx *sql.Tx, id uint64, method string, amount float64, at time.Time) error
    ConfirmTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error
    MarkRefundedTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error
    SetRefundIDTx(ctx context.Context, tx *sql.Tx, id uint64, refundID string) error
}

type RefundStore interface {
    CreateTx(ctx context.Context, tx *sql.Tx, rf *model.Refund) error
    GetByID(ctx context.Context, id uint64) (*model.Refund, error)
    GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Refund, error)
    HasActiveTx(ctx context.Context, tx *sql.Tx, costID uint64) (bool, error)
    ListByCost(ctx context.Context, costID uint64) ([]model.Refund, error)
    List(ctx context.Context, status string) ([]model.Refund, error)
    DecideTx(ctx context.Context, tx *sql.Tx, id uint64, status string, notes *string, at time.Time) error
    RecordGatewayResultTx(ctx context.Context, tx *sql.Tx, id uint64, notes, externalID *string) error
}

// EventPublisher delivers domain events.  Failures never fail a request.
type EventPublisher interface {
    Publish(ctx context.Context, ev queue.Event) error
}

// Deps bundles what the services share.  Log, Events, Metrics and Now
// may be left zero.
type Deps struct {
    Tx           TxRunner
    Customers    CustomerStore
    Reservations ReservationStore
    References   ReferenceStore
    Buses        BusStore
    FuelPrices   FuelPriceStore
    Costs        CostStore
    Invoices     InvoiceStore
    Refunds      RefundStore
    Events       EventPublisher
    Metrics      *metrics.Metrics
    Log          *zap.Logger
    Now          func() time.Time
}

func (d *Deps) init() {
    if d.Log == nil {
        d.Log = zap.NewNop()
    }
    if d.Events == nil {
        d.Events = queue.Nop{}
    }
    if d.Now == nil {
        d.Now = time.Now
    }
}

func (d *Deps) now() time.Time { return d.Now().UTC() }

// publish sends ev after a commit.  Errors are logged only.
func (d *Deps) publish(ctx context.Context, ev queue.Event) {
    ev.OccurredAt = d.now()
    if err := d.Events.Publish(ctx, ev); err != nil {
        d.Log.Warn("event publish failed", zap.String("event", ev.Type), zap.Uint64("reservation_id", ev.ReservationID), zap.Error(err))
    }
}

// lookup maps repository.ErrNotFound to a not-found service error with
// the given message and wraps anything else.
func lookup(err error, what string) error {
    if err == nil {
        return nil
    }
    if errors.Is(err, repository.ErrNotFound) {
        return fail(ErrNotFound, "%s not found", what)
    }
    return fmt.Errorf("load %s: %w", what, err)
}
