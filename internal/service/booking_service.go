package service

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "regexp"
    "strings"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/model"
    "github.com/iliyamo/bus-charter-booking/internal/queue"
    "github.com/iliyamo/bus-charter-booking/internal/repository"
)

var clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// BookingService owns reservations: creation, lookup by booking
// reference, administrative overrides and the cancellation workflow.
type BookingService struct {
    Deps
    costs *CostService
    refs  *referenceGenerator
}

// NewBookingService returns a BookingService.  costs computes the first
// cost of every new reservation.
func NewBookingService(d Deps, costs *CostService) *BookingService {
    d.init()
    return &BookingService{Deps: d, costs: costs, refs: newReferenceGenerator(d.References)}
}

// CreateReservationInput is the public booking form.
type CreateReservationInput struct {
    Name          string
    Email         string
    Phone         string
    Address       *string
    IDDocumentRef *string
    Origin        string
    Destination   string
    DistanceKm    *float64
    TripDate      time.Time
    DepartureTime string
    ArrivalTime   *string
    Passengers    int
    TravelType    string
}

func (in *CreateReservationInput) check(today time.Time) error {
    in.Name = strings.TrimSpace(in.Name)
    in.Email = strings.ToLower(strings.TrimSpace(in.Email))
    in.Origin = strings.TrimSpace(in.Origin)
    in.Destination = strings.TrimSpace(in.Destination)
    switch {
    case in.Name == "" || in.Email == "" || in.Phone == "":
        return fail(ErrValidation, "name, email and phone are required")
    case in.Origin == "" || in.Destination == "":
        return fail(ErrValidation, "origin and destination are required")
    case in.Passengers < 1:
        return fail(ErrValidation, "passengers must be at least 1")
    case in.DistanceKm != nil && *in.DistanceKm < 0:
        return fail(ErrValidation, "distance_km must not be negative")
    case !clockRe.MatchString(in.DepartureTime):
        return fail(ErrValidation, "departure_time must be HH:MM")
    case in.ArrivalTime != nil && *in.ArrivalTime != "" && !clockRe.MatchString(*in.ArrivalTime):
        return fail(ErrValidation, "arrival_time must be HH:MM")
    }
    if in.ArrivalTime != nil && *in.ArrivalTime == "" {
        in.ArrivalTime = nil
    }
    if in.TravelType == "" {
        in.TravelType = model.TravelOneWay
    }
    if in.TravelType != model.TravelOneWay && in.TravelType != model.TravelRoundTrip {
        return fail(ErrValidation, "travel_type must be one_way or round_trip")
    }
    trip := in.TripDate.UTC().Truncate(24 * time.Hour)
    if trip.Before(today.Truncate(24 * time.Hour)) {
        return fail(ErrValidation, "trip_date must not be in the past")
    }
    in.TripDate = trip
    return nil
}

// CreateReservation stores the customer, the reservation and its booking
// reference atomically, then calculates the first cost.  A failing cost
// step does not undo the booking; the customer can recalculate later.
func (s *BookingService) CreateReservation(ctx context.Context, in CreateReservationInput) (*model.ReservationDetail, error) {
    if err := in.check(s.now()); err != nil {
        return nil, err
    }
    var res model.Reservation
    var ref *model.BookingReference
    err := s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        cust := model.Customer{Name: in.Name, Email: in.Email, Phone: in.Phone, Address: in.Address, IDDocumentRef: in.IDDocumentRef}
        if err := s.Customers.UpsertByEmailTx(ctx, tx, &cust); err != nil {
            return fmt.Errorf("upsert customer: %w", err)
        }
        res = model.Reservation{
            CustomerID:    cust.ID,
            Origin:        in.Origin,
            Destination:   in.Destination,
            DistanceKm:    in.DistanceKm,
            TripDate:      in.TripDate,
            DepartureTime: in.DepartureTime,
            ArrivalTime:   in.ArrivalTime,
            Passengers:    in.Passengers,
            TravelType:    in.TravelType,
            Status:        model.ReservationNotPaid,
        }
        if err := s.Reservations.CreateTx(ctx, tx, &res); err != nil {
            return fmt.Errorf("create reservation: %w", err)
        }
        var err error
        ref, err = s.refs.assignTx(ctx, tx, res.ID)
        return err
    })
    if err != nil {
        return nil, err
    }
    if _, err := s.costs.Calculate(ctx, res.ID); err != nil {
        s.Log.Warn("initial cost calculation failed", zap.Uint64("reservation_id", res.ID), zap.Error(err))
    }
    s.Metrics.ReservationCreated()
    s.Log.Info("reservation created", zap.Uint64("reservation_id", res.ID), zap.String("reference", ref.Code))
    s.publish(ctx, queue.Event{Type: queue.TypeReservationCreated, ReservationID: res.ID, Reference: ref.Code, Status: res.Status})
    return s.Detail(ctx, res.ID)
}

// Lookup returns the full booking behind a public reference code.
func (s *BookingService) Lookup(ctx context.Context, code string) (*model.ReservationDetail, error) {
    ref, err := s.References.GetByCode(ctx, code)
    if err != nil {
        return nil, lookup(err, "reservation")
    }
    return s.Detail(ctx, ref.ReservationID)
}

// Detail assembles the reservation with its customer, reference, cost,
// invoice and refunds.
func (s *BookingService) Detail(ctx context.Context, reservationID uint64) (*model.ReservationDetail, error) {
    res, err := s.Reservations.GetByID(ctx, reservationID)
    if err != nil {
        return nil, lookup(err, "reservation")
    }
    d := &model.ReservationDetail{Reservation: *res, Refunds: []model.Refund{}}
    cust, err := s.Customers.GetByID(ctx, res.CustomerID)
    if err != nil {
        return nil, lookup(err, "customer")
    }
    d.Customer = *cust
    if ref, err := s.References.GetByReservationID(ctx, res.ID); err == nil {
        d.Reference = ref.Code
    } else if !errors.Is(err, repository.ErrNotFound) {
        return nil, err
    }
    cost, err := s.Costs.GetByReservationID(ctx, res.ID)
    if errors.Is(err, repository.ErrNotFound) {
        return d, nil
    }
    if err != nil {
        return nil, err
    }
    d.Cost = cost
    if inv, err := s.Invoices.GetByCostID(ctx, cost.ID); err == nil {
        d.Invoice = inv
    } else if !errors.Is(err, repository.ErrNotFound) {
        return nil, err
    }
    refunds, err := s.Refunds.ListByCost(ctx, cost.ID)
    if err != nil {
        return nil, err
    }
    d.Refunds = refunds
    return d, nil
}

// List returns reservations for the admin overview.
func (s *BookingService) List(ctx context.Context, f repository.ReservationFilter) ([]model.Reservation, error) {
    if f.Status != "" && !validReservationStatus(f.Status) {
        return nil, fail(ErrValidation, "unknown status %q", f.Status)
    }
    return s.Reservations.List(ctx, f)
}

func validReservationStatus(s string) bool {
    switch s {
    case model.ReservationNotPaid, model.ReservationPending, model.ReservationConfirmed,
        model.ReservationCompleted, model.ReservationCancelled:
        return true
    }
    return false
}

// UpdateStatus is the administrator's force-set of the main status.
func (s *BookingService) UpdateStatus(ctx context.Context, id uint64, status string) (*model.Reservation, error) {
    if !validReservationStatus(status) {
        return nil, fail(ErrValidation, "unknown status %q", status)
    }
    err := s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        if _, err := s.Reservations.GetByIDForUpdateTx(ctx, tx, id); err != nil {
            return lookup(err, "reservation")
        }
        return s.Reservations.UpdateStatusTx(ctx, tx, id, status)
    })
    if err != nil {
        return nil, err
    }
    s.Log.Info("reservation status overridden", zap.Uint64("reservation_id", id), zap.String("status", status))
    res, err := s.Reservations.GetByID(ctx, id)
    return res, lookup(err, "reservation")
}

// AssignBus binds a bus that is free on the reservation's trip date.
func (s *BookingService) AssignBus(ctx context.Context, id, busID uint64) (*model.Reservation, error) {
    if _, err := s.Buses.GetByID(ctx, busID); err != nil {
        return nil, lookup(err, "bus")
    }
    err := s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        res, err := s.Reservations.GetByIDForUpdateTx(ctx, tx, id)
        if err != nil {
            return lookup(err, "reservation")
        }
        if res.Status == model.ReservationCancelled || res.Status == model.ReservationCompleted {
            return fail(ErrRejected, "cannot assign a bus to a %s reservation", res.Status)
        }
        ok, err := s.Buses.IsAvailableOnTx(ctx, tx, busID, res.TripDate, res.ID)
        if err != nil {
            return err
        }
        if !ok {
            return fail(ErrConflict, "bus is not available on %s", res.TripDate.Format("2006-01-02"))
        }
        return s.Reservations.AssignBusTx(ctx, tx, id, busID)
    })
    if err != nil {
        return nil, err
    }
    res, err := s.Reservations.GetByID(ctx, id)
    return res, lookup(err, "reservation")
}

// Delete removes a reservation and everything hanging off it.
func (s *BookingService) Delete(ctx context.Context, id uint64) error {
    if err := s.Reservations.Delete(ctx, id); err != nil {
        return lookup(err, "reservation")
    }
    s.Log.Info("reservation deleted", zap.Uint64("reservation_id", id))
    return nil
}

// owned resolves a public reference and checks that email belongs to the
// reservation's customer.  A mismatch looks exactly like an unknown code.
func (s *BookingService) owned(ctx context.Context, code, email string) (*model.Reservation, string, error) {
    return ownedReservation(ctx, &s.Deps, code, email)
}

func ownedReservation(ctx context.Context, d *Deps, code, email string) (*model.Reservation, string, error) {
    ref, err := d.References.GetByCode(ctx, code)
    if err != nil {
        return nil, "", lookup(err, "reservation")
    }
    res, err := d.Reservations.GetByID(ctx, ref.ReservationID)
    if err != nil {
        return nil, "", lookup(err, "reservation")
    }
    cust, err := d.Customers.GetByID(ctx, res.CustomerID)
    if err != nil {
        return nil, "", lookup(err, "reservation")
    }
    if !strings.EqualFold(strings.TrimSpace(email), cust.Email) {
        return nil, "", fail(ErrNotFound, "reservation not found")
    }
    return res, ref.Code, nil
}

// RequestCancellation records the customer's request for admin review.
func (s *BookingService) RequestCancellation(ctx context.Context, code, email, reason string) (*model.Reservation, error) {
    reason = strings.TrimSpace(reason)
    if reason == "" {
        return nil, fail(ErrValidation, "reason is required")
    }
    if len(reason) > 1000 {
        return nil, fail(ErrValidation, "reason must be at most 1000 characters")
    }
    res, ref, err := s.owned(ctx, code, email)
    if err != nil {
        return nil, err
    }
    err = s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        locked, err := s.Reservations.GetByIDForUpdateTx(ctx, tx, res.ID)
        if err != nil {
            return lookup(err, "reservation")
        }
        if locked.Status == model.ReservationCancelled || locked.Status == model.ReservationCompleted {
            return fail(ErrRejected, "reservation is already %s", locked.Status)
        }
        if locked.CancellationStatus == model.CancellationPendingApproval {
            return fail(ErrConflict, "a cancellation request is already pending")
        }
        return s.Reservations.RequestCancellationTx(ctx, tx, res.ID, reason, s.now())
    })
    if err != nil {
        return nil, err
    }
    s.Log.Info("cancellation requested", zap.Uint64("reservation_id", res.ID), zap.String("reference", ref))
    out, err := s.Reservations.GetByID(ctx, res.ID)
    return out, lookup(err, "reservation")
}

// ApproveCancellation cancels a reservation with a pending request.
func (s *BookingService) ApproveCancellation(ctx context.Context, id uint64) (*model.Reservation, error) {
    return s.decideCancellation(ctx, id, model.CancellationApproved, s.Reservations.ApproveCancellationTx)
}

// RejectCancellation clears the request; the main status is untouched.
func (s *BookingService) RejectCancellation(ctx context.Context, id uint64) (*model.Reservation, error) {
    return s.decideCancellation(ctx, id, model.CancellationRejected, s.Reservations.RejectCancellationTx)
}

func (s *BookingService) decideCancellation(ctx context.Context, id uint64, decision string, apply func(context.Context, *sql.Tx, uint64) error) (*model.Reservation, error) {
    err := s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        res, err := s.Reservations.GetByIDForUpdateTx(ctx, tx, id)
        if err != nil {
            return lookup(err, "reservation")
        }
        if res.CancellationStatus != model.CancellationPendingApproval {
            return fail(ErrConflict, "no pending cancellation request")
        }
        return apply(ctx, tx, id)
    })
    if err != nil {
        return nil, err
    }
    s.Log.Info("cancellation decided", zap.Uint64("reservation_id", id), zap.String("decision", decision))
    s.publish(ctx, queue.Event{Type: queue.TypeCancellationDecided, ReservationID: id, Status: decision})
    res, err := s.Reservations.GetByID(ctx, id)
    return res, lookup(err, "reservation")
}
