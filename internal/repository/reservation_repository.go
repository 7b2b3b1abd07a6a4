package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/iliyamo/bus-charter-booking/internal/model"
)

// ReservationRepo provides CRUD operations for reservations.  All
// timestamp fields are stored in UTC; trip_date is a DATE column.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, customer_id, bus_id, origin, destination, distance_km, trip_date,
    departure_time, arrival_time, passengers, travel_type, status, cancellation_status,
    cancellation_reason, cancellation_requested_at, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
    var res model.Reservation
    var busID sql.NullInt64
    var distance sql.NullFloat64
    var arrival, reason sql.NullString
    var requestedAt sql.NullTime
    err := row.Scan(
        &res.ID, &res.CustomerID, &busID, &res.Origin, &res.Destination, &distance, &res.TripDate,
        &res.DepartureTime, &arrival, &res.Passengers, &res.TravelType, &res.Status, &res.CancellationStatus,
        &reason, &requestedAt, &res.CreatedAt, &res.UpdatedAt,
    )
    if err != nil {
        return nil, notFound(err)
    }
    res.BusID = uintPtr(busID)
    res.DistanceKm = floatPtr(distance)
    res.ArrivalTime = strPtr(arrival)
    res.CancellationReason = strPtr(reason)
    res.CancellationRequestedAt = timePtr(requestedAt)
    res.TripDate = res.TripDate.UTC()
    return &res, nil
}

// CreateTx inserts a new reservation within the scope of an existing
// transaction and populates the generated ID and defaults on res.  The
// caller must commit or roll back the transaction.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
    if res.Status == "" {
        res.Status = model.ReservationNotPaid
    }
    const q = `INSERT INTO reservations
               (customer_id, origin, destination, distance_km, trip_date, departure_time, arrival_time,
                passengers, travel_type, status)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    result, err := tx.ExecContext(ctx, q,
        res.CustomerID, res.Origin, res.Destination, nullFloat(res.DistanceKm), dateOnly(res.TripDate),
        res.DepartureTime, nullStr(res.ArrivalTime), res.Passengers, res.TravelType, res.Status,
    )
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    // Query back the full row to populate timestamps and defaults
    got, err := scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
    if err != nil {
        return err
    }
    *res = *got
    return nil
}

// GetByID returns a reservation by primary key.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
    return scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
}

// GetByIDForUpdateTx loads a reservation and locks its row until the
// transaction ends.
func (r *ReservationRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
    return scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id))
}

// ReservationFilter narrows List.  Zero values are ignored.
type ReservationFilter struct {
    Status   string
    TripDate *time.Time
    Limit    int
}

// List returns reservations ordered by trip date then creation time,
// newest first.  When no reservations match, an empty slice is returned.
func (r *ReservationRepo) List(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
    var where []string
    var args []any
    if f.Status != "" {
        where = append(where, "status = ?")
        args = append(args, f.Status)
    }
    if f.TripDate != nil {
        where = append(where, "trip_date = ?")
        args = append(args, dateOnly(*f.TripDate))
    }
    q := `SELECT ` + reservationColumns + ` FROM reservations`
    if len(where) > 0 {
        q += ` WHERE ` + strings.Join(where, " AND ")
    }
    q += ` ORDER BY trip_date DESC, created_at DESC`
    limit := f.Limit
    if limit <= 0 || limit > 500 {
        limit = 100
    }
    q += ` LIMIT ?`
    args = append(args, limit)

    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Reservation, 0)
    for rows.Next() {
        res, err := scanReservation(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *res)
    }
    return out, rows.Err()
}

// UpdateStatusTx sets the reservation status.  It returns ErrNotFound
// when no such reservation exists.
func (r *ReservationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string) error {
    return expectRow(tx.ExecContext(ctx, `UPDATE reservations SET status = ? WHERE id = ?`, status, id))
}

// UpdateDistanceTx stores a new trip distance (admin cost adjustment).
func (r *ReservationRepo) UpdateDistanceTx(ctx context.Context, tx *sql.Tx, id uint64, distanceKm float64) error {
    return expectRow(tx.ExecContext(ctx, `UPDATE reservations SET distance_km = ? WHERE id = ?`, distanceKm, id))
}

// AssignBusTx binds a bus to the reservation.
func (r *ReservationRepo) AssignBusTx(ctx context.Context, tx *sql.Tx, id, busID uint64) error {
    return expectRow(tx.ExecContext(ctx, `UPDATE reservations SET bus_id = ? WHERE id = ?`, busID, id))
}

// RequestCancellationTx records a customer's cancellation reason and puts
// the reservation into pending_approval.
func (r *ReservationRepo) RequestCancellationTx(ctx context.Context, tx *sql.Tx, id uint64, reason string, at time.Time) error {
    const q = `UPDATE reservations
               SET cancellation_status = ?, cancellation_reason = ?, cancellation_requested_at = ?
               WHERE id = ?`
    return expectRow(tx.ExecContext(ctx, q, model.CancellationPendingApproval, reason, at.UTC(), id))
}

// ApproveCancellationTx cancels the reservation and closes the request.
func (r *ReservationRepo) ApproveCancellationTx(ctx context.Context, tx *sql.Tx, id uint64) error {
    const q = `UPDATE reservations SET status = ?, cancellation_status = ? WHERE id = ?`
    return expectRow(tx.ExecContext(ctx, q, model.ReservationCancelled, model.CancellationApproved, id))
}

// RejectCancellationTx clears the request fields.  The main status is not
// touched so the reservation returns to where it was before the request.
func (r *ReservationRepo) RejectCancellationTx(ctx context.Context, tx *sql.Tx, id uint64) error {
    const q = `UPDATE reservations
               SET cancellation_status = ?, cancellation_reason = NULL, cancellation_requested_at = NULL
               WHERE id = ?`
    return expectRow(tx.ExecContext(ctx, q, model.CancellationRejected, id))
}

// Delete removes a reservation.  Foreign keys cascade to its booking
// reference, calculated cost, invoice and refunds.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
    return expectRow(r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id))
}

// expectRow converts an Exec result that matched no rows into ErrNotFound.
// The DSN sets clientFoundRows so RowsAffected counts matched rows, not
// changed ones.
func expectRow(res sql.Result, err error) error {
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrNotFound
    }
    return nil
}
