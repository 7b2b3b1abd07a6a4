package repository

import (
    "context"
    "database/sql"
    "strings"

    "github.com/iliyamo/bus-charter-booking/internal/model"
)

// BookingReferenceRepo stores the public VIO-XXXXXX codes.
type BookingReferenceRepo struct {
    db *sql.DB
}

// NewBookingReferenceRepo returns a new BookingReferenceRepo bound to the given database.
func NewBookingReferenceRepo(db *sql.DB) *BookingReferenceRepo { return &BookingReferenceRepo{db: db} }

// CodeExistsTx reports whether a code is already taken.
func (r *BookingReferenceRepo) CodeExistsTx(ctx context.Context, tx *sql.Tx, code string) (bool, error) {
    var one int
    err := tx.QueryRowContext(ctx, `SELECT 1 FROM booking_references WHERE code = ? LIMIT 1`, code).Scan(&one)
    if err == sql.ErrNoRows {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}

// CreateTx binds code to a reservation.  A concurrent insert of the same
// code surfaces as ErrDuplicate so the caller can retry with a new one.
func (r *BookingReferenceRepo) CreateTx(ctx context.Context, tx *sql.Tx, reservationID uint64, code string) (*model.BookingReference, error) {
    res, err := tx.ExecContext(ctx, `INSERT INTO booking_references (reservation_id, code) VALUES (?, ?)`, reservationID, code)
    if err != nil {
        if isDuplicate(err) {
            return nil, ErrDuplicate
        }
        return nil, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, err
    }
    ref := &model.BookingReference{ID: uint64(id), ReservationID: reservationID, Code: code}
    err = tx.QueryRowContext(ctx, `SELECT created_at FROM booking_references WHERE id = ?`, id).Scan(&ref.CreatedAt)
    return ref, err
}

// GetByCode returns the reference row for a public code.  Codes are
// matched case-insensitively.
func (r *BookingReferenceRepo) GetByCode(ctx context.Context, code string) (*model.BookingReference, error) {
    code = strings.ToUpper(strings.TrimSpace(code))
    var ref model.BookingReference
    err := r.db.QueryRowContext(ctx,
        `SELECT id, reservation_id, code, created_at FROM booking_references WHERE code = ? LIMIT 1`, code,
    ).Scan(&ref.ID, &ref.ReservationID, &ref.Code, &ref.CreatedAt)
    if err != nil {
        return nil, notFound(err)
    }
    return &ref, nil
}

// GetByReservationID returns the reference bound to a reservation.
func (r *BookingReferenceRepo) GetByReservationID(ctx context.Context, reservationID uint64) (*model.BookingReference, error) {
    var ref model.BookingReference
    err := r.db.QueryRowContext(ctx,
        `SELECT id, reservation_id, code, created_at FROM booking_references WHERE reservation_id = ? LIMIT 1`, reservationID,
    ).Scan(&ref.ID, &ref.ReservationID, &ref.Code, &ref.CreatedAt)
    if err != nil {
        return nil, notFound(err)
    }
    return &ref, nil
}
