package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/iliyamo/bus-charter-booking/internal/model"
)

// BusRepo manages persistence for the fleet.
type BusRepo struct {
    db *sql.DB
}

// NewBusRepo returns a new BusRepo bound to the given database.
func NewBusRepo(db *sql.DB) *BusRepo { return &BusRepo{db: db} }

const busColumns = `id, plate_number, bus_type, capacity, status, fuel_efficiency_km_per_l, created_at, updated_at`

func scanBus(row interface{ Scan(...any) error }) (*model.Bus, error) {
    var b model.Bus
    if err := row.Scan(&b.ID, &b.PlateNumber, &b.BusType, &b.Capacity, &b.Status, &b.FuelEfficiencyKm, &b.CreatedAt, &b.UpdatedAt); err != nil {
        return nil, notFound(err)
    }
    return &b, nil
}

// Create inserts a bus.  Plate numbers are unique; a clash returns
// ErrDuplicate.
func (r *BusRepo) Create(ctx context.Context, b *model.Bus) error {
    b.PlateNumber = strings.ToUpper(strings.TrimSpace(b.PlateNumber))
    if b.Status == "" {
        b.Status = model.BusAvailable
    }
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO buses (plate_number, bus_type, capacity, status, fuel_efficiency_km_per_l) VALUES (?, ?, ?, ?, ?)`,
        b.PlateNumber, b.BusType, b.Capacity, b.Status, b.FuelEfficiencyKm)
    if err != nil {
        if isDuplicate(err) {
            return ErrDuplicate
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    got, err := r.GetByID(ctx, uint64(id))
    if err != nil {
        return err
    }
    *b = *got
    return nil
}

// GetByID returns a bus by primary key.
func (r *BusRepo) GetByID(ctx context.Context, id uint64) (*model.Bus, error) {
    return scanBus(r.db.QueryRowContext(ctx, `SELECT `+busColumns+` FROM buses WHERE id = ?`, id))
}

// List returns all buses ordered by plate number.
func (r *BusRepo) List(ctx context.Context) ([]model.Bus, error) {
    return r.query(ctx, `SELECT `+busColumns+` FROM buses ORDER BY plate_number`)
}

// UpdateStatus changes a bus status.
func (r *BusRepo) UpdateStatus(ctx context.Context, id uint64, status string) error {
    return expectRow(r.db.ExecContext(ctx, `UPDATE buses SET status = ? WHERE id = ?`, status, id))
}

// AvailableOn lists buses whose status is available and that have no
// pending or confirmed reservation on the given date.
func (r *BusRepo) AvailableOn(ctx context.Context, date time.Time) ([]model.Bus, error) {
    const q = `SELECT ` + busColumns + ` FROM buses b
               WHERE b.status = ?
                 AND NOT EXISTS (
                     SELECT 1 FROM reservations r
                     WHERE r.bus_id = b.id AND r.trip_date = ? AND r.status IN (?, ?)
                 )
               ORDER BY b.plate_number`
    return r.query(ctx, q, model.BusAvailable, dateOnly(date), model.ReservationConfirmed, model.ReservationPending)
}

// IsAvailableOnTx applies the AvailableOn rule to a single bus, ignoring
// the reservation that is being assigned.
func (r *BusRepo) IsAvailableOnTx(ctx context.Context, tx *sql.Tx, busID uint64, date time.Time, exceptReservationID uint64) (bool, error) {
    const q = `SELECT COUNT(*) FROM buses b
               WHERE b.id = ? AND b.status = ?
                 AND NOT EXISTS (
                     SELECT 1 FROM reservations r
                     WHERE r.bus_id = b.id AND r.trip_date = ? AND r.status IN (?, ?) AND r.id <> ?
                 )`
    var n int
    err := tx.QueryRowContext(ctx, q, busID, model.BusAvailable, dateOnly(date),
        model.ReservationConfirmed, model.ReservationPending, exceptReservationID).Scan(&n)
    return n > 0, err
}

func (r *BusRepo) query(ctx context.Context, q string, args ...any) ([]model.Bus, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Bus, 0)
    for rows.Next() {
        b, err := scanBus(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *b)
    }
    return out, rows.Err()
}
