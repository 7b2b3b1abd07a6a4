package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/bus-charter-booking/internal/model"
)

// FuelPriceRepo reads and appends fuel price records.  Rows are never
// updated.
type FuelPriceRepo struct {
    db *sql.DB
}

// NewFuelPriceRepo returns a new FuelPriceRepo bound to the given database.
func NewFuelPriceRepo(db *sql.DB) *FuelPriceRepo { return &FuelPriceRepo{db: db} }

func scanFuelPrice(row interface{ Scan(...any) error }) (*model.FuelPrice, error) {
    var f model.FuelPrice
    if err := row.Scan(&f.ID, &f.PricePerLiter, &f.DateEffective, &f.CreatedAt); err != nil {
        return nil, notFound(err)
    }
    return &f, nil
}

// Current returns the record with the most recent date_effective.
func (r *FuelPriceRepo) Current(ctx context.Context) (*model.FuelPrice, error) {
    return scanFuelPrice(r.db.QueryRowContext(ctx,
        `SELECT id, price_per_liter, date_effective, created_at FROM fuel_prices
         ORDER BY date_effective DESC, id DESC LIMIT 1`))
}

// GetByID returns a fuel price by primary key.
func (r *FuelPriceRepo) GetByID(ctx context.Context, id uint64) (*model.FuelPrice, error) {
    return scanFuelPrice(r.db.QueryRowContext(ctx,
        `SELECT id, price_per_liter, date_effective, created_at FROM fuel_prices WHERE id = ?`, id))
}

// Create appends a new price effective from the given time.
func (r *FuelPriceRepo) Create(ctx context.Context, pricePerLiter float64, effective time.Time) (*model.FuelPrice, error) {
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO fuel_prices (price_per_liter, date_effective) VALUES (?, ?)`, pricePerLiter, effective.UTC())
    if err != nil {
        return nil, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, err
    }
    return r.GetByID(ctx, uint64(id))
}

// List returns the most recent records first.
func (r *FuelPriceRepo) List(ctx context.Context, limit int) ([]model.FuelPrice, error) {
    if limit <= 0 || limit > 200 {
        limit = 50
    }
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, price_per_liter, date_effective, created_at FROM fuel_prices
         ORDER BY date_effective DESC, id DESC LIMIT ?`, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.FuelPrice, 0)
    for rows.Next() {
        f, err := scanFuelPrice(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *f)
    }
    return out, rows.Err()
}
