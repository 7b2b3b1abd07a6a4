package repository

import (
    "context"
    "database/sql"

    "github.com/iliyamo/bus-charter-booking/internal/model"
)

// CostRepo stores the single calculated_costs row of each reservation.
type CostRepo struct {
    db *sql.DB
}

// NewCostRepo returns a new CostRepo bound to the given database.
func NewCostRepo(db *sql.DB) *CostRepo { return &CostRepo{db: db} }

const costColumns = `id, reservation_id, fuel_price_id, bus_tier, bus_cost, passenger_cost, distance_cost,
    fuel_surcharge, partial_payment, total_cost, created_at, updated_at`

func scanCost(row interface{ Scan(...any) error }) (*model.CalculatedCost, error) {
    var c model.CalculatedCost
    err := row.Scan(&c.ID, &c.ReservationID, &c.FuelPriceID, &c.BusTier, &c.BusCost, &c.PassengerCost,
        &c.DistanceCost, &c.FuelSurcharge, &c.PartialPayment, &c.TotalCost, &c.CreatedAt, &c.UpdatedAt)
    if err != nil {
        return nil, notFound(err)
    }
    return &c, nil
}

// GetByReservationID returns the cost of a reservation.
func (r *CostRepo) GetByReservationID(ctx context.Context, reservationID uint64) (*model.CalculatedCost, error) {
    return scanCost(r.db.QueryRowContext(ctx, `SELECT `+costColumns+` FROM calculated_costs WHERE reservation_id = ?`, reservationID))
}

// GetByReservationIDTx is GetByReservationID inside a transaction.
func (r *CostRepo) GetByReservationIDTx(ctx context.Context, tx *sql.Tx, reservationID uint64) (*model.CalculatedCost, error) {
    return scanCost(tx.QueryRowContext(ctx, `SELECT `+costColumns+` FROM calculated_costs WHERE reservation_id = ?`, reservationID))
}

// GetByID returns a cost row by primary key.
func (r *CostRepo) GetByID(ctx context.Context, id uint64) (*model.CalculatedCost, error) {
    return scanCost(r.db.QueryRowContext(ctx, `SELECT `+costColumns+` FROM calculated_costs WHERE id = ?`, id))
}

// Upsert creates the cost row of a reservation or overwrites the existing
// one.  The stored row is read back into c.
func (r *CostRepo) Upsert(ctx context.Context, c *model.CalculatedCost) error {
    return upsertCost(ctx, r.db, c)
}

// UpsertTx is Upsert inside a transaction.
func (r *CostRepo) UpsertTx(ctx context.Context, tx *sql.Tx, c *model.CalculatedCost) error {
    return upsertCost(ctx, tx, c)
}

func upsertCost(ctx context.Context, q DBTX, c *model.CalculatedCost) error {
    const ins = `INSERT INTO calculated_costs
                 (reservation_id, fuel_price_id, bus_tier, bus_cost, passenger_cost, distance_cost,
                  fuel_surcharge, partial_payment, total_cost)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
                 ON DUPLICATE KEY UPDATE
                     fuel_price_id = VALUES(fuel_price_id),
                     bus_tier = VALUES(bus_tier),
                     bus_cost = VALUES(bus_cost),
                     passenger_cost = VALUES(passenger_cost),
                     distance_cost = VALUES(distance_cost),
                     fuel_surcharge = VALUES(fuel_surcharge),
                     partial_payment = VALUES(partial_payment),
                     total_cost = VALUES(total_cost)`
    if _, err := q.ExecContext(ctx, ins, c.ReservationID, c.FuelPriceID, c.BusTier, c.BusCost, c.PassengerCost,
        c.DistanceCost, c.FuelSurcharge, c.PartialPayment, c.TotalCost); err != nil {
        return err
    }
    got, err := scanCost(q.QueryRowContext(ctx, `SELECT `+costColumns+` FROM calculated_costs WHERE reservation_id = ?`, c.ReservationID))
    if err != nil {
        return err
    }
    *c = *got
    return nil
}
