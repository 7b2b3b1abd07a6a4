package service

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/model"
    "github.com/iliyamo/bus-charter-booking/internal/pricing"
    "github.com/iliyamo/bus-charter-booking/internal/repository"
)

// CostService turns reservations into calculated costs and manages the
// fuel price table the surcharge depends on.
type CostService struct {
    Deps
}

// NewCostService returns a CostService.
func NewCostService(d Deps) *CostService {
    d.init()
    return &CostService{Deps: d}
}

// AdjustInput holds an administrator's manual cost changes.  Nil fields
// keep the derived value.
type AdjustInput struct {
    DistanceKm    *float64 `json:"distance_km" validate:"omitempty,gte=0"`
    DistanceCost  *float64 `json:"distance_cost" validate:"omitempty,gte=0"`
    FuelSurcharge *float64 `json:"fuel_surcharge" validate:"omitempty,gte=0"`
}

// CurrentFuelPrice returns the latest fuel price.  An empty table is
// seeded with the default price so pricing never stalls.
func (s *CostService) CurrentFuelPrice(ctx context.Context) (*model.FuelPrice, error) {
    fp, err := s.FuelPrices.Current(ctx)
    if err == nil {
        return fp, nil
    }
    if !errors.Is(err, repository.ErrNotFound) {
        return nil, fmt.Errorf("load fuel price: %w", err)
    }
    s.Log.Warn("no fuel price recorded, seeding default", zap.Float64("price_per_liter", pricing.DefaultFuelPrice))
    fp, err = s.FuelPrices.Create(ctx, pricing.DefaultFuelPrice, s.now())
    if err != nil {
        return nil, fmt.Errorf("seed fuel price: %w", err)
    }
    return fp, nil
}

// Quote estimates the cost of a trip without persisting anything.
func (s *CostService) Quote(ctx context.Context, passengers int, distanceKm *float64) (*pricing.Breakdown, error) {
    if passengers < 1 {
        return nil, fail(ErrValidation, "passengers must be at least 1")
    }
    if distanceKm != nil && *distanceKm < 0 {
        return nil, fail(ErrValidation, "distance_km must not be negative")
    }
    fp, err := s.CurrentFuelPrice(ctx)
    if err != nil {
        return nil, err
    }
    b := pricing.Calculate(passengers, distanceKm, fp.PricePerLiter)
    return &b, nil
}

// Calculate derives the cost of a reservation from its passenger count,
// its distance and the current fuel price, and stores it as the
// reservation's only calculated cost.
func (s *CostService) Calculate(ctx context.Context, reservationID uint64) (*model.CalculatedCost, error) {
    res, err := s.Reservations.GetByID(ctx, reservationID)
    if err != nil {
        return nil, lookup(err, "reservation")
    }
    fp, err := s.CurrentFuelPrice(ctx)
    if err != nil {
        return nil, err
    }
    c := costRow(res.ID, fp.ID, pricing.Calculate(res.Passengers, res.DistanceKm, fp.PricePerLiter))
    if err := s.Costs.Upsert(ctx, c); err != nil {
        return nil, fmt.Errorf("store cost: %w", err)
    }
    return c, nil
}

// CalculateByReference is the customer-facing recalculation.  Once the
// deposit is paid the stored cost is frozen for the customer.
func (s *CostService) CalculateByReference(ctx context.Context, code string) (*model.CalculatedCost, error) {
    ref, err := s.References.GetByCode(ctx, code)
    if err != nil {
        return nil, lookup(err, "reservation")
    }
    res, err := s.Reservations.GetByID(ctx, ref.ReservationID)
    if err != nil {
        return nil, lookup(err, "reservation")
    }
    if res.Status != model.ReservationNotPaid {
        return nil, fail(ErrRejected, "cost can no longer be recalculated for a %s reservation", res.Status)
    }
    return s.Calculate(ctx, res.ID)
}

// Adjust applies an administrator's overrides.  A new distance is stored
// on the reservation and re-derives the distance cost and surcharge unless
// those are overridden too; the total is always recomputed.
func (s *CostService) Adjust(ctx context.Context, reservationID uint64, in AdjustInput) (*model.CalculatedCost, error) {
    for name, v := range map[string]*float64{"distance_km": in.DistanceKm, "distance_cost": in.DistanceCost, "fuel_surcharge": in.FuelSurcharge} {
        if v != nil && *v < 0 {
            return nil, fail(ErrValidation, "%s must not be negative", name)
        }
    }
    fp, err := s.adjustmentFuelPrice(ctx, reservationID)
    if err != nil {
        return nil, err
    }
    var out *model.CalculatedCost
    err = s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        res, err := s.Reservations.GetByIDForUpdateTx(ctx, tx, reservationID)
        if err != nil {
            return lookup(err, "reservation")
        }
        if in.DistanceKm != nil {
            if err := s.Reservations.UpdateDistanceTx(ctx, tx, res.ID, *in.DistanceKm); err != nil {
                return err
            }
            res.DistanceKm = in.DistanceKm
        }
        b := pricing.Calculate(res.Passengers, res.DistanceKm, fp.PricePerLiter).Override(in.DistanceCost, in.FuelSurcharge)
        out = costRow(res.ID, fp.ID, b)
        return s.Costs.UpsertTx(ctx, tx, out)
    })
    if err != nil {
        return nil, err
    }
    s.Log.Info("cost adjusted", zap.Uint64("reservation_id", reservationID), zap.Float64("total_cost", out.TotalCost))
    return out, nil
}

// adjustmentFuelPrice keeps the fuel price an existing cost was computed
// with, so an adjustment does not silently reprice the surcharge.
func (s *CostService) adjustmentFuelPrice(ctx context.Context, reservationID uint64) (*model.FuelPrice, error) {
    existing, err := s.Costs.GetByReservationID(ctx, reservationID)
    switch {
    case err == nil:
        fp, err := s.FuelPrices.GetByID(ctx, existing.FuelPriceID)
        if err == nil {
            return fp, nil
        }
        if !errors.Is(err, repository.ErrNotFound) {
            return nil, err
        }
    case !errors.Is(err, repository.ErrNotFound):
        return nil, err
    }
    return s.CurrentFuelPrice(ctx)
}

// SetFuelPrice records a new price effective from now.
func (s *CostService) SetFuelPrice(ctx context.Context, pricePerLiter float64) (*model.FuelPrice, error) {
    if pricePerLiter <= 0 {
        return nil, fail(ErrValidation, "price_per_liter must be greater than zero")
    }
    return s.FuelPrices.Create(ctx, pricePerLiter, s.now())
}

// ListFuelPrices returns the price history, newest first.
func (s *CostService) ListFuelPrices(ctx context.Context, limit int) ([]model.FuelPrice, error) {
    return s.FuelPrices.List(ctx, limit)
}

func costRow(reservationID, fuelPriceID uint64, b pricing.Breakdown) *model.CalculatedCost {
    return &model.CalculatedCost{
        ReservationID:  reservationID,
        FuelPriceID:    fuelPriceID,
        BusTier:        b.Tier,
        BusCost:        b.BusCost,
        PassengerCost:  b.PassengerCost,
        DistanceCost:   b.DistanceCost,
        FuelSurcharge:  b.FuelSurcharge,
        PartialPayment: b.PartialPayment,
        TotalCost:      b.TotalCost,
    }
}
