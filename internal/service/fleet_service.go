package service

import (
    "context"
    "errors"
    "strings"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/model"
    "github.com/iliyamo/bus-charter-booking/internal/repository"
)

// FleetService manages buses and their per-day availability.
type FleetService struct {
    Deps
}

func NewFleetService(d Deps) *FleetService {
    d.init()
    return &FleetService{Deps: d}
}

// BusInput is the admin form for a new bus.
type BusInput struct {
    PlateNumber      string  `json:"plate_number" validate:"required,max=20"`
    BusType          string  `json:"bus_type" validate:"required,max=50"`
    Capacity         int     `json:"capacity" validate:"required,gte=1,lte=100"`
    FuelEfficiencyKm float64 `json:"fuel_efficiency_km" validate:"omitempty,gt=0"`
    Status           string  `json:"status" validate:"omitempty,oneof=available maintenance unavailable"`
}

func validBusStatus(s string) bool {
    return s == model.BusAvailable || s == model.BusMaintenance || s == model.BusUnavailable
}

func (s *FleetService) CreateBus(ctx context.Context, in BusInput) (*model.Bus, error) {
    in.PlateNumber = strings.TrimSpace(in.PlateNumber)
    if in.PlateNumber == "" || strings.TrimSpace(in.BusType) == "" || in.Capacity < 1 {
        return nil, fail(ErrValidation, "plate_number, bus_type and a positive capacity are required")
    }
    if in.Status != "" && !validBusStatus(in.Status) {
        return nil, fail(ErrValidation, "unknown status %q", in.Status)
    }
    if in.FuelEfficiencyKm == 0 {
        in.FuelEfficiencyKm = 10
    }
    b := &model.Bus{
        PlateNumber:      in.PlateNumber,
        BusType:          strings.TrimSpace(in.BusType),
        Capacity:         in.Capacity,
        Status:           in.Status,
        FuelEfficiencyKm: in.FuelEfficiencyKm,
    }
    if err := s.Buses.Create(ctx, b); err != nil {
        if errors.Is(err, repository.ErrDuplicate) {
            return nil, fail(ErrConflict, "plate number already registered")
        }
        return nil, err
    }
    s.Log.Info("bus created", zap.Uint64("bus_id", b.ID), zap.String("plate", b.PlateNumber))
    return b, nil
}

func (s *FleetService) ListBuses(ctx context.Context) ([]model.Bus, error) {
    return s.Buses.List(ctx)
}

func (s *FleetService) UpdateBusStatus(ctx context.Context, id uint64, status string) (*model.Bus, error) {
    if !validBusStatus(status) {
        return nil, fail(ErrValidation, "unknown status %q", status)
    }
    if err := s.Buses.UpdateStatus(ctx, id, status); err != nil {
        return nil, lookup(err, "bus")
    }
    b, err := s.Buses.GetByID(ctx, id)
    return b, lookup(err, "bus")
}

// AvailableBuses lists buses in service with no paid or confirmed
// reservation on date.
func (s *FleetService) AvailableBuses(ctx context.Context, date time.Time) ([]model.Bus, error) {
    return s.Buses.AvailableOn(ctx, date.UTC().Truncate(24*time.Hour))
}
