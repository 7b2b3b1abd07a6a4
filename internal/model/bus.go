package model

import "time"

// Bus status values.
const (
    BusAvailable   = "available"
    BusMaintenance = "maintenance"
    BusUnavailable = "unavailable"
)

// Bus is a single unit of the fleet.  Availability for a particular day is
// derived from Status and from reservations assigned to it, it is never
// stored.
type Bus struct {
    ID               uint64    `json:"id"`                 // buses.id
    PlateNumber      string    `json:"plate_number"`       // buses.plate_number
    BusType          string    `json:"bus_type"`           // buses.bus_type
    Capacity         int       `json:"capacity"`           // buses.capacity
    Status           string    `json:"status"`             // buses.status
    FuelEfficiencyKm float64   `json:"fuel_efficiency_km"` // buses.fuel_efficiency_km_per_l
    CreatedAt        time.Time `json:"created_at"`
    UpdatedAt        time.Time `json:"updated_at"`
}

// FuelPrice is an immutable price-per-liter record.  A new price is a new
// row; the current price is the one with the latest DateEffective.
type FuelPrice struct {
    ID            uint64    `json:"id"`
    PricePerLiter float64   `json:"price_per_liter"`
    DateEffective time.Time `json:"date_effective"`
    CreatedAt     time.Time `json:"created_at"`
}
