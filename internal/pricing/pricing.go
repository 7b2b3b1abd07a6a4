// Package pricing holds the charter cost rules.  Everything here is pure:
// callers fetch the reservation and the current fuel price and persist
// the resulting Breakdown themselves.
package pricing

// Bus tiers selected from the passenger count.
const (
    TierCarousel = "Carousel"
    TierTourist  = "Tourist"
    TierStandard = "Standard"
)

const (
    // PerPassenger is charged for every passenger.
    PerPassenger = 200.0
    // PerKm is the distance rate.
    PerKm = 15.0
    // DefaultDistanceKm is assumed when the reservation has no distance.
    DefaultDistanceKm = 100.0
    // DefaultFuelPrice is the price per liter used to seed an empty
    // fuel_prices table.
    DefaultFuelPrice = 65.0
    // KmPerLiter converts distance into liters for the fuel surcharge.
    KmPerLiter = 10.0
)

// Breakdown is a deterministic cost split for one reservation.
type Breakdown struct {
    Tier           string  `json:"bus_tier"`
    BusCost        float64 `json:"bus_cost"`
    PassengerCost  float64 `json:"passenger_cost"`
    DistanceKm     float64 `json:"distance_km"`
    DistanceCost   float64 `json:"distance_cost"`
    FuelPrice      float64 `json:"fuel_price_per_liter"`
    FuelSurcharge  float64 `json:"fuel_surcharge"`
    PartialPayment float64 `json:"partial_payment"`
    TotalCost      float64 `json:"total_cost"`
}

// Tier returns the bus tier and its base cost.  Bounds are inclusive and
// evaluated in order; anything outside 15..40 falls back to Standard.
func Tier(passengers int) (string, float64) {
    switch {
    case passengers >= 15 && passengers <= 25:
        return TierCarousel, 8000
    case passengers >= 26 && passengers <= 40:
        return TierTourist, 12000
    default:
        return TierStandard, 5000
    }
}

// PassengerCost is passengers * 200.
func PassengerCost(passengers int) float64 { return float64(passengers) * PerPassenger }

// DistanceCost is distance_km * 15.
func DistanceCost(distanceKm float64) float64 { return distanceKm * PerKm }

// FuelSurcharge is (distance_km / 10) * price_per_liter.
func FuelSurcharge(distanceKm, pricePerLiter float64) float64 {
    return (distanceKm / KmPerLiter) * pricePerLiter
}

// PartialPayment is the upfront deposit: bus cost plus passenger cost.
func PartialPayment(passengers int) float64 {
    _, bus := Tier(passengers)
    return PassengerCost(passengers) + bus
}

// Distance resolves an optional distance to the value used for pricing.
func Distance(distanceKm *float64) float64 {
    if distanceKm == nil {
        return DefaultDistanceKm
    }
    return *distanceKm
}

// Calculate derives the full breakdown from a passenger count, an optional
// distance and the current fuel price.
func Calculate(passengers int, distanceKm *float64, pricePerLiter float64) Breakdown {
    tier, bus := Tier(passengers)
    d := Distance(distanceKm)
    b := Breakdown{
        Tier:          tier,
        BusCost:       bus,
        PassengerCost: PassengerCost(passengers),
        DistanceKm:    d,
        DistanceCost:  DistanceCost(d),
        FuelPrice:     pricePerLiter,
        FuelSurcharge: FuelSurcharge(d, pricePerLiter),
    }
    b.PartialPayment = b.PassengerCost + b.BusCost
    b.TotalCost = b.PartialPayment + b.DistanceCost + b.FuelSurcharge
    return b
}

// Override replaces the derived distance cost and/or fuel surcharge with
// administrator supplied values and recomputes the total.  A nil override
// keeps the derived value.
func (b Breakdown) Override(distanceCost, fuelSurcharge *float64) Breakdown {
    if distanceCost != nil {
        b.DistanceCost = *distanceCost
    }
    if fuelSurcharge != nil {
        b.FuelSurcharge = *fuelSurcharge
    }
    b.TotalCost = b.PartialPayment + b.DistanceCost + b.FuelSurcharge
    return b
}
