package model

import "time"

// Reservation status values.  StatusPending means the deposit was paid
// (through the gateway or recorded manually) and an administrator has not
// confirmed it yet.
const (
    ReservationNotPaid   = "not_paid"
    ReservationPending   = "pending"
    ReservationConfirmed = "confirmed"
    ReservationCompleted = "completed"
    ReservationCancelled = "cancelled"
)

// Cancellation workflow values stored in reservations.cancellation_status.
const (
    CancellationNone            = "none"
    CancellationPendingApproval = "pending_approval"
    CancellationApproved        = "approved"
    CancellationRejected        = "rejected"
)

// Travel types.
const (
    TravelOneWay    = "one_way"
    TravelRoundTrip = "round_trip"
)

// Reservation records a customer's charter request for a specific date.
// It is created with status not_paid and moves forward through payment
// events and admin actions.
//
// Fields:
//  ID                      – primary key identifier.
//  CustomerID              – customer who submitted the request.
//  BusID                   – assigned bus (nullable until an admin assigns one).
//  Origin, Destination     – trip endpoints.
//  DistanceKm              – trip distance (nullable; pricing assumes 100 km).
//  TripDate                – travel date (UTC midnight).
//  DepartureTime           – "HH:MM" departure.
//  ArrivalTime             – "HH:MM" arrival (nullable).
//  Passengers              – passenger count, drives the bus tier.
//  TravelType              – one_way or round_trip.
//  Status                  – see the Reservation* constants.
//  CancellationStatus      – see the Cancellation* constants.
//  CancellationReason      – customer supplied reason (nullable).
//  CancellationRequestedAt – when the cancellation was requested (nullable).
type Reservation struct {
    ID                      uint64     `json:"id"`
    CustomerID              uint64     `json:"customer_id"`
    BusID                   *uint64    `json:"bus_id,omitempty"`
    Origin                  string     `json:"origin"`
    Destination             string     `json:"destination"`
    DistanceKm              *float64   `json:"distance_km,omitempty"`
    TripDate                time.Time  `json:"trip_date"`
    DepartureTime           string     `json:"departure_time"`
    ArrivalTime             *string    `json:"arrival_time,omitempty"`
    Passengers              int        `json:"passengers"`
    TravelType              string     `json:"travel_type"`
    Status                  string     `json:"status"`
    CancellationStatus      string     `json:"cancellation_status"`
    CancellationReason      *string    `json:"cancellation_reason,omitempty"`
    CancellationRequestedAt *time.Time `json:"cancellation_requested_at,omitempty"`
    CreatedAt               time.Time  `json:"created_at"`
    UpdatedAt               time.Time  `json:"updated_at"`
}

// IsPaid reports whether the reservation has already gone through a
// payment (gateway or manual).
func (r *Reservation) IsPaid() bool {
    return r.Status == ReservationPending || r.Status == ReservationConfirmed
}

// BookingReference is the public code bound 1:1 to a reservation.
type BookingReference struct {
    ID            uint64    `json:"id"`             // booking_references.id
    ReservationID uint64    `json:"reservation_id"` // booking_references.reservation_id
    Code          string    `json:"code"`           // booking_references.code (VIO-XXXXXX)
    CreatedAt     time.Time `json:"created_at"`     // booking_references.created_at
}

// ReservationDetail aggregates everything a customer or administrator
// sees when looking up a booking.
type ReservationDetail struct {
    Reservation
    Reference string          `json:"reference"`
    Customer  Customer        `json:"customer"`
    Cost      *CalculatedCost `json:"cost,omitempty"`
    Invoice   *Invoice        `json:"invoice,omitempty"`
    Refunds   []Refund        `json:"refunds"`
}
