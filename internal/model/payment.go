package model

import "time"

// Invoice status values.
const (
    InvoiceAwaitingPayment = "awaiting_payment"
    InvoicePending         = "pending"
    InvoicePaid            = "paid"
    InvoiceConfirmed       = "confirmed"
    InvoiceRefunded        = "refunded"
)

// Payment methods recorded on an invoice.  MethodGateway is used for
// checkouts; the rest are recorded by administrators for offline payments.
const (
    MethodGateway      = "gateway"
    MethodCash         = "cash"
    MethodBankTransfer = "bank_transfer"
    MethodGCash        = "gcash"
    MethodOther        = "other"
)

// Refund status values.  approved and rejected are terminal.
const (
    RefundPending  = "pending"
    RefundApproved = "approved"
    RefundRejected = "rejected"
)

// CalculatedCost holds the currently valid cost breakdown of a
// reservation.  There is at most one row per reservation and it is
// overwritten whenever the cost is recalculated or adjusted.
//
// Fields:
//  ReservationID  – reservation this cost belongs to (unique).
//  FuelPriceID    – fuel price record used for the surcharge.
//  BusTier        – Carousel, Tourist or Standard.
//  PartialPayment – bus + passenger cost, what the customer pays upfront.
//  TotalCost      – PartialPayment + DistanceCost + FuelSurcharge.
type CalculatedCost struct {
    ID             uint64    `json:"id"`
    ReservationID  uint64    `json:"reservation_id"`
    FuelPriceID    uint64    `json:"fuel_price_id"`
    BusTier        string    `json:"bus_tier"`
    BusCost        float64   `json:"bus_cost"`
    PassengerCost  float64   `json:"passenger_cost"`
    DistanceCost   float64   `json:"distance_cost"`
    FuelSurcharge  float64   `json:"fuel_surcharge"`
    PartialPayment float64   `json:"partial_payment"`
    TotalCost      float64   `json:"total_cost"`
    CreatedAt      time.Time `json:"created_at"`
    UpdatedAt      time.Time `json:"updated_at"`
}

// Invoice is the payment record of a calculated cost.  External
// identifiers are nullable because manual payments never touch the
// gateway.
type Invoice struct {
    ID                uint64     `json:"id"`
    CalculatedCostID  uint64     `json:"calculated_cost_id"`
    Gateway           *string    `json:"gateway,omitempty"`
    CheckoutSessionID *string    `json:"checkout_session_id,omitempty"`
    CheckoutURL       *string    `json:"checkout_url,omitempty"`
    PaymentIntentID   *string    `json:"payment_intent_id,omitempty"`
    PaymentID         *string    `json:"payment_id,omitempty"`
    RefundID          *string    `json:"refund_id,omitempty"`
    PaymentMethod     string     `json:"payment_method"`
    Amount            float64    `json:"amount"`
    Currency          string     `json:"currency"`
    Status            string     `json:"status"`
    PaidAt            *time.Time `json:"paid_at,omitempty"`
    ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
    RefundedAt        *time.Time `json:"refunded_at,omitempty"`
    CreatedAt         time.Time  `json:"created_at"`
    UpdatedAt         time.Time  `json:"updated_at"`
}

// ViaGateway reports whether the money went through the payment gateway
// and can therefore be refunded there.
func (i *Invoice) ViaGateway() bool {
    if i.PaymentMethod != MethodGateway {
        return false
    }
    return (i.PaymentID != nil && *i.PaymentID != "") || (i.PaymentIntentID != nil && *i.PaymentIntentID != "")
}

// Refund is a customer request to get the deposit back, reviewed by an
// administrator.
type Refund struct {
    ID               uint64     `json:"id"`
    CalculatedCostID uint64     `json:"calculated_cost_id"`
    InvoiceID        uint64     `json:"invoice_id"`
    Reason           string     `json:"reason"`
    Amount           float64    `json:"amount"`
    Status           string     `json:"status"`
    ExternalRefundID *string    `json:"external_refund_id,omitempty"`
    AdminNotes       *string    `json:"admin_notes,omitempty"`
    ProcessedAt      *time.Time `json:"processed_at,omitempty"`
    CreatedAt        time.Time  `json:"created_at"`
    UpdatedAt        time.Time  `json:"updated_at"`
}
