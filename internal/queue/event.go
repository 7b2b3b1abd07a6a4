// Package queue defines the domain events exchanged over RabbitMQ, the
// publisher used by the API and the consumer run by cmd/consumer.
package queue

import "time"

// Event types published on the booking.events queue.
const (
    TypeReservationCreated  = "reservation.created"
    TypePaymentPaid         = "payment.paid"
    TypePaymentConfirmed    = "payment.confirmed"
    TypeRefundRequested     = "refund.requested"
    TypeRefundProcessed     = "refund.processed"
    TypeCancellationDecided = "cancellation.decided"
)

// Event is the envelope of every message.  Fields that do not apply to a
// given type are omitted.  It carries enough for downstream consumers to
// log or notify without querying the primary database.
type Event struct {
    Type          string    `json:"type"`
    OccurredAt    time.Time `json:"occurred_at"`
    ReservationID uint64    `json:"reservation_id"`
    Reference     string    `json:"reference,omitempty"`
    InvoiceID     uint64    `json:"invoice_id,omitempty"`
    RefundID      uint64    `json:"refund_id,omitempty"`
    Amount        float64   `json:"amount,omitempty"`
    Status        string    `json:"status,omitempty"`
    Source        string    `json:"source,omitempty"` // redirect, webhook, manual, admin
    Note          string    `json:"note,omitempty"`
}
