// Package gateway talks to the hosted payment processors.  A Gateway
// creates checkout sessions, looks them up, issues refunds and turns
// webhook deliveries into provider-neutral events.
package gateway

import (
    "context"
    "errors"
    "math"
    "net/http"
    "strings"
)

// ErrInvalidSignature is returned by ParseWebhook when the delivery does
// not carry a valid signature for the configured secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrUnsupported is returned when an operation needs data the provider
// did not give us (for example a refund without a payment id).
var ErrUnsupported = errors.New("unsupported by gateway")

// CheckoutPlaceholder is substituted by Stripe with the session id when it
// redirects back.  Other providers leave it as is, which is why the
// redirect handler treats literal placeholders as missing.
const CheckoutPlaceholder = "{CHECKOUT_SESSION_ID}"

// CheckoutRequest describes one payment attempt.
type CheckoutRequest struct {
    Reference     string
    Description   string
    Amount        float64
    Currency      string
    CustomerName  string
    CustomerEmail string
    SuccessURL    string
    CancelURL     string
}

// Checkout is the provider's view of a checkout session.
type Checkout struct {
    ID              string
    URL             string
    Status          string
    Paid            bool
    PaymentIntentID string
    PaymentID       string
}

// Settled reports whether the session may be treated as paid.  Providers
// disagree on vocabulary; active, complete and paid all count.
func (c *Checkout) Settled() bool {
    if c.Paid {
        return true
    }
    switch strings.ToLower(c.Status) {
    case "active", "complete", "completed", "paid", "succeeded":
        return true
    }
    return false
}

// RefundRequest identifies the captured payment to return money for.
type RefundRequest struct {
    PaymentIntentID string
    PaymentID       string
    Amount          float64
    Currency        string
    Reason          string
    // IdempotencyKey makes a retried request return the first refund
    // where the provider supports it.
    IdempotencyKey string
}

// RefundResult is the provider's refund record.
type RefundResult struct {
    ID     string
    Status string
}

// EventKind is the provider-neutral classification of a webhook.
type EventKind string

const (
    EventCheckoutPaid  EventKind = "checkout_paid"
    EventPaymentPaid   EventKind = "payment_paid"
    EventPaymentFailed EventKind = "payment_failed"
    EventIgnored       EventKind = "ignored"
)

// WebhookEvent carries whatever identifiers the delivery contained.
type WebhookEvent struct {
    Kind            EventKind
    Type            string
    CheckoutID      string
    PaymentIntentID string
    PaymentID       string
    Reference       string
    FailureMessage  string
}

// Gateway is implemented by each payment provider.
type Gateway interface {
    Name() string
    CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
    GetCheckout(ctx context.Context, id string) (*Checkout, error)
    Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
    ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
}

// MinorUnits converts an amount in pesos to centavos.
func MinorUnits(amount float64) int64 {
    return int64(math.Round(amount * 100))
}

// IsPlaceholder reports whether a redirect identifier is missing or still
// an unsubstituted template such as {CHECKOUT_SESSION_ID}.
func IsPlaceholder(id string) bool {
    id = strings.TrimSpace(id)
    if id == "" {
        return true
    }
    return strings.HasPrefix(id, "{") && strings.HasSuffix(id, "}")
}
