package gateway

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"

    "github.com/stripe/stripe-go/v76"
    "github.com/stripe/stripe-go/v76/client"
    "github.com/stripe/stripe-go/v76/webhook"
)

// Stripe implements Gateway with Stripe Checkout.
type Stripe struct {
    api           *client.API
    webhookSecret string
}

// NewStripe builds a Stripe gateway bound to its own API client so the
// package-level stripe.Key is never touched.
func NewStripe(secretKey, webhookSecret string) *Stripe {
    return &Stripe{api: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
    currency := strings.ToLower(req.Currency)
    if currency == "" {
        currency = "php"
    }
    params := &stripe.CheckoutSessionParams{
        Params:            stripe.Params{Context: ctx},
        Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
        SuccessURL:        stripe.String(req.SuccessURL),
        CancelURL:         stripe.String(req.CancelURL),
        ClientReferenceID: stripe.String(req.Reference),
        LineItems: []*stripe.CheckoutSessionLineItemParams{{
            Quantity: stripe.Int64(1),
            PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
                Currency:   stripe.String(currency),
                UnitAmount: stripe.Int64(MinorUnits(req.Amount)),
                ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
                    Name: stripe.String(req.Description),
                },
            },
        }},
    }
    if req.CustomerEmail != "" {
        params.CustomerEmail = stripe.String(req.CustomerEmail)
    }
    params.AddMetadata("reference", req.Reference)
    sess, err := s.api.CheckoutSessions.New(params)
    if err != nil {
        return nil, fmt.Errorf("stripe create checkout: %w", err)
    }
    return stripeCheckout(sess), nil
}

func (s *Stripe) GetCheckout(ctx context.Context, id string) (*Checkout, error) {
    sess, err := s.api.CheckoutSessions.Get(id, &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}})
    if err != nil {
        return nil, fmt.Errorf("stripe get checkout: %w", err)
    }
    return stripeCheckout(sess), nil
}

func stripeCheckout(sess *stripe.CheckoutSession) *Checkout {
    c := &Checkout{
        ID:     sess.ID,
        URL:    sess.URL,
        Status: string(sess.Status),
        Paid:   sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
    }
    if sess.PaymentIntent != nil {
        c.PaymentIntentID = sess.PaymentIntent.ID
    }
    return c
}

// Refund refunds by payment intent, falling back to the charge id.
func (s *Stripe) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
    params := &stripe.RefundParams{
        Params: stripe.Params{Context: ctx},
        Reason: stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
    }
    switch {
    case req.PaymentIntentID != "":
        params.PaymentIntent = stripe.String(req.PaymentIntentID)
    case req.PaymentID != "":
        params.Charge = stripe.String(req.PaymentID)
    default:
        return nil, fmt.Errorf("stripe refund: no payment reference: %w", ErrUnsupported)
    }
    if req.Amount > 0 {
        params.Amount = stripe.Int64(MinorUnits(req.Amount))
    }
    if req.Reason != "" {
        params.AddMetadata("reason", truncate(req.Reason, 500))
    }
    if req.IdempotencyKey != "" {
        params.IdempotencyKey = stripe.String(req.IdempotencyKey)
    }
    r, err := s.api.Refunds.New(params)
    if err != nil {
        return nil, fmt.Errorf("stripe refund: %w", err)
    }
    return &RefundResult{ID: r.ID, Status: string(r.Status)}, nil
}

// ParseWebhook verifies the Stripe-Signature header when a secret is set
// and maps the event to a WebhookEvent.
func (s *Stripe) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
    var evt stripe.Event
    if s.webhookSecret != "" {
        var err error
        evt, err = webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), s.webhookSecret,
            webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
        if err != nil {
            return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
        }
    } else if err := json.Unmarshal(payload, &evt); err != nil {
        return nil, fmt.Errorf("stripe webhook: %w", err)
    }
    return stripeEvent(evt)
}

func stripeEvent(evt stripe.Event) (*WebhookEvent, error) {
    ev := &WebhookEvent{Type: string(evt.Type), Kind: EventIgnored}
    if evt.Data == nil {
        return ev, nil
    }
    switch evt.Type {
    case "checkout.session.completed", "checkout.session.async_payment_succeeded":
        var sess stripe.CheckoutSession
        if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
            return nil, fmt.Errorf("stripe webhook session: %w", err)
        }
        if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
            return ev, nil
        }
        ev.Kind = EventCheckoutPaid
        ev.CheckoutID = sess.ID
        ev.Reference = sess.ClientReferenceID
        if sess.PaymentIntent != nil {
            ev.PaymentIntentID = sess.PaymentIntent.ID
        }
    case "payment_intent.succeeded", "payment_intent.payment_failed":
        var pi stripe.PaymentIntent
        if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
            return nil, fmt.Errorf("stripe webhook intent: %w", err)
        }
        ev.Kind = EventPaymentPaid
        ev.PaymentIntentID = pi.ID
        if pi.LatestCharge != nil {
            ev.PaymentID = pi.LatestCharge.ID
        }
        if evt.Type == "payment_intent.payment_failed" {
            ev.Kind = EventPaymentFailed
            if pi.LastPaymentError != nil {
                ev.FailureMessage = pi.LastPaymentError.Msg
            }
        }
    }
    return ev, nil
}
