package service

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/bus-charter-booking/internal/gateway"
    "github.com/iliyamo/bus-charter-booking/internal/model"
    "github.com/iliyamo/bus-charter-booking/internal/queue"
)

func TestCreateCheckoutPersistsAwaitingInvoice(t *testing.T) {
    h := newHarness(t)
    h.withFuel(t, 65)
    d := h.book(t, 20, km(100))

    co, state := h.checkout(t, d.Reference)

    assert.Equal(t, 12000.0, co.Amount)
    assert.Equal(t, "cs_test_1", co.CheckoutID)
    assert.NotEmpty(t, state)
    req := h.gw.lastRequest
    assert.Equal(t, "maria@example.com", req.CustomerEmail)
    assert.True(t, strings.HasPrefix(req.SuccessURL, "https://api.example/v1/payments/success?"))
    assert.True(t, strings.HasSuffix(req.SuccessURL, "&checkout_id="+gateway.CheckoutPlaceholder))
    assert.Contains(t, req.CancelURL, "reference="+d.Reference)

    inv := h.invoice(t, co.InvoiceID)
    assert.Equal(t, model.InvoiceAwaitingPayment, inv.Status)
    assert.Equal(t, "cs_test_1", *inv.CheckoutSessionID)
    assert.Equal(t, model.MethodGateway, inv.PaymentMethod)

    id, err := h.states.Get(context.Background(), state)
    require.NoError(t, err)
    assert.Equal(t, "cs_test_1", id)
}

func TestCreateCheckoutRepeatRefreshesInvoice(t *testing.T) {
    h := newHarness(t)
    d := h.book(t, 10, nil)

    first, _ := h.checkout(t, d.Reference)
    second, _ := h.checkout(t, d.Reference)

    assert.Equal(t, first.InvoiceID, second.InvoiceID)
    assert.Equal(t, "cs_test_2", *h.invoice(t, first.InvoiceID).CheckoutSessionID)
}

func TestCreateCheckoutGatewayErrorPersistsNothing(t *testing.T) {
    h := newHarness(t)
    d := h.book(t, 10, nil)
    h.gw.createErr = errors.New("503 upstream")

    _, err := h.payments.CreateCheckout(context.Background(), d.Reference, "")
    assert.ErrorIs(t, err, ErrGateway)
    assert.Empty(t, h.db.invoices)
}

func TestCreateCheckoutRejections(t *testing.T) {
    h := newHarness(t)
    d := h.book(t, 10, nil)
    ctx := context.Background()

    _, err := h.payments.CreateCheckout(ctx, d.Reference, "not-an-email")
    assert.ErrorIs(t, err, ErrValidation)

    _, err = h.payments.CreateCheckout(ctx, "VIO-NOPE00", "")
    assert.ErrorIs(t, err, ErrNotFound)

    for _, status := range []string{model.ReservationPending, model.ReservationConfirmed, model.ReservationCancelled} {
        _, err = h.bookings.UpdateStatus(ctx, d.ID, status)
        require.NoError(t, err)
        _, err = h.payments.CreateCheckout(ctx, d.Reference, "")
        assert.ErrorIs(t, err, ErrRejected, status)
    }
    assert.Zero(t, h.gw.checkouts)
}

func TestWebhookBeforeRedirectMarksPaidOnce(t *testing.T) {
    h := newHarness(t)
    h.withFuel(t, 65)
    d := h.book(t, 20, km(100))
    co, state := h.checkout(t, d.Reference)
    ctx := context.Background()

    h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventCheckoutPaid, Type: "checkout_session.payment.paid",
        CheckoutID: co.CheckoutID, PaymentIntentID: "pi_1", PaymentID: "pay_1"}
    require.NoError(t, h.payments.HandleWebhook(ctx, []byte(`{}`), nil))

    h.gw.session = &gateway.Checkout{Status: "paid", Paid: true, PaymentIntentID: "pi_1"}
    out, err := h.payments.ConfirmRedirect(ctx, co.CheckoutID, state)
    require.NoError(t, err)
    assert.Equal(t, "paid", out.Status)
    assert.Equal(t, d.Reference, out.Reference)

    // A redelivered webhook is a no-op too.
    require.NoError(t, h.payments.HandleWebhook(ctx, []byte(`{}`), nil))

    inv := h.invoice(t, co.InvoiceID)
    assert.Equal(t, model.InvoicePaid, inv.Status)
    assert.Equal(t, "pi_1", *inv.PaymentIntentID)
    assert.Equal(t, model.ReservationPending, h.reservation(t, d.ID).Status)

    paid := 0
    for _, typ := range h.events.types() {
        if typ == queue.TypePaymentPaid {
            paid++
        }
    }
    assert.Equal(t, 1, paid)
}

func TestConfirmRedirectFallbackChain(t *testing.T) {
    h := newHarness(t)
    ctx := context.Background()
    first := h.book(t, 10, nil)
    in := bookingInput(12, nil)
    in.Email = "second@example.com"
    second, err := h.bookings.CreateReservation(ctx, in)
    require.NoError(t, err)

    _, firstState := h.checkout(t, first.Reference)
    _, _ = h.checkout(t, second.Reference)
    h.gw.session = &gateway.Checkout{Status: "active"}

    out, err := h.payments.ConfirmRedirect(ctx, gateway.CheckoutPlaceholder, firstState)
    require.NoError(t, err)
    assert.Equal(t, first.Reference, out.Reference, "state token wins over latest awaiting")

    out, err = h.payments.ConfirmRedirect(ctx, "{checkout_session_id}", "unknown-token")
    require.NoError(t, err)
    assert.Equal(t, second.Reference, out.Reference, "falls back to latest awaiting invoice")
    assert.Equal(t, model.ReservationPending, h.reservation(t, second.ID).Status)

    _, err = h.payments.ConfirmRedirect(ctx, "", "")
    assert.ErrorIs(t, err, ErrNotFound)

    _, err = h.payments.ConfirmRedirect(ctx, "cs_unknown", "")
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmRedirectUnsettledSession(t *testing.T) {
    h := newHarness(t)
    d := h.book(t, 10, nil)
    co, state := h.checkout(t, d.Reference)

    out, err := h.payments.ConfirmRedirect(context.Background(), co.CheckoutID, state)
    require.NoError(t, err)
    assert.Equal(t, "unpaid", out.Status)
    assert.Equal(t, model.InvoiceAwaitingPayment, h.invoice(t, co.InvoiceID).Status)
}

func TestHandleWebhookErrors(t *testing.T) {
    h := newHarness(t)
    ctx := context.Background()

    h.gw.webhookErr = gateway.ErrInvalidSignature
    err := h.payments.HandleWebhook(ctx, []byte(`{}`), nil)
    assert.ErrorIs(t, err, ErrValidation)

    h.gw.webhookErr = nil
    h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventPaymentPaid, PaymentIntentID: "pi_missing"}
    err = h.payments.HandleWebhook(ctx, []byte(`{}`), nil)
    assert.ErrorIs(t, err, ErrNotFound)

    h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventPaymentFailed, FailureMessage: "card declined"}
    assert.NoError(t, h.payments.HandleWebhook(ctx, []byte(`{}`), nil))

    h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventIgnored, Type: "source.chargeable"}
    assert.NoError(t, h.payments.HandleWebhook(ctx, []byte(`{}`), nil))
}

func TestWebhookResolvesByReference(t *testing.T) {
    h := newHarness(t)
    d := h.book(t, 10, nil)
    co, _ := h.checkout(t, d.Reference)

    h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventPaymentPaid, PaymentIntentID: "pi_new", Reference: d.Reference}
    require.NoError(t, h.payments.HandleWebhook(context.Background(), nil, nil))
    assert.Equal(t, model.InvoicePaid, h.invoice(t, co.InvoiceID).Status)
}

func TestLatePaymentDoesNotReviveCancelledReservation(t *testing.T) {
    h := newHarness(t)
    d := h.book(t, 10, nil)
    co, _ := h.checkout(t, d.Reference)
    ctx := context.Background()
    _, err := h.bookings.UpdateStatus(ctx, d.ID, model.ReservationCancelled)
    require.NoError(t, err)

    h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventCheckoutPaid, CheckoutID: co.CheckoutID}
    require.NoError(t, h.payments.HandleWebhook(ctx, nil, nil))
    assert.Equal(t, model.InvoicePaid, h.invoice(t, co.InvoiceID).Status)
    assert.Equal(t, model.ReservationCancelled, h.reservation(t, d.ID).Status)
}

func TestManualPaymentOnlyFromNotPaid(t *testing.T) {
    h := newHarness(t)
    d := h.book(t, 10, nil)
    ctx := context.Background()

    _, err := h.payments.ProcessManualPayment(ctx, d.ID, ManualPaymentInput{Method: "crypto"})
    assert.ErrorIs(t, err, ErrValidation)

    inv, err := h.payments.ProcessManualPayment(ctx, d.ID, ManualPaymentInput{Method: model.MethodCash})
    require.NoError(t, err)
    assert.Equal(t, model.InvoicePaid, inv.Status)
    assert.Equal(t, model.MethodCash, inv.PaymentMethod)
    assert.Equal(t, d.Cost.PartialPayment, inv.Amount)
    assert.Equal(t, model.ReservationPending, h.reservation(t, d.ID).Status)

    _, err = h.payments.ProcessManualPayment(ctx, d.ID, ManualPaymentInput{Method: model.MethodCash})
    assert.ErrorIs(t, err, ErrRejected)
}

func TestManualPaymentConvertsAwaitingInvoice(t *testing.T) {
    h := newHarness(t)
    d := h.book(t, 10, nil)
    co, _ := h.checkout(t, d.Reference)

    amount := 2500.0
    inv, err := h.payments.ProcessManualPayment(context.Background(), d.ID, ManualPaymentInput{Method: model.MethodGCash, Amount: &amount})
    require.NoError(t, err)
    assert.Equal(t, co.InvoiceID, inv.ID)
    stored := h.invoice(t, co.InvoiceID)
    assert.Equal(t, model.InvoicePaid, stored.Status)
    assert.Equal(t, model.MethodGCash, stored.PaymentMethod)
    assert.Equal(t, 2500.0, stored.Amount)
    assert.Len(t, h.db.invoices, 1)
}

func TestConfirmPayment(t *testing.T) {
    h := newHarness(t)
    d := h.book(t, 10, nil)
    ctx := context.Background()
    co, _ := h.checkout(t, d.Reference)

    _, err := h.payments.ConfirmPayment(ctx, co.InvoiceID)
    assert.ErrorIs(t, err, ErrConflict)

    h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventCheckoutPaid, CheckoutID: co.CheckoutID}
    require.NoError(t, h.payments.HandleWebhook(ctx, nil, nil))

    inv, err := h.payments.ConfirmPayment(ctx, co.InvoiceID)
    require.NoError(t, err)
    assert.Equal(t, model.InvoiceConfirmed, inv.Status)
    assert.Equal(t, model.ReservationConfirmed, h.reservation(t, d.ID).Status)

    _, err = h.payments.ConfirmPayment(ctx, 424242)
    assert.ErrorIs(t, err, ErrNotFound)
}

// A PayMongo payment.paid event names only the payment and its intent, so
// the intent stored at checkout time is what ties it to the invoice.
func TestPaymentPaidWebhookMatchesIntentFromCheckout(t *testing.T) {
    h := newHarness(t)
    h.gw.intentID = "pi_from_create"
    d := h.book(t, 10, nil)
    co, _ := h.checkout(t, d.Reference)
    ctx := context.Background()
    require.Equal(t, "pi_from_create", *h.invoice(t, co.InvoiceID).PaymentIntentID)

    payload := []byte(`{"data":{"id":"evt_7","attributes":{"type":"payment.paid",
      "data":{"id":"pay_77","attributes":{"payment_intent_id":"pi_from_create","status":"paid"}}}}}`)
    ev, err := gateway.NewPayMongo("sk_test", "", time.Second).ParseWebhook(payload, http.Header{})
    require.NoError(t, err)
    require.Empty(t, ev.CheckoutID)
    require.Empty(t, ev.Reference)
    h.gw.event = ev

    require.NoError(t, h.payments.HandleWebhook(ctx, payload, nil))
    inv := h.invoice(t, co.InvoiceID)
    assert.Equal(t, model.InvoicePaid, inv.Status)
    assert.Equal(t, "pay_77", *inv.PaymentID)
    assert.Equal(t, model.ReservationPending, h.reservation(t, d.ID).Status)

    // A redelivery carrying only the payment id still finds the invoice.
    h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventPaymentPaid, PaymentID: "pay_77"}
    assert.NoError(t, h.payments.HandleWebhook(ctx, nil, nil))
}

func TestRepeatCheckoutReplacesIntent(t *testing.T) {
    h := newHarness(t)
    d := h.book(t, 10, nil)
    h.gw.intentID = "pi_old"
    first, _ := h.checkout(t, d.Reference)
    h.gw.intentID = "pi_new"
    _, _ = h.checkout(t, d.Reference)
    ctx := context.Background()

    assert.Equal(t, "pi_new", *h.invoice(t, first.InvoiceID).PaymentIntentID)

    h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventPaymentPaid, PaymentIntentID: "pi_old", PaymentID: "pay_old"}
    assert.ErrorIs(t, h.payments.HandleWebhook(ctx, nil, nil), ErrNotFound)

    h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventPaymentPaid, PaymentIntentID: "pi_new", PaymentID: "pay_new"}
    require.NoError(t, h.payments.HandleWebhook(ctx, nil, nil))
    assert.Equal(t, model.InvoicePaid, h.invoice(t, first.InvoiceID).Status)
}

func TestConfirmPaymentRefusesClosedReservation(t *testing.T) {
    for _, status := range []string{model.ReservationCancelled, model.ReservationCompleted} {
        t.Run(status, func(t *testing.T) {
            h := newHarness(t)
            d := h.book(t, 10, nil)
            ctx := context.Background()
            co, _ := h.checkout(t, d.Reference)
            h.gw.event = &gateway.WebhookEvent{Kind: gateway.EventCheckoutPaid, CheckoutID: co.CheckoutID}
            require.NoError(t, h.payments.HandleWebhook(ctx, nil, nil))
            _, err := h.bookings.UpdateStatus(ctx, d.ID, status)
            require.NoError(t, err)

            _, err = h.payments.ConfirmPayment(ctx, co.InvoiceID)
            assert.ErrorIs(t, err, ErrConflict)
            assert.Equal(t, status, h.reservation(t, d.ID).Status)
            assert.Equal(t, model.InvoicePaid, h.invoice(t, co.InvoiceID).Status)
            assert.NotContains(t, h.events.types(), queue.TypePaymentConfirmed)
        })
    }
}
