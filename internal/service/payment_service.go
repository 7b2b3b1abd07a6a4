package service

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "net/http"
    "net/url"
    "strings"

    "github.com/go-playground/validator/v10"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/checkoutstate"
    "github.com/iliyamo/bus-charter-booking/internal/gateway"
    "github.com/iliyamo/bus-charter-booking/internal/model"
    "github.com/iliyamo/bus-charter-booking/internal/pricing"
    "github.com/iliyamo/bus-charter-booking/internal/queue"
    "github.com/iliyamo/bus-charter-booking/internal/repository"
)

// Sources of a paid transition, used in metrics and events.
const (
    SourceRedirect = "redirect"
    SourceWebhook  = "webhook"
    SourceManual   = "manual"
)

var emailValidator = validator.New()

// PaymentService runs the invoice state machine: checkout creation,
// confirmation by redirect or webhook, manual payments and admin
// confirmation.
type PaymentService struct {
    Deps
    gw       gateway.Gateway
    states   checkoutstate.Store
    baseURL  string
    currency string
}

// PaymentConfig holds the settings PaymentService needs besides Deps.
type PaymentConfig struct {
    Gateway  gateway.Gateway
    States   checkoutstate.Store
    BaseURL  string // public root of this service, used for return URLs
    Currency string
}

// NewPaymentService returns a PaymentService.
func NewPaymentService(d Deps, cfg PaymentConfig) *PaymentService {
    d.init()
    if cfg.Currency == "" {
        cfg.Currency = "PHP"
    }
    return &PaymentService{Deps: d, gw: cfg.Gateway, states: cfg.States, baseURL: strings.TrimRight(cfg.BaseURL, "/"), currency: cfg.Currency}
}

// CheckoutResult is returned to the customer, who is sent to URL.
type CheckoutResult struct {
    InvoiceID  uint64  `json:"invoice_id"`
    CheckoutID string  `json:"checkout_id"`
    URL        string  `json:"checkout_url"`
    Amount     float64 `json:"amount"`
    Currency   string  `json:"currency"`
    Reference  string  `json:"reference"`
}

// CreateCheckout opens a gateway checkout for the deposit of the booking
// behind code.  email overrides the customer's stored address for the
// receipt and must be valid either way.  Nothing is persisted when the
// gateway call fails.
func (s *PaymentService) CreateCheckout(ctx context.Context, code, email string) (*CheckoutResult, error) {
    ref, err := s.References.GetByCode(ctx, code)
    if err != nil {
        return nil, lookup(err, "reservation")
    }
    res, err := s.Reservations.GetByID(ctx, ref.ReservationID)
    if err != nil {
        return nil, lookup(err, "reservation")
    }
    switch res.Status {
    case model.ReservationPending, model.ReservationConfirmed:
        return nil, fail(ErrRejected, "reservation is already paid")
    case model.ReservationCancelled, model.ReservationCompleted:
        return nil, fail(ErrRejected, "reservation is %s", res.Status)
    }
    cost, err := s.Costs.GetByReservationID(ctx, res.ID)
    if errors.Is(err, repository.ErrNotFound) {
        return nil, fail(ErrRejected, "cost has not been calculated yet")
    }
    if err != nil {
        return nil, err
    }
    cust, err := s.Customers.GetByID(ctx, res.CustomerID)
    if err != nil {
        return nil, lookup(err, "customer")
    }
    email = strings.TrimSpace(email)
    if email == "" {
        email = cust.Email
    }
    if err := emailValidator.Var(email, "required,email"); err != nil {
        return nil, fail(ErrValidation, "a valid email address is required for checkout")
    }

    existing, err := s.Invoices.GetByCostID(ctx, cost.ID)
    switch {
    case err == nil && existing.Status != model.InvoiceAwaitingPayment:
        return nil, fail(ErrRejected, "invoice is already %s", existing.Status)
    case err != nil && !errors.Is(err, repository.ErrNotFound):
        return nil, err
    case err != nil:
        existing = nil
    }

    amount := pricing.PartialPayment(res.Passengers)
    token := checkoutstate.NewToken()
    co, err := s.gw.CreateCheckout(ctx, gateway.CheckoutRequest{
        Reference:     ref.Code,
        Description:   fmt.Sprintf("Bus charter deposit %s (%s to %s)", ref.Code, res.Origin, res.Destination),
        Amount:        amount,
        Currency:      s.currency,
        CustomerName:  cust.Name,
        CustomerEmail: email,
        SuccessURL:    s.returnURL("success", token, ref.Code, true),
        CancelURL:     s.returnURL("cancel", token, ref.Code, false),
    })
    if err != nil {
        s.Metrics.GatewayError("checkout")
        s.Log.Error("gateway checkout failed", zap.String("reference", ref.Code), zap.Error(err))
        return nil, fail(ErrGateway, "payment gateway error: %v", err)
    }

    var inv model.Invoice
    err = s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        if existing != nil {
            if err := s.Invoices.RefreshCheckoutTx(ctx, tx, existing.ID, s.gw.Name(), co.ID, co.URL, optional(co.PaymentIntentID), amount); err != nil {
                if errors.Is(err, repository.ErrConflict) {
                    return fail(ErrConflict, "invoice changed while creating checkout")
                }
                return err
            }
            inv = *existing
            return nil
        }
        gwName, cid, curl := s.gw.Name(), co.ID, co.URL
        inv = model.Invoice{
            CalculatedCostID:  cost.ID,
            Gateway:           &gwName,
            CheckoutSessionID: &cid,
            CheckoutURL:       &curl,
            PaymentIntentID:   optional(co.PaymentIntentID),
            PaymentMethod:     model.MethodGateway,
            Amount:            amount,
            Currency:          s.currency,
            Status:            model.InvoiceAwaitingPayment,
        }
        if err := s.Invoices.CreateTx(ctx, tx, &inv); err != nil {
            if errors.Is(err, repository.ErrDuplicate) {
                return fail(ErrConflict, "a checkout is already being created for this reservation")
            }
            return err
        }
        return nil
    })
    if err != nil {
        return nil, err
    }
    if err := s.states.Put(ctx, token, co.ID); err != nil {
        s.Log.Warn("checkout state not stored", zap.String("checkout_id", co.ID), zap.Error(err))
    }
    s.Metrics.CheckoutCreated()
    s.Log.Info("checkout created", zap.String("reference", ref.Code), zap.String("checkout_id", co.ID), zap.Float64("amount", amount))
    return &CheckoutResult{InvoiceID: inv.ID, CheckoutID: co.ID, URL: co.URL, Amount: amount, Currency: s.currency, Reference: ref.Code}, nil
}

// returnURL builds the gateway return address.  The checkout placeholder
// is appended raw so the gateway can find and substitute it.
func (s *PaymentService) returnURL(kind, token, code string, withPlaceholder bool) string {
    q := url.Values{}
    q.Set("state", token)
    q.Set("reference", code)
    u := s.baseURL + "/v1/payments/" + kind + "?" + q.Encode()
    if withPlaceholder {
        u += "&checkout_id=" + gateway.CheckoutPlaceholder
    }
    return u
}

// RedirectResult tells the redirect handler where to send the browser.
type RedirectResult struct {
    Reference string
    Status    string // paid or unpaid
}

// ConfirmRedirect resolves the invoice a returning browser belongs to and
// marks it paid when the gateway agrees.  A missing or unsubstituted
// checkout id falls back to the stored state token, then to the most
// recent invoice still awaiting payment.
func (s *PaymentService) ConfirmRedirect(ctx context.Context, checkoutID, state string) (*RedirectResult, error) {
    inv, err := s.resolveRedirectInvoice(ctx, checkoutID, state)
    if err != nil {
        return nil, err
    }
    code := s.referenceForCost(ctx, inv.CalculatedCostID)
    if inv.Status != model.InvoiceAwaitingPayment {
        return &RedirectResult{Reference: code, Status: "paid"}, nil
    }
    if inv.CheckoutSessionID == nil || *inv.CheckoutSessionID == "" {
        return nil, fail(ErrNotFound, "checkout session not found")
    }
    co, err := s.gw.GetCheckout(ctx, *inv.CheckoutSessionID)
    if err != nil {
        s.Metrics.GatewayError("get_checkout")
        return nil, fail(ErrGateway, "payment gateway error: %v", err)
    }
    if !co.Settled() {
        return &RedirectResult{Reference: code, Status: "unpaid"}, nil
    }
    if _, err := s.markPaid(ctx, inv, co.PaymentIntentID, co.PaymentID, SourceRedirect); err != nil {
        return nil, err
    }
    return &RedirectResult{Reference: code, Status: "paid"}, nil
}

func (s *PaymentService) resolveRedirectInvoice(ctx context.Context, checkoutID, state string) (*model.Invoice, error) {
    if !gateway.IsPlaceholder(checkoutID) {
        inv, err := s.Invoices.GetByCheckoutID(ctx, strings.TrimSpace(checkoutID))
        if err != nil {
            return nil, lookup(err, "checkout session")
        }
        return inv, nil
    }
    if state != "" {
        if id, err := s.states.Get(ctx, state); err == nil {
            inv, err := s.Invoices.GetByCheckoutID(ctx, id)
            if err == nil {
                return inv, nil
            }
            if !errors.Is(err, repository.ErrNotFound) {
                return nil, err
            }
        } else if !errors.Is(err, checkoutstate.ErrNotFound) {
            s.Log.Warn("checkout state lookup failed", zap.Error(err))
        }
    }
    inv, err := s.Invoices.LatestAwaiting(ctx)
    if err != nil {
        return nil, lookup(err, "checkout session")
    }
    s.Log.Warn("redirect resolved to latest awaiting invoice", zap.Uint64("invoice_id", inv.ID))
    return inv, nil
}

// HandleWebhook applies a gateway notification.  Paid events go through
// the same idempotent transition as redirects; failures are only logged.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, header http.Header) error {
    ev, err := s.gw.ParseWebhook(payload, header)
    if errors.Is(err, gateway.ErrInvalidSignature) {
        s.Metrics.WebhookReceived("invalid_signature")
        return fail(ErrValidation, "invalid webhook signature")
    }
    if err != nil {
        return fail(ErrValidation, "malformed webhook payload")
    }
    s.Metrics.WebhookReceived(string(ev.Kind))
    switch ev.Kind {
    case gateway.EventCheckoutPaid, gateway.EventPaymentPaid:
        inv, err := s.webhookInvoice(ctx, ev)
        if err != nil {
            s.Log.Warn("webhook for unknown invoice", zap.String("type", ev.Type), zap.String("checkout_id", ev.CheckoutID),
                zap.String("payment_intent_id", ev.PaymentIntentID))
            return err
        }
        _, err = s.markPaid(ctx, inv, ev.PaymentIntentID, ev.PaymentID, SourceWebhook)
        return err
    case gateway.EventPaymentFailed:
        s.Log.Warn("gateway reported failed payment", zap.String("payment_intent_id", ev.PaymentIntentID),
            zap.String("payment_id", ev.PaymentID), zap.String("reason", ev.FailureMessage))
    default:
        s.Log.Debug("webhook ignored", zap.String("type", ev.Type))
    }
    return nil
}

func (s *PaymentService) webhookInvoice(ctx context.Context, ev *gateway.WebhookEvent) (*model.Invoice, error) {
    if ev.CheckoutID != "" {
        inv, err := s.Invoices.GetByCheckoutID(ctx, ev.CheckoutID)
        if err == nil || !errors.Is(err, repository.ErrNotFound) {
            return inv, err
        }
    }
    if ev.PaymentIntentID != "" {
        inv, err := s.Invoices.GetByPaymentIntentID(ctx, ev.PaymentIntentID)
        if err == nil || !errors.Is(err, repository.ErrNotFound) {
            return inv, err
        }
    }
    if ev.PaymentID != "" {
        inv, err := s.Invoices.GetByPaymentID(ctx, ev.PaymentID)
        if err == nil || !errors.Is(err, repository.ErrNotFound) {
            return inv, err
        }
    }
    if ev.Reference != "" {
        ref, err := s.References.GetByCode(ctx, ev.Reference)
        if err == nil {
            cost, err := s.Costs.GetByReservationID(ctx, ref.ReservationID)
            if err == nil {
                inv, err := s.Invoices.GetByCostID(ctx, cost.ID)
                if err == nil || !errors.Is(err, repository.ErrNotFound) {
                    return inv, err
                }
            }
        }
    }
    return nil, fail(ErrNotFound, "invoice not found")
}

// markPaid moves an awaiting invoice to paid and its reservation to
// pending in one transaction.  The invoice update is conditional on
// awaiting_payment, so whichever of redirect and webhook arrives second
// changes nothing.
func (s *PaymentService) markPaid(ctx context.Context, inv *model.Invoice, intentID, paymentID, source string) (bool, error) {
    cost, err := s.Costs.GetByID(ctx, inv.CalculatedCostID)
    if err != nil {
        return false, lookup(err, "calculated cost")
    }
    var changed bool
    err = s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        var err error
        changed, err = s.Invoices.MarkPaidTx(ctx, tx, inv.ID, optional(intentID), optional(paymentID), s.now())
        if err != nil || !changed {
            return err
        }
        res, err := s.Reservations.GetByIDForUpdateTx(ctx, tx, cost.ReservationID)
        if err != nil {
            return lookup(err, "reservation")
        }
        if res.Status != model.ReservationNotPaid {
            s.Log.Warn("payment received for reservation that is not awaiting payment",
                zap.Uint64("reservation_id", res.ID), zap.String("status", res.Status))
            return nil
        }
        return s.Reservations.UpdateStatusTx(ctx, tx, res.ID, model.ReservationPending)
    })
    if err != nil {
        return false, err
    }
    if !changed {
        s.Log.Debug("payment already recorded", zap.Uint64("invoice_id", inv.ID), zap.String("source", source))
        return false, nil
    }
    s.Metrics.PaymentMarked(source)
    s.Log.Info("invoice paid", zap.Uint64("invoice_id", inv.ID), zap.String("source", source))
    s.publish(ctx, queue.Event{Type: queue.TypePaymentPaid, ReservationID: cost.ReservationID,
        Reference: s.referenceForCost(ctx, cost.ID), InvoiceID: inv.ID, Amount: inv.Amount, Source: source, Status: model.InvoicePaid})
    return true, nil
}

// ConfirmPayment is the administrator's acknowledgement of a payment.  A
// reservation that was cancelled or completed in the meantime keeps its
// status and the confirmation is refused.
func (s *PaymentService) ConfirmPayment(ctx context.Context, invoiceID uint64) (*model.Invoice, error) {
    var reservationID uint64
    err := s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        inv, err := s.Invoices.GetByIDForUpdateTx(ctx, tx, invoiceID)
        if err != nil {
            return lookup(err, "invoice")
        }
        if inv.Status != model.InvoicePaid && inv.Status != model.InvoicePending {
            return fail(ErrConflict, "invoice is %s and cannot be confirmed", inv.Status)
        }
        cost, err := s.Costs.GetByID(ctx, inv.CalculatedCostID)
        if err != nil {
            return lookup(err, "calculated cost")
        }
        reservationID = cost.ReservationID
        res, err := s.Reservations.GetByIDForUpdateTx(ctx, tx, cost.ReservationID)
        if err != nil {
            return lookup(err, "reservation")
        }
        if res.Status == model.ReservationCancelled || res.Status == model.ReservationCompleted {
            return fail(ErrConflict, "reservation is %s and cannot be confirmed", res.Status)
        }
        if err := s.Invoices.ConfirmTx(ctx, tx, inv.ID, s.now()); err != nil {
            return err
        }
        return s.Reservations.UpdateStatusTx(ctx, tx, res.ID, model.ReservationConfirmed)
    })
    if err != nil {
        return nil, err
    }
    inv, err := s.Invoices.GetByID(ctx, invoiceID)
    if err != nil {
        return nil, lookup(err, "invoice")
    }
    s.Log.Info("payment confirmed", zap.Uint64("invoice_id", invoiceID), zap.Uint64("reservation_id", reservationID))
    s.publish(ctx, queue.Event{Type: queue.TypePaymentConfirmed, ReservationID: reservationID, InvoiceID: invoiceID,
        Amount: inv.Amount, Status: model.InvoiceConfirmed, Source: "admin"})
    return inv, nil
}

// ManualPaymentInput is an administrator-recorded offline payment.
type ManualPaymentInput struct {
    Method string   `json:"payment_method" validate:"required,oneof=cash bank_transfer gcash other"`
    Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
}

// ProcessManualPayment records an offline payment.  It is only allowed
// while the reservation is not_paid; an awaiting gateway invoice is
// converted in place, otherwise a paid invoice is created.
func (s *PaymentService) ProcessManualPayment(ctx context.Context, reservationID uint64, in ManualPaymentInput) (*model.Invoice, error) {
    switch in.Method {
    case model.MethodCash, model.MethodBankTransfer, model.MethodGCash, model.MethodOther:
    default:
        return nil, fail(ErrValidation, "payment_method must be one of cash, bank_transfer, gcash, other")
    }
    if in.Amount != nil && *in.Amount <= 0 {
        return nil, fail(ErrValidation, "amount must be greater than zero")
    }
    var inv *model.Invoice
    err := s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        res, err := s.Reservations.GetByIDForUpdateTx(ctx, tx, reservationID)
        if err != nil {
            return lookup(err, "reservation")
        }
        if res.Status != model.ReservationNotPaid {
            return fail(ErrRejected, "manual payment requires a not_paid reservation, this one is %s", res.Status)
        }
        cost, err := s.Costs.GetByReservationIDTx(ctx, tx, res.ID)
        if errors.Is(err, repository.ErrNotFound) {
            return fail(ErrRejected, "cost has not been calculated yet")
        }
        if err != nil {
            return err
        }
        amount := cost.PartialPayment
        if in.Amount != nil {
            amount = *in.Amount
        }
        now := s.now()
        existing, err := s.Invoices.GetByCostIDForUpdateTx(ctx, tx, cost.ID)
        switch {
        case err == nil:
            if existing.Status != model.InvoiceAwaitingPayment {
                return fail(ErrConflict, "invoice is already %s", existing.Status)
            }
            if err := s.Invoices.RecordManualPaymentTx(ctx, tx, existing.ID, in.Method, amount, now); err != nil {
                return err
            }
            existing.Status, existing.PaymentMethod, existing.Amount, existing.PaidAt = model.InvoicePaid, in.Method, amount, &now
            inv = existing
        case errors.Is(err, repository.ErrNotFound):
            inv = &model.Invoice{
                CalculatedCostID: cost.ID,
                PaymentMethod:    in.Method,
                Amount:           amount,
                Currency:         s.currency,
                Status:           model.InvoicePaid,
                PaidAt:           &now,
            }
            if err := s.Invoices.CreateTx(ctx, tx, inv); err != nil {
                return err
            }
        default:
            return err
        }
        return s.Reservations.UpdateStatusTx(ctx, tx, res.ID, model.ReservationPending)
    })
    if err != nil {
        return nil, err
    }
    s.Metrics.PaymentMarked(SourceManual)
    s.Log.Info("manual payment recorded", zap.Uint64("reservation_id", reservationID), zap.String("method", in.Method))
    s.publish(ctx, queue.Event{Type: queue.TypePaymentPaid, ReservationID: reservationID, InvoiceID: inv.ID,
        Amount: inv.Amount, Source: SourceManual, Status: model.InvoicePaid, Note: in.Method})
    return inv, nil
}

func (s *PaymentService) referenceForCost(ctx context.Context, costID uint64) string {
    cost, err := s.Costs.GetByID(ctx, costID)
    if err != nil {
        return ""
    }
    ref, err := s.References.GetByReservationID(ctx, cost.ReservationID)
    if err != nil {
        return ""
    }
    return ref.Code
}

func optional(s string) *string {
    if s == "" {
        return nil
    }
    return &s
}
