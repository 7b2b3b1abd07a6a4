package service

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "strings"
    "unicode/utf8"

    "go.uber.org/zap"

    "github.com/iliyamo/bus-charter-booking/internal/gateway"
    "github.com/iliyamo/bus-charter-booking/internal/model"
    "github.com/iliyamo/bus-charter-booking/internal/queue"
    "github.com/iliyamo/bus-charter-booking/internal/repository"
)

// Refund decisions accepted by ProcessRefund.
const (
    DecisionApprove = "approved"
    DecisionReject  = "rejected"
)

// RefundService handles customer refund requests and the administrator's
// decision on them.
type RefundService struct {
    Deps
    gw       gateway.Gateway
    currency string
}

// NewRefundService returns a RefundService.  gw may be nil, in which case
// approved refunds are only recorded locally.
func NewRefundService(d Deps, gw gateway.Gateway, currency string) *RefundService {
    d.init()
    if currency == "" {
        currency = "PHP"
    }
    return &RefundService{Deps: d, gw: gw, currency: currency}
}

// RefundRequestInput is what a customer submits.
type RefundRequestInput struct {
    Reference string
    Email     string
    Reason    string
    Amount    *float64
}

// RequestRefund files a pending refund for a paid booking.  Only one
// pending or approved refund may exist per calculated cost.
func (s *RefundService) RequestRefund(ctx context.Context, in RefundRequestInput) (*model.Refund, error) {
    reason := strings.TrimSpace(in.Reason)
    if n := utf8.RuneCountInString(reason); n < 10 || n > 500 {
        return nil, fail(ErrValidation, "reason must be between 10 and 500 characters")
    }
    if in.Amount != nil && *in.Amount <= 0 {
        return nil, fail(ErrValidation, "amount must be greater than zero")
    }
    res, code, err := ownedReservation(ctx, &s.Deps, in.Reference, in.Email)
    if err != nil {
        return nil, err
    }
    cost, err := s.Costs.GetByReservationID(ctx, res.ID)
    if errors.Is(err, repository.ErrNotFound) {
        return nil, fail(ErrRejected, "reservation has no payment to refund")
    }
    if err != nil {
        return nil, err
    }

    var rf model.Refund
    err = s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        inv, err := s.Invoices.GetByCostIDForUpdateTx(ctx, tx, cost.ID)
        if errors.Is(err, repository.ErrNotFound) {
            return fail(ErrRejected, "reservation has no payment to refund")
        }
        if err != nil {
            return err
        }
        if inv.Status != model.InvoicePaid && inv.Status != model.InvoicePending {
            return fail(ErrRejected, "invoice is %s and cannot be refunded", inv.Status)
        }
        active, err := s.Refunds.HasActiveTx(ctx, tx, cost.ID)
        if err != nil {
            return err
        }
        if active {
            return fail(ErrConflict, "a refund request already exists for this reservation")
        }
        amount := inv.Amount
        if in.Amount != nil {
            amount = *in.Amount
        }
        if amount > inv.Amount {
            return fail(ErrValidation, "amount must not exceed the paid amount of %.2f", inv.Amount)
        }
        rf = model.Refund{CalculatedCostID: cost.ID, InvoiceID: inv.ID, Reason: reason, Amount: amount}
        return s.Refunds.CreateTx(ctx, tx, &rf)
    })
    if err != nil {
        return nil, err
    }
    s.Log.Info("refund requested", zap.Uint64("refund_id", rf.ID), zap.String("reference", code), zap.Float64("amount", rf.Amount))
    s.publish(ctx, queue.Event{Type: queue.TypeRefundRequested, ReservationID: res.ID, Reference: code,
        InvoiceID: rf.InvoiceID, RefundID: rf.ID, Amount: rf.Amount, Status: model.RefundPending})
    return &rf, nil
}

// ProcessRefund applies the administrator's decision.  Approval cancels
// the reservation and marks the invoice refunded in one transaction; the
// gateway refund is only requested once that has committed.  A gateway
// refund that fails is noted on the refund but does not undo the decision.
func (s *RefundService) ProcessRefund(ctx context.Context, refundID uint64, decision, notes string) (*model.Refund, error) {
    if decision != DecisionApprove && decision != DecisionReject {
        return nil, fail(ErrValidation, "decision must be approved or rejected")
    }
    notes = strings.TrimSpace(notes)
    var (
        reservationID uint64
        rf            *model.Refund
        inv           *model.Invoice
    )
    err := s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        var err error
        rf, err = s.Refunds.GetByIDForUpdateTx(ctx, tx, refundID)
        if err != nil {
            return lookup(err, "refund")
        }
        if rf.Status != model.RefundPending {
            return fail(ErrConflict, "refund is already %s", rf.Status)
        }
        cost, err := s.Costs.GetByID(ctx, rf.CalculatedCostID)
        if err != nil {
            return lookup(err, "calculated cost")
        }
        reservationID = cost.ReservationID
        if decision == DecisionReject {
            return s.Refunds.DecideTx(ctx, tx, rf.ID, model.RefundRejected, optional(notes), s.now())
        }

        inv, err = s.Invoices.GetByIDForUpdateTx(ctx, tx, rf.InvoiceID)
        if err != nil {
            return lookup(err, "invoice")
        }
        if err := s.Reservations.UpdateStatusTx(ctx, tx, cost.ReservationID, model.ReservationCancelled); err != nil {
            return err
        }
        if err := s.Invoices.MarkRefundedTx(ctx, tx, inv.ID, s.now()); err != nil {
            return err
        }
        return s.Refunds.DecideTx(ctx, tx, rf.ID, model.RefundApproved, optional(notes), s.now())
    })
    if err != nil {
        return nil, err
    }
    if decision == DecisionApprove && inv.ViaGateway() && s.gw != nil {
        s.refundAtGateway(ctx, rf, inv, notes)
    }
    out, err := s.Refunds.GetByID(ctx, refundID)
    if err != nil {
        return nil, lookup(err, "refund")
    }
    s.Metrics.RefundProcessed(decision)
    s.Log.Info("refund processed", zap.Uint64("refund_id", refundID), zap.String("decision", decision))
    s.publish(ctx, queue.Event{Type: queue.TypeRefundProcessed, ReservationID: reservationID, InvoiceID: out.InvoiceID,
        RefundID: out.ID, Amount: out.Amount, Status: out.Status, Source: "admin", Note: deref(out.AdminNotes)})
    return out, nil
}

// refundAtGateway returns the money for an approved refund and records the
// outcome in a second transaction.  The approval stands either way.
func (s *RefundService) refundAtGateway(ctx context.Context, rf *model.Refund, inv *model.Invoice, notes string) {
    res, err := s.gw.Refund(ctx, gateway.RefundRequest{
        PaymentIntentID: deref(inv.PaymentIntentID),
        PaymentID:       deref(inv.PaymentID),
        Amount:          rf.Amount,
        Currency:        inv.Currency,
        Reason:          rf.Reason,
        IdempotencyKey:  fmt.Sprintf("refund-%d", rf.ID),
    })
    var externalID *string
    if err != nil {
        s.Metrics.GatewayError("refund")
        s.Log.Error("gateway refund failed", zap.Uint64("refund_id", rf.ID), zap.Error(err))
        notes = appendNote(notes, fmt.Sprintf("Gateway refund failed: %v", err))
    } else {
        externalID = &res.ID
    }
    err = s.Tx.WithinTx(ctx, func(tx *sql.Tx) error {
        if externalID != nil {
            if err := s.Invoices.SetRefundIDTx(ctx, tx, inv.ID, *externalID); err != nil {
                return err
            }
        }
        return s.Refunds.RecordGatewayResultTx(ctx, tx, rf.ID, optional(notes), externalID)
    })
    if err != nil {
        s.Log.Error("gateway refund outcome not recorded", zap.Uint64("refund_id", rf.ID),
            zap.String("external_refund_id", deref(externalID)), zap.Error(err))
    }
}

// ListRefunds returns refunds, optionally filtered by status.
func (s *RefundService) ListRefunds(ctx context.Context, status string) ([]model.Refund, error) {
    switch status {
    case "", model.RefundPending, model.RefundApproved, model.RefundRejected:
    default:
        return nil, fail(ErrValidation, "unknown status %q", status)
    }
    return s.Refunds.List(ctx, status)
}

func appendNote(notes, line string) string {
    if notes == "" {
        return line
    }
    return notes + "\n" + line
}

func deref(s *string) string {
    if s == nil {
        return ""
    }
    return *s
}
