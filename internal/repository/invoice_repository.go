package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/bus-charter-booking/internal/model"
)

// InvoiceRepo persists invoices.  There is at most one invoice per
// calculated cost; status transitions are guarded in SQL so that
// concurrent webhook and redirect deliveries apply a payment only once.
type InvoiceRepo struct {
    db *sql.DB
}

// NewInvoiceRepo returns a new InvoiceRepo bound to the given database.
func NewInvoiceRepo(db *sql.DB) *InvoiceRepo { return &InvoiceRepo{db: db} }

const invoiceColumns = `id, calculated_cost_id, gateway, checkout_session_id, checkout_url, payment_intent_id,
    payment_id, refund_id, payment_method, amount, currency, status, paid_at, confirmed_at, refunded_at,
    created_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (*model.Invoice, error) {
    var inv model.Invoice
    var gw, checkoutID, checkoutURL, intentID, paymentID, refundID sql.NullString
    var paidAt, confirmedAt, refundedAt sql.NullTime
    err := row.Scan(&inv.ID, &inv.CalculatedCostID, &gw, &checkoutID, &checkoutURL, &intentID,
        &paymentID, &refundID, &inv.PaymentMethod, &inv.Amount, &inv.Currency, &inv.Status,
        &paidAt, &confirmedAt, &refundedAt, &inv.CreatedAt, &inv.UpdatedAt)
    if err != nil {
        return nil, notFound(err)
    }
    inv.Gateway = strPtr(gw)
    inv.CheckoutSessionID = strPtr(checkoutID)
    inv.CheckoutURL = strPtr(checkoutURL)
    inv.PaymentIntentID = strPtr(intentID)
    inv.PaymentID = strPtr(paymentID)
    inv.RefundID = strPtr(refundID)
    inv.PaidAt = timePtr(paidAt)
    inv.ConfirmedAt = timePtr(confirmedAt)
    inv.RefundedAt = timePtr(refundedAt)
    return &inv, nil
}

func (r *InvoiceRepo) one(ctx context.Context, q DBTX, where string, args ...any) (*model.Invoice, error) {
    return scanInvoice(q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE `+where, args...))
}

// GetByID returns an invoice by primary key.
func (r *InvoiceRepo) GetByID(ctx context.Context, id uint64) (*model.Invoice, error) {
    return r.one(ctx, r.db, `id = ?`, id)
}

// GetByIDForUpdateTx loads and locks an invoice.
func (r *InvoiceRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Invoice, error) {
    return r.one(ctx, tx, `id = ? FOR UPDATE`, id)
}

// GetByCostID returns the invoice of a calculated cost.
func (r *InvoiceRepo) GetByCostID(ctx context.Context, costID uint64) (*model.Invoice, error) {
    return r.one(ctx, r.db, `calculated_cost_id = ?`, costID)
}

// GetByCostIDForUpdateTx loads and locks the invoice of a calculated cost.
func (r *InvoiceRepo) GetByCostIDForUpdateTx(ctx context.Context, tx *sql.Tx, costID uint64) (*model.Invoice, error) {
    return r.one(ctx, tx, `calculated_cost_id = ? FOR UPDATE`, costID)
}

// GetByCheckoutID finds the invoice created for a gateway checkout session.
func (r *InvoiceRepo) GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Invoice, error) {
    return r.one(ctx, r.db, `checkout_session_id = ? ORDER BY id DESC LIMIT 1`, checkoutID)
}

// GetByPaymentIntentID finds the invoice by gateway payment intent.
func (r *InvoiceRepo) GetByPaymentIntentID(ctx context.Context, intentID string) (*model.Invoice, error) {
    return r.one(ctx, r.db, `payment_intent_id = ? ORDER BY id DESC LIMIT 1`, intentID)
}

// GetByPaymentID finds the invoice by gateway payment id.
func (r *InvoiceRepo) GetByPaymentID(ctx context.Context, paymentID string) (*model.Invoice, error) {
    return r.one(ctx, r.db, `payment_id = ? ORDER BY id DESC LIMIT 1`, paymentID)
}

// LatestAwaiting returns the most recently created invoice that is still
// awaiting payment.  It is the last resort when a redirect arrives without
// any usable identifier.
func (r *InvoiceRepo) LatestAwaiting(ctx context.Context) (*model.Invoice, error) {
    return r.one(ctx, r.db, `status = ? ORDER BY created_at DESC, id DESC LIMIT 1`, model.InvoiceAwaitingPayment)
}

// CreateTx inserts a new invoice and reads it back into inv.
func (r *InvoiceRepo) CreateTx(ctx context.Context, tx *sql.Tx, inv *model.Invoice) error {
    if inv.Status == "" {
        inv.Status = model.InvoiceAwaitingPayment
    }
    if inv.PaymentMethod == "" {
        inv.PaymentMethod = model.MethodGateway
    }
    const q = `INSERT INTO invoices
               (calculated_cost_id, gateway, checkout_session_id, checkout_url, payment_intent_id, payment_id,
                payment_method, amount, currency, status, paid_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    var paidAt sql.NullTime
    if inv.PaidAt != nil {
        paidAt = sql.NullTime{Time: inv.PaidAt.UTC(), Valid: true}
    }
    res, err := tx.ExecContext(ctx, q, inv.CalculatedCostID, nullStr(inv.Gateway), nullStr(inv.CheckoutSessionID),
        nullStr(inv.CheckoutURL), nullStr(inv.PaymentIntentID), nullStr(inv.PaymentID),
        inv.PaymentMethod, inv.Amount, inv.Currency, inv.Status, paidAt)
    if err != nil {
        if isDuplicate(err) {
            return ErrDuplicate
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    got, err := r.one(ctx, tx, `id = ?`, id)
    if err != nil {
        return err
    }
    *inv = *got
    return nil
}

// RefreshCheckoutTx points an awaiting invoice at a new checkout session
// and its payment intent, and updates the amount.  The intent is replaced
// together with the session so a stale one cannot match a later webhook.
// It returns ErrConflict if the invoice is no longer awaiting payment.
func (r *InvoiceRepo) RefreshCheckoutTx(ctx context.Context, tx *sql.Tx, id uint64, gateway, checkoutID, checkoutURL string, intentID *string, amount float64) error {
    const q = `UPDATE invoices
               SET gateway = ?, checkout_session_id = ?, checkout_url = ?, payment_intent_id = ?, amount = ?, payment_method = ?
               WHERE id = ? AND status = ?`
    err := expectRow(tx.ExecContext(ctx, q, gateway, checkoutID, checkoutURL, nullStr(intentID), amount, model.MethodGateway,
        id, model.InvoiceAwaitingPayment))
    if err == ErrNotFound {
        return ErrConflict
    }
    return err
}

// MarkPaidTx moves an awaiting invoice to paid and records the gateway
// identifiers.  changed is false when the invoice was already past
// awaiting_payment, which makes repeated deliveries harmless.
func (r *InvoiceRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, id uint64, intentID, paymentID *string, at time.Time) (changed bool, err error) {
    const q = `UPDATE invoices
               SET status = ?, paid_at = ?,
                   payment_intent_id = COALESCE(?, payment_intent_id),
                   payment_id = COALESCE(?, payment_id)
               WHERE id = ? AND status = ?`
    res, err := tx.ExecContext(ctx, q, model.InvoicePaid, at.UTC(), nullStr(intentID), nullStr(paymentID),
        id, model.InvoiceAwaitingPayment)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// RecordManualPaymentTx marks an awaiting invoice as paid outside the
// gateway using the given method.
func (r *InvoiceRepo) RecordManualPaymentTx(ctx context.Context, tx *sql.Tx, id uint64, method string, amount float64, at time.Time) error {
    const q = `UPDATE invoices SET status = ?, payment_method = ?, amount = ?, paid_at = ?
               WHERE id = ? AND status = ?`
    err := expectRow(tx.ExecContext(ctx, q, model.InvoicePaid, method, amount, at.UTC(), id, model.InvoiceAwaitingPayment))
    if err == ErrNotFound {
        return ErrConflict
    }
    return err
}

// ConfirmTx records administrator confirmation of a paid invoice.
func (r *InvoiceRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
    const q = `UPDATE invoices SET status = ?, confirmed_at = ? WHERE id = ? AND status IN (?, ?)`
    err := expectRow(tx.ExecContext(ctx, q, model.InvoiceConfirmed, at.UTC(), id, model.InvoicePaid, model.InvoicePending))
    if err == ErrNotFound {
        return ErrConflict
    }
    return err
}

// MarkRefundedTx sets the invoice to refunded.  The gateway refund id, if
// any, is added later with SetRefundIDTx.
func (r *InvoiceRepo) MarkRefundedTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
    const q = `UPDATE invoices SET status = ?, refunded_at = ? WHERE id = ?`
    return expectRow(tx.ExecContext(ctx, q, model.InvoiceRefunded, at.UTC(), id))
}

// SetRefundIDTx records the gateway refund id on a refunded invoice.
func (r *InvoiceRepo) SetRefundIDTx(ctx context.Context, tx *sql.Tx, id uint64, refundID string) error {
    const q = `UPDATE invoices SET refund_id = ? WHERE id = ? AND status = ?`
    err := expectRow(tx.ExecContext(ctx, q, refundID, id, model.InvoiceRefunded))
    if err == ErrNotFound {
        return ErrConflict
    }
    return err
}
