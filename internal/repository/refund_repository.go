package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/bus-charter-booking/internal/model"
)

// RefundRepo persists refund requests.
type RefundRepo struct {
    db *sql.DB
}

// NewRefundRepo returns a new RefundRepo bound to the given database.
func NewRefundRepo(db *sql.DB) *RefundRepo { return &RefundRepo{db: db} }

const refundColumns = `id, calculated_cost_id, invoice_id, reason, amount, status, external_refund_id,
    admin_notes, processed_at, created_at, updated_at`

func scanRefund(row interface{ Scan(...any) error }) (*model.Refund, error) {
    var rf model.Refund
    var ext, notes sql.NullString
    var processed sql.NullTime
    err := row.Scan(&rf.ID, &rf.CalculatedCostID, &rf.InvoiceID, &rf.Reason, &rf.Amount, &rf.Status,
        &ext, &notes, &processed, &rf.CreatedAt, &rf.UpdatedAt)
    if err != nil {
        return nil, notFound(err)
    }
    rf.ExternalRefundID = strPtr(ext)
    rf.AdminNotes = strPtr(notes)
    rf.ProcessedAt = timePtr(processed)
    return &rf, nil
}

// CreateTx inserts a pending refund request.
func (r *RefundRepo) CreateTx(ctx context.Context, tx *sql.Tx, rf *model.Refund) error {
    rf.Status = model.RefundPending
    res, err := tx.ExecContext(ctx,
        `INSERT INTO refunds (calculated_cost_id, invoice_id, reason, amount, status) VALUES (?, ?, ?, ?, ?)`,
        rf.CalculatedCostID, rf.InvoiceID, rf.Reason, rf.Amount, rf.Status)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    got, err := scanRefund(tx.QueryRowContext(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = ?`, id))
    if err != nil {
        return err
    }
    *rf = *got
    return nil
}

// GetByIDForUpdateTx loads and locks a refund.
func (r *RefundRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Refund, error) {
    return scanRefund(tx.QueryRowContext(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = ? FOR UPDATE`, id))
}

// GetByID returns a refund by primary key.
func (r *RefundRepo) GetByID(ctx context.Context, id uint64) (*model.Refund, error) {
    return scanRefund(r.db.QueryRowContext(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = ?`, id))
}

// HasActiveTx reports whether the cost already has a pending or approved
// refund.  Rows are locked so two concurrent requests cannot both pass.
func (r *RefundRepo) HasActiveTx(ctx context.Context, tx *sql.Tx, costID uint64) (bool, error) {
    rows, err := tx.QueryContext(ctx,
        `SELECT id FROM refunds WHERE calculated_cost_id = ? AND status IN (?, ?) FOR UPDATE`,
        costID, model.RefundPending, model.RefundApproved)
    if err != nil {
        return false, err
    }
    defer rows.Close()
    found := rows.Next()
    return found, rows.Err()
}

// ListByCost returns all refunds of a calculated cost, newest first.
func (r *RefundRepo) ListByCost(ctx context.Context, costID uint64) ([]model.Refund, error) {
    return r.query(ctx, `SELECT `+refundColumns+` FROM refunds WHERE calculated_cost_id = ? ORDER BY created_at DESC, id DESC`, costID)
}

// List returns refunds filtered by status (empty means all), newest first.
func (r *RefundRepo) List(ctx context.Context, status string) ([]model.Refund, error) {
    if status == "" {
        return r.query(ctx, `SELECT `+refundColumns+` FROM refunds ORDER BY created_at DESC, id DESC LIMIT 200`)
    }
    return r.query(ctx, `SELECT `+refundColumns+` FROM refunds WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT 200`, status)
}

// DecideTx moves a pending refund to approved or rejected.  It returns
// ErrConflict if the refund was already processed.
func (r *RefundRepo) DecideTx(ctx context.Context, tx *sql.Tx, id uint64, status string, notes *string, at time.Time) error {
    const q = `UPDATE refunds SET status = ?, admin_notes = ?, processed_at = ?
               WHERE id = ? AND status = ?`
    err := expectRow(tx.ExecContext(ctx, q, status, nullStr(notes), at.UTC(), id, model.RefundPending))
    if err == ErrNotFound {
        return ErrConflict
    }
    return err
}

// RecordGatewayResultTx stores the outcome of the gateway refund for an
// approved refund.
func (r *RefundRepo) RecordGatewayResultTx(ctx context.Context, tx *sql.Tx, id uint64, notes, externalID *string) error {
    const q = `UPDATE refunds SET admin_notes = ?, external_refund_id = COALESCE(?, external_refund_id)
               WHERE id = ? AND status = ?`
    err := expectRow(tx.ExecContext(ctx, q, nullStr(notes), nullStr(externalID), id, model.RefundApproved))
    if err == ErrNotFound {
        return ErrConflict
    }
    return err
}

func (r *RefundRepo) query(ctx context.Context, q string, args ...any) ([]model.Refund, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Refund, 0)
    for rows.Next() {
        rf, err := scanRefund(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *rf)
    }
    return out, rows.Err()
}
