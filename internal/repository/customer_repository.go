package repository

import (
    "context"
    "database/sql"
    "strings"

    "github.com/iliyamo/bus-charter-booking/internal/model"
)

// CustomerRepo provides access to the customers table.
type CustomerRepo struct {
    db *sql.DB
}

// NewCustomerRepo returns a new CustomerRepo bound to the given database.
func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{db: db} }

const customerColumns = `id, name, email, phone, address, id_document_ref, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (*model.Customer, error) {
    var c model.Customer
    var address, idDoc sql.NullString
    if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &address, &idDoc, &c.CreatedAt, &c.UpdatedAt); err != nil {
        return nil, notFound(err)
    }
    c.Address = strPtr(address)
    c.IDDocumentRef = strPtr(idDoc)
    return &c, nil
}

// GetByID returns a customer by primary key.
func (r *CustomerRepo) GetByID(ctx context.Context, id uint64) (*model.Customer, error) {
    return scanCustomer(r.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id))
}

// UpsertByEmailTx creates the customer on first booking or refreshes the
// contact details of an existing one.  Name and phone always take the new
// value; address and id_document_ref keep the stored value when the new
// one is NULL.  The row is locked for the rest of the transaction.
func (r *CustomerRepo) UpsertByEmailTx(ctx context.Context, tx *sql.Tx, c *model.Customer) error {
    c.Email = strings.ToLower(strings.TrimSpace(c.Email))
    const q = `INSERT INTO customers (name, email, phone, address, id_document_ref)
               VALUES (?, ?, ?, ?, ?)
               ON DUPLICATE KEY UPDATE
                   name = VALUES(name),
                   phone = VALUES(phone),
                   address = COALESCE(VALUES(address), address),
                   id_document_ref = COALESCE(VALUES(id_document_ref), id_document_ref)`
    if _, err := tx.ExecContext(ctx, q, c.Name, c.Email, c.Phone, nullStr(c.Address), nullStr(c.IDDocumentRef)); err != nil {
        return err
    }
    // LastInsertId is unreliable for ON DUPLICATE KEY UPDATE rows that did
    // not change, so read the row back by its unique email.
    got, err := scanCustomer(tx.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE email = ? FOR UPDATE`, c.Email))
    if err != nil {
        return err
    }
    *c = *got
    return nil
}
