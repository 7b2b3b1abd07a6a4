// Package repository defines the MySQL data access layer and the error
// values it shares with the layers above.  Handlers and services use the
// sentinels below to distinguish failure scenarios without inspecting
// driver errors.
package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.  It
// replaces sql.ErrNoRows at the repository boundary.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique key
// (MySQL error 1062).
var ErrDuplicate = errors.New("duplicate entry")

// ErrConflict signals that an update could not be applied because the
// row is not in the expected state.
var ErrConflict = errors.New("conflict")

// DBTX is satisfied by both *sql.DB and *sql.Tx so that query helpers can
// run inside or outside a transaction.
type DBTX interface {
    ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// notFound maps sql.ErrNoRows to ErrNotFound and leaves other errors as is.
func notFound(err error) error {
    if errors.Is(err, sql.ErrNoRows) {
        return ErrNotFound
    }
    return err
}

// isDuplicate reports whether err is a MySQL unique key violation.
func isDuplicate(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == 1062
}
