package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = pass
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", host, port)
	cfg.DBName = name
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// RowsAffected reports matched rows so an UPDATE to the current value
	// is not mistaken for a missing row.
	cfg.ClientFoundRows = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// WithinTx runs fn inside a transaction.  The transaction is committed
// when fn returns nil and rolled back otherwise, so paired updates (an
// invoice and its reservation) either both land or neither does.
func WithinTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// TxRunner binds WithinTx to a database handle so services can depend on
// an interface instead of *sql.DB.
type TxRunner struct {
	DB *sql.DB
}

// WithinTx implements the service layer's transaction contract.
func (r TxRunner) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return WithinTx(ctx, r.DB, fn)
}
