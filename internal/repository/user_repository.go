package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/bus-charter-booking/internal/model"
	"github.com/iliyamo/bus-charter-booking/internal/utils"
)

// UserRepo stores administrator accounts.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create hashes the password and inserts an account, returning its ID.
// An existing email yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// SetPassword replaces the hash of an existing account and reactivates it.
func (r *UserRepo) SetPassword(ctx context.Context, email, password string, cost int) error {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	return expectRow(r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, is_active=1 WHERE email=?", hash, email))
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,is_active,created_at,updated_at FROM users WHERE email=? LIMIT 1",
		email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,is_active,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id))
}
