package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("password must not be empty")

// HashPassword returns a bcrypt hash.  cost is clamped to bcrypt's
// accepted range so a bad BCRYPT_COST cannot lock admins out.
func HashPassword(plain string, cost int) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a bcrypt hash with a plain password.
func VerifyPassword(hash, plain string) bool {
	if hash == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
