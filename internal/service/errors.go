// Package service implements the booking, pricing, payment and refund
// workflows on top of the repositories, the payment gateway and the event
// publisher.  Handlers translate the error kinds below into HTTP statuses.
package service

import (
    "errors"
    "fmt"
)

// Error kinds.  Every error a service returns on purpose wraps one of
// these; anything else is an unexpected failure.
var (
    ErrValidation   = errors.New("validation failed")
    ErrRejected     = errors.New("request rejected")
    ErrNotFound     = errors.New("not found")
    ErrConflict     = errors.New("conflict")
    ErrGateway      = errors.New("payment gateway error")
    ErrUnauthorized = errors.New("unauthorized")
)

// Error carries a client-safe message and its kind.
type Error struct {
    Kind error
    Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func fail(kind error, format string, args ...any) error {
    return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Message returns the client-safe message of err, or "" when err was not
// produced by this package.
func Message(err error) string {
    var e *Error
    if errors.As(err, &e) {
        return e.Msg
    }
    return ""
}
