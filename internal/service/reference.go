package service

import (
    "context"
    "crypto/rand"
    "database/sql"
    "errors"
    "fmt"
    "io"
    "math/big"

    "github.com/iliyamo/bus-charter-booking/internal/model"
    "github.com/iliyamo/bus-charter-booking/internal/repository"
)

const (
    referencePrefix   = "VIO-"
    referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
    referenceLength   = 6
    // maxReferenceAttempts bounds the retry loop; with 36^6 codes a
    // collision streak this long means something else is wrong.
    maxReferenceAttempts = 25
)

// NewReferenceCode draws a VIO-XXXXXX code from r.
func NewReferenceCode(r io.Reader) (string, error) {
    buf := make([]byte, 0, len(referencePrefix)+referenceLength)
    buf = append(buf, referencePrefix...)
    max := big.NewInt(int64(len(referenceAlphabet)))
    for i := 0; i < referenceLength; i++ {
        n, err := rand.Int(r, max)
        if err != nil {
            return "", err
        }
        buf = append(buf, referenceAlphabet[n.Int64()])
    }
    return string(buf), nil
}

// referenceGenerator binds a unique code to a reservation, drawing again
// on every collision.
type referenceGenerator struct {
    store ReferenceStore
    draw  func() (string, error)
}

func newReferenceGenerator(store ReferenceStore) *referenceGenerator {
    return &referenceGenerator{store: store, draw: func() (string, error) { return NewReferenceCode(rand.Reader) }}
}

func (g *referenceGenerator) assignTx(ctx context.Context, tx *sql.Tx, reservationID uint64) (*model.BookingReference, error) {
    for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
        code, err := g.draw()
        if err != nil {
            return nil, fmt.Errorf("draw reference: %w", err)
        }
        taken, err := g.store.CodeExistsTx(ctx, tx, code)
        if err != nil {
            return nil, err
        }
        if taken {
            continue
        }
        ref, err := g.store.CreateTx(ctx, tx, reservationID, code)
        if errors.Is(err, repository.ErrDuplicate) {
            continue
        }
        if err != nil {
            return nil, err
        }
        return ref, nil
    }
    return nil, fail(ErrConflict, "could not allocate a unique booking reference")
}
