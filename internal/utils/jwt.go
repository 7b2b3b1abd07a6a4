package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // refresh token entropy
    "crypto/sha256" // refresh tokens are stored hashed
    "encoding/hex"
    "errors"
    "strconv"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped into every access token and checked on parse.
const Issuer = "bus-charter-booking"

// ErrInvalidToken is returned by ParseAccessToken for any token that is
// malformed, expired, signed with another key or algorithm, or issued by
// someone else.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken is a signed JWT with its expiry.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// RefreshToken is the long-lived token handed to an admin client.  Only a
// SHA-256 hash of Raw is ever persisted.
type RefreshToken struct {
    Raw string
    Exp time.Time
}

// Claims carried by admin access tokens.  The subject is the user id in
// decimal.
type Claims struct {
    Role string `json:"role"`
    jwt.RegisteredClaims
}

// UserID returns the numeric subject.
func (c *Claims) UserID() (uint64, error) {
    return strconv.ParseUint(c.Subject, 10, 64)
}

// NewAccessToken builds and signs an HS256 JWT for a user.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := Claims{
        Role: role,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   strconv.FormatUint(userID, 10),
            Issuer:    Issuer,
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw and returns its claims.
func ParseAccessToken(secret, raw string) (*Claims, error) {
    var claims Claims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
        return []byte(secret), nil
    },
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithIssuer(Issuer),
        jwt.WithExpirationRequired(),
    )
    if err != nil || !tok.Valid {
        return nil, ErrInvalidToken
    }
    if _, err := claims.UserID(); err != nil {
        return nil, ErrInvalidToken
    }
    return &claims, nil
}

// NewRefreshToken returns a random 96 hex character token valid for ttl.
func NewRefreshToken(ttl time.Duration) (RefreshToken, error) {
    raw, err := randomHex(48)
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{Raw: raw, Exp: time.Now().UTC().Add(ttl)}, nil
}

// HashRefreshRaw returns the hex SHA-256 of a raw refresh token.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
