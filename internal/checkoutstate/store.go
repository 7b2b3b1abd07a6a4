// Package checkoutstate remembers, for a short time, which checkout
// session a browser started.  The redirect back from the gateway carries
// an opaque state token; when the gateway forgets to substitute its own
// session id placeholder, the token is the only way to find the session.
package checkoutstate

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when the token is unknown or has expired.
var ErrNotFound = errors.New("checkout state not found")

// Store maps state tokens to checkout session ids.
type Store interface {
    Put(ctx context.Context, token, checkoutID string) error
    Get(ctx context.Context, token string) (string, error)
}

// NewToken returns a fresh opaque state token.
func NewToken() string { return uuid.NewString() }

// RedisStore keeps entries in Redis with a TTL.
type RedisStore struct {
    rdb    *redis.Client
    ttl    time.Duration
    prefix string
}

// NewRedisStore returns a Redis backed store.  ttl <= 0 means one hour.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
    if ttl <= 0 {
        ttl = time.Hour
    }
    return &RedisStore{rdb: rdb, ttl: ttl, prefix: "checkout:state:"}
}

func (s *RedisStore) Put(ctx context.Context, token, checkoutID string) error {
    return s.rdb.Set(ctx, s.prefix+token, checkoutID, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, token string) (string, error) {
    if token == "" {
        return "", ErrNotFound
    }
    v, err := s.rdb.Get(ctx, s.prefix+token).Result()
    if errors.Is(err, redis.Nil) {
        return "", ErrNotFound
    }
    return v, err
}

// MemoryStore is the fallback when Redis is unavailable.  Entries live in
// process memory, so a restart or a second replica loses them; the
// redirect then falls through to the latest awaiting invoice.
type MemoryStore struct {
    mu      sync.Mutex
    ttl     time.Duration
    now     func() time.Time
    entries map[string]memEntry
}

type memEntry struct {
    checkoutID string
    expires    time.Time
}

// NewMemoryStore returns an in-process store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
    if ttl <= 0 {
        ttl = time.Hour
    }
    return &MemoryStore{ttl: ttl, now: time.Now, entries: map[string]memEntry{}}
}

func (s *MemoryStore) Put(_ context.Context, token, checkoutID string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := s.now()
    for k, e := range s.entries {
        if now.After(e.expires) {
            delete(s.entries, k)
        }
    }
    s.entries[token] = memEntry{checkoutID: checkoutID, expires: now.Add(s.ttl)}
    return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    e, ok := s.entries[token]
    if !ok || s.now().After(e.expires) {
        return "", ErrNotFound
    }
    return e.checkoutID, nil
}
