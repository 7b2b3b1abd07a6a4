package config

// Redis backs the checkout-state store, the rate limiter and the response
// cache.  A failed connection at startup is reported to the caller, which
// degrades to the in-process fallbacks.

import (
    "context"
    "crypto/tls"
    "os"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig holds connection parameters for Redis.
type RedisConfig struct {
    Addr     string
    Password string
    DB       int
    TLS      bool
}

// LoadRedisConfig reads REDIS_ADDR or REDIS_HOST/REDIS_PORT (host/port
// win when both are set), REDIS_PASSWORD, REDIS_DB and REDIS_TLS.
func LoadRedisConfig() RedisConfig {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    return RedisConfig{
        Addr:     addr,
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       envInt("REDIS_DB", 0),
        TLS:      envBool("REDIS_TLS", false),
    }
}

// NewRedisClient connects and pings Redis with a short timeout.  On
// failure the client is closed and the error returned.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
    opts := &redis.Options{
        Addr:     cfg.Addr,
        Password: cfg.Password,
        DB:       cfg.DB,
    }
    if cfg.TLS {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(opts)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, err
    }
    return client, nil
}
