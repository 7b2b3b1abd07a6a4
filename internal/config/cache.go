package config

import (
    "strings"
    "time"
)

// CacheConfig controls the Redis response cache placed in front of the
// public read endpoints (available buses, current fuel price).
type CacheConfig struct {
    Enabled      bool
    TTL          time.Duration
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        TTL:          envDur("CACHE_TTL", 30*time.Second),
        Prefix:       strings.TrimSuffix(envStr("CACHE_PREFIX", "cache"), ":"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
    }
}
