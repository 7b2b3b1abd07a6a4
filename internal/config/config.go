// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
    "errors"
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// Config holds the core runtime configuration.  Gateway, broker, Redis,
// cache and rate limit settings have their own loaders.
type Config struct {
    Env            string // application environment (dev, test, prod)
    Port           string // HTTP port to listen on
    DBUser         string
    DBPass         string // may be empty
    DBHost         string
    DBPort         string
    DBName         string
    AutoMigrate    bool   // apply schema.sql on startup
    JWTSecret      string // secret used to sign admin JWTs
    AccessTTLMin   int    // access token TTL in minutes
    RefreshTTLDays int    // refresh token TTL in days
    BcryptCost     int

    // PublicBaseURL is where the gateway sends the browser back to
    // (success/cancel endpoints of this service).
    PublicBaseURL string
    // FrontendURL receives the final redirect with status query params.
    FrontendURL      string
    CheckoutStateTTL time.Duration
    ShutdownTimeout  time.Duration
}

// LoadDotEnv reads .env (or the given files) into the process
// environment.  A missing file is not an error; variables already set win.
func LoadDotEnv(files ...string) error {
    if len(files) == 0 {
        files = []string{".env"}
    }
    var present []string
    for _, f := range files {
        if _, err := os.Stat(f); err == nil {
            present = append(present, f)
        }
    }
    if len(present) == 0 {
        return nil
    }
    return godotenv.Load(present...)
}

// Load reads configuration values from the environment.  Every missing or
// malformed required variable is reported in the returned error.
func Load() (Config, error) {
    var r reader
    cfg := Config{
        Env:              r.must("APP_ENV"),
        Port:             r.must("APP_PORT"),
        DBUser:           r.must("DB_USER"),
        DBPass:           os.Getenv("DB_PASS"),
        DBHost:           r.must("DB_HOST"),
        DBPort:           r.must("DB_PORT"),
        DBName:           r.must("DB_NAME"),
        AutoMigrate:      envBool("DB_AUTO_MIGRATE", true),
        JWTSecret:        r.must("JWT_SECRET"),
        AccessTTLMin:     r.mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays:   r.mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:       envInt("BCRYPT_COST", 12),
        PublicBaseURL:    strings.TrimRight(envStr("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
        FrontendURL:      strings.TrimRight(envStr("FRONTEND_URL", "http://localhost:3000"), "/"),
        CheckoutStateTTL: envDur("CHECKOUT_STATE_TTL", time.Hour),
        ShutdownTimeout:  envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
    }
    return cfg, r.err()
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production") }

// reader collects problems with required variables so they can be
// reported together instead of one restart at a time.
type reader struct {
    errs []error
}

// must retrieves the value of a required environment variable.
func (r *reader) must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        r.errs = append(r.errs, fmt.Errorf("missing required env var: %s", key))
    }
    return v
}

// mustInt is like must but converts the value into an integer.
func (r *reader) mustInt(key string) int {
    s := r.must(key)
    if s == "" {
        return 0
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        r.errs = append(r.errs, fmt.Errorf("invalid int for %s: %q", key, s))
    }
    return n
}

func (r *reader) err() error { return errors.Join(r.errs...) }
