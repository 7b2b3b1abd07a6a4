// Package logger builds the zap logger shared by the server, the event
// consumer and the admin seeding tool.
package logger

import (
    "strings"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

// New returns a JSON production logger for prod environments and a
// colored development logger otherwise.  level overrides the default
// level when it parses (debug, info, warn, error).
func New(env, level string) (*zap.Logger, error) {
    var cfg zap.Config
    switch strings.ToLower(env) {
    case "prod", "production":
        cfg = zap.NewProductionConfig()
        cfg.EncoderConfig.TimeKey = "timestamp"
        cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
    default:
        cfg = zap.NewDevelopmentConfig()
        cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
    }
    if level != "" {
        var lvl zapcore.Level
        if err := lvl.UnmarshalText([]byte(level)); err == nil {
            cfg.Level = zap.NewAtomicLevelAt(lvl)
        }
    }
    return cfg.Build()
}
