// Package logging builds the process-wide zap logger from the config's
// LOGS block (spec §3, SPEC_FULL.md "Logging").
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger. An empty or malformed raw config falls back to
// a sane production-ish console logger rather than failing startup, since
// logging configuration is ambient, not a hard dependency.
func New(raw map[string]interface{}) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if raw != nil {
		if lv, ok := raw["level"].(string); ok {
			_ = level.UnmarshalText([]byte(lv))
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return cfg.Build()
}
