// Package dlog constructs the structured logger used throughout kyla,
// mirroring github.com/oneconcern/datamon/pkg/dlogger but handing the
// *zap.Logger to the caller instead of stashing it in a package global, so
// every component's logging dependency is explicit and testable.
package dlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LevelInfo is the default production level.
	LevelInfo = "info"
	// LevelDebug enables debug-level records.
	LevelDebug = "debug"
	// LevelNone discards all log records.
	LevelNone = "none"
)

// New returns a zap logger at the requested level. Pass LevelNone to get a
// no-op logger, useful for tests and library callers that pass their own
// log sink to the installer facade instead.
func New(level string) (*zap.Logger, error) {
	if level == LevelNone || level == "" {
		return zap.NewNop(), nil
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// MustNew is New but panics on error, for use in tests and command
// wiring where a bad level is a programming mistake, not a runtime fault.
func MustNew(level string) *zap.Logger {
	l, err := New(level)
	if err != nil {
		panic(err)
	}
	return l
}
