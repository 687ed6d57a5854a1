// Package log builds the logr.Logger used across the engine's data-plane
// packages (task runtime, cache, clustering and severity use cases,
// lifecycle scheduler, HTTP embedding client), backed by zap and adapted
// through zapr. The LLM arbiter, the local embedder, internal/database and
// the Postgres-backed incident repository and vector store log through
// logrus directly instead; see pkg/shared/logging for the field vocabulary
// shared by both.
package log

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls the underlying zap core.
type Options struct {
	Level       string // debug, info, warn, error
	Development bool
	JSONFormat  bool
}

// DefaultOptions returns production-leaning defaults: info level, JSON
// encoding, no development stack traces.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		JSONFormat: true,
	}
}

func (o Options) level() zapcore.Level {
	switch o.Level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger builds a logr.Logger over a zap.Logger configured from opts.
func NewLogger(opts Options) logr.Logger {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(opts.level())
	if !opts.JSONFormat {
		cfg.Encoding = "console"
	}

	zapLog, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op core rather than panicking on a logger
		// misconfiguration; callers depend on a non-nil Logger.
		zapLog = zap.NewNop()
	}
	return zapr.NewLogger(zapLog)
}
