// Package logging builds the zap loggers shared by the services and tools.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls the root logger.
type Options struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Init replaces the process-wide root logger.
func Init(opts Options) error {
	logger, err := New(opts)
	if err != nil {
		return err
	}
	mu.Lock()
	root = logger
	mu.Unlock()
	zap.ReplaceGlobals(logger)
	return nil
}

// New builds a logger without installing it.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	var cfg zap.Config
	if strings.EqualFold(opts.Format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = level
	cfg.DisableStacktrace = true

	return cfg.Build()
}

// Named returns a sugared child of the root logger, e.g. Named("prompt.Orchestrator").
func Named(name string) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(name).Sugar()
}

// Sync flushes the root logger. Errors from syncing stdout/stderr are ignored.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
