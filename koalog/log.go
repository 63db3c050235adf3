// Package koalog is the engine's logging facility. It follows the same
// package-level-singleton pattern wippyai-wasm-runtime/engine uses for its
// own *zap.Logger: a no-op logger by default, swappable by the CLI driver
// once flags are parsed.
package koalog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the engine-wide logger. It is a no-op logger until
// SetVerbose or SetLogger installs a real one, so library code (the VM, the
// collector, the thread runtime) can log unconditionally without forcing
// output on embedders.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger replaces the engine-wide logger, e.g. with a development logger
// from the CLI when the KOA_VERBOSE environment variable is set.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	logger = l
}

// SetVerbose installs a development logger (human-readable, debug level) or
// reverts to a no-op logger.
func SetVerbose(verbose bool) {
	if !verbose {
		SetLogger(zap.NewNop())
		return
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewNop()
	}
	SetLogger(l)
}
