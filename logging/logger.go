// Package logging provides the structured, sugared logger shared by every
// long-running component (ingest, orderer, group CRDT, sync sessions).
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.Mutex
	sugar  *zap.SugaredLogger
	base   *zap.Logger
	module = "groveauth"
)

// Sugar returns the process-wide sugared logger, constructing a sane
// production default the first time it is called.
func Sugar() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()

	if sugar != nil {
		return sugar
	}

	l, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction only fails on a broken encoder config; fall back
		// rather than let every caller of Sugar() have to handle an error
		// that cannot occur with the default config.
		l = zap.NewNop()
	}
	base = l
	sugar = l.Sugar().Named(module)
	return sugar
}

// SetLogger replaces the process-wide logger, e.g. to wire in a caller's own
// zap.Logger or a development configuration in tests.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()

	base = l
	sugar = l.Sugar().Named(module)
}

// Named returns a child logger scoped to the given component name, e.g.
// logging.Named("ingest").
func Named(name string) *zap.SugaredLogger {
	return Sugar().Named(name)
}

// Sync flushes any buffered log entries. Callers should defer this at
// process shutdown; errors are expected and ignored when stderr is a
// non-syncable console stream.
func Sync() {
	mu.Lock()
	l := base
	mu.Unlock()

	if l != nil {
		_ = l.Sync()
	}
}
