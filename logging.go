package warden

import "go.uber.org/zap"

// newNopLogger returns the default diagnostic logger: silent. Verify is
// single-threaded and synchronous; logging must never become a source of
// I/O stall on that hot path, so callers opt in explicitly via
// WithLogger.
func newNopLogger() *zap.Logger {
	return zap.NewNop()
}
