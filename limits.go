package warden

import "github.com/wardenproto/warden/datalog"

// Limits is the public alias for the bounded-evaluation limits a Verifier
// enforces during Run. Re-exported here so callers configuring a
// Verifier via WithLimits don't need to import datalog directly.
type Limits = datalog.Limits

// DefaultLimits returns the limits applied when a Verifier isn't
// constructed with WithLimits: 1000 facts, 100 iterations, 1ms.
func DefaultLimits() Limits {
	return datalog.DefaultLimits()
}
