package warden

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/wardenproto/warden/datalog"
)

// MissingSymbolsError is returned when a SymbolTable presented to Verify
// lacks one or more of the reserved symbols.
type MissingSymbolsError struct {
	Missing []string
}

func (e *MissingSymbolsError) Error() string {
	return fmt.Sprintf("warden: symbol table missing reserved symbols: %v", e.Missing)
}

// InvalidBlockRuleError is returned when a block's rule body fails
// well-formedness validation: a head variable not bound in the body.
// BlockID is 0 for the authority block; attenuating blocks count from 1.
type InvalidBlockRuleError struct {
	BlockID int
	Rule    string
	Err     error
}

func (e *InvalidBlockRuleError) Error() string {
	return fmt.Sprintf("warden: block %d: invalid rule %q: %v", e.BlockID, e.Rule, e.Err)
}

func (e *InvalidBlockRuleError) Unwrap() error { return e.Err }

// FailedCheck names one check that did not hold at the end of
// verification, along with which block asserted it (-1 for a verifier
// check that isn't tied to any block).
type FailedCheck struct {
	BlockID int
	Check   string
}

func (f FailedCheck) String() string {
	if f.BlockID < 0 {
		return fmt.Sprintf("verifier check failed: %s", f.Check)
	}
	return fmt.Sprintf("block %d check failed: %s", f.BlockID, f.Check)
}

// FailedChecksError aggregates every check that failed across every trust
// layer: errors accumulate across all checks of all blocks and are
// reported together, backed by hashicorp/go-multierror so the aggregate
// itself satisfies the standard error interface while retaining each
// individual failure.
type FailedChecksError struct {
	Failed  []FailedCheck
	wrapped *multierror.Error
}

func newFailedChecksError(failed []FailedCheck) *FailedChecksError {
	var agg multierror.Error
	for _, f := range failed {
		agg.Errors = append(agg.Errors, fmt.Errorf("%s", f.String()))
	}
	return &FailedChecksError{Failed: failed, wrapped: &agg}
}

func (e *FailedChecksError) Error() string {
	return e.wrapped.Error()
}

// DenyError is returned when a Deny policy was the last policy to match.
type DenyError struct {
	PolicyIndex int
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("warden: denied by policy %d", e.PolicyIndex)
}

// ErrNoMatchingPolicy is returned when verification reached the policy
// evaluation phase without a FailedChecksError, but no policy matched at
// all: default-deny when nothing matches.
var ErrNoMatchingPolicy = fmt.Errorf("warden: no policy matched")

// RunLimitError re-exports datalog's run-limit error under the warden
// package so callers don't need to import datalog just to type-switch on
// it.
type RunLimitError = datalog.RunLimitError

// FormatKind distinguishes which direction a Format error occurred in.
type FormatKind byte

const (
	FormatSerialization FormatKind = iota
	FormatDeserialization
)

// FormatError is returned by Save/Load when the persisted policy blob is
// malformed or its version is unsupported.
type FormatError struct {
	Kind FormatKind
	Err  error
}

func (e *FormatError) Error() string {
	if e.Kind == FormatSerialization {
		return fmt.Sprintf("warden: serialization failed: %v", e.Err)
	}
	return fmt.Sprintf("warden: deserialization failed: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }
