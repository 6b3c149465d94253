package ledger

import "errors"

// Sentinel errors forming the caller-facing failure taxonomy. Anything
// not wrapped in one of these is an internal failure (storage outage,
// encoding bug) and surfaces as a 500 at the HTTP boundary.
//
// None of these are transient: callers must not retry on them.
var (
	// ErrValidation covers malformed or out-of-range input: empty asset
	// or model label, non-positive prices, past target times, thresholds
	// above 10000.
	ErrValidation = errors.New("ledger: validation failed")

	// ErrPaused is returned by Submit while the engine is paused.
	// Resolution of existing predictions is unaffected.
	ErrPaused = errors.New("ledger: submissions are paused")

	// ErrNotFound is returned for an unknown prediction id.
	ErrNotFound = errors.New("ledger: prediction not found")

	// ErrAlreadyResolved is returned when resolving a prediction whose
	// resolution fields were already written.
	ErrAlreadyResolved = errors.New("ledger: prediction already resolved")

	// ErrUnauthorized is returned when the caller is neither the
	// prediction's predictor nor an oracle, or lacks admin capability.
	ErrUnauthorized = errors.New("ledger: caller not authorized")

	// ErrTooEarly is returned when resolution is attempted before the
	// prediction's target time.
	ErrTooEarly = errors.New("ledger: target time not reached")
)
