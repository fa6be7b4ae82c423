package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Error taxonomy
// Every error surfaced by repositories, the lifecycle engine, and the
// aggregator wraps exactly one of these sentinels so callers can classify
// failures with errors.Is.
// -----------------------------------------------------------------------------

var (
	// ErrNotFound means the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation means a mode mismatch or disallowed transition.
	// It is a programming or data error and must never be swallowed.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrConflict means a concurrent update was rejected; callers should
	// re-read and retry.
	ErrConflict = errors.New("conflict")

	// ErrValidation means a draft or content document is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrUpstream means the scoring oracle or a source-document fetch
	// failed or timed out. Retryable; never state-changing.
	ErrUpstream = errors.New("upstream failure")
)

// Entity-specific not-found errors. Each wraps ErrNotFound so both the
// specific and the general sentinel match.
var (
	ErrScenarioNotFound   = fmt.Errorf("scenario %w", ErrNotFound)
	ErrProgramNotFound    = fmt.Errorf("program %w", ErrNotFound)
	ErrTaskNotFound       = fmt.Errorf("task %w", ErrNotFound)
	ErrEvaluationNotFound = fmt.Errorf("evaluation %w", ErrNotFound)
)
