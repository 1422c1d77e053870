package shared

import (
	"errors"
	"fmt"
)

// Failure classes shared by every calculator module. Module packages wrap
// these so callers can branch on the class without importing each module's
// sentinel list.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates the request was rejected before any state mutation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStateConflict indicates the aggregate is in the wrong lifecycle state.
	ErrStateConflict = errors.New("state conflict")
	// ErrLimitExceeded indicates an amount exceeds available instrument capacity.
	ErrLimitExceeded = errors.New("limit exceeded")
	// ErrDownstream indicates a collaborator (ledger, fx provider) failed.
	ErrDownstream = errors.New("downstream failure")
)

// InvalidInput wraps ErrInvalidInput with a module-qualified message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidInput)...)
}

// StateConflict wraps ErrStateConflict, surfacing the current state to the caller.
func StateConflict(entity, current string) error {
	return fmt.Errorf("%s in state %s: %w", entity, current, ErrStateConflict)
}

// Downstream wraps a collaborator failure so the caller sees the class and cause.
func Downstream(collaborator string, err error) error {
	return fmt.Errorf("%s: %v: %w", collaborator, err, ErrDownstream)
}
