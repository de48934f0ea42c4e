package shared

import (
	"errors"
	"fmt"
)

// Error kinds every engine failure is classified into. Typed errors in the
// domain packages match one of these through errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRemoteFailure     = errors.New("ledger store failure")
	ErrConcurrencyHazard = errors.New("concurrency hazard")
)

var (
	ErrBatchNotOpen       = fmt.Errorf("%w: batch is not open", ErrInvalidState)
	ErrBatchAlreadyPosted = fmt.Errorf("%w: batch already posted", ErrInvalidState)

	// ErrPrimitiveUnavailable is returned by a store that does not implement
	// a requested atomic primitive. Callers fall through to the next strategy.
	ErrPrimitiveUnavailable = errors.New("store primitive unavailable")
)

// ValidationError reports a missing or malformed input field
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) ValidationError {
	return ValidationError{Field: field, Reason: reason}
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsClassified reports whether err already carries one of the taxonomy kinds.
func IsClassified(err error) bool {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrInvalidState, ErrInsufficientFunds, ErrRemoteFailure, ErrConcurrencyHazard} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Remote wraps a store error for operation op. Errors that are already
// classified keep their kind; anything else becomes ErrRemoteFailure.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClassified(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteFailure, err)
}
