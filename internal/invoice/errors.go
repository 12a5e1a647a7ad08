package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound               = errors.New("invoice not found")
	ErrDuplicateInvoiceNumber = errors.New("invoice number already exists")
	ErrStoreUnavailable       = errors.New("invoice store unavailable")
	ErrValidationFailed       = errors.New("validation failed")
	// ErrNumberExhausted is returned when every generated number attempt collided.
	ErrNumberExhausted = errors.New("could not allocate invoice number")
)

// Violation describes one rejected field. Index is set for item-level problems.
type Violation struct {
	Field  string `json:"field"`
	Index  *int   `json:"index,omitempty"`
	Reason string `json:"reason"`
}

// ValidationError lists every violation found in a single pass.
type ValidationError struct {
	Violations []Violation
	causes     []error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// Unwrap exposes typed causes such as *pricing.InvalidLineItemError.
func (e *ValidationError) Unwrap() []error { return e.causes }

func (e *ValidationError) add(v Violation, cause error) {
	e.Violations = append(e.Violations, v)
	if cause != nil {
		e.causes = append(e.causes, cause)
	}
}

func (e *ValidationError) empty() bool { return len(e.Violations) == 0 }

// storeErr keeps domain sentinels intact and classifies anything else as an
// infrastructure failure.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateInvoiceNumber),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
