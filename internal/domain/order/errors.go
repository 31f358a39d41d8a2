package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrLineItemNotFound is returned when a referenced line item is not on the order.
var ErrLineItemNotFound = errors.New("line item not found")

// ValidationError is an expected, user-facing error keyed on a single field.
// It blocks the triggering mutation and leaves the order unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// RecalcError reports a source whose compute failed during recalculation.
// It aborts the whole resync; no partial totals are committed. These are
// configuration defects (malformed calculators), not user errors.
type RecalcError struct {
	Source SourceRef
	Err    error
}

func (e *RecalcError) Error() string {
	return fmt.Sprintf("recalculate %s %s: %v", e.Source.Kind, e.Source.ID, e.Err)
}

func (e *RecalcError) Unwrap() error { return e.Err }
