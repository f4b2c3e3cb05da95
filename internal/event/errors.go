package event

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSerializable is wrapped by ValidationError when a payload cannot be encoded as JSON.
	ErrNotSerializable = errors.New("payload is not JSON-serializable")
	// ErrUnknownType is reported by a strict collector for event names outside the rule table.
	ErrUnknownType = errors.New("unknown log type")
	// ErrInvalidField is wrapped by ValidationError when a type-specific field is missing or out of range.
	ErrInvalidField = errors.New("invalid payload field")
	// ErrAlreadyClosed is returned by Pending.Close on the second and later calls.
	ErrAlreadyClosed = errors.New("event already closed")
)

// ValidationError reports a payload that was rejected at construction or close time.
type ValidationError struct {
	Type       Type
	Field      string
	Constraint string
	Err        error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("field %q is required for %q log: %s", e.Field, e.Type, e.Constraint)
	case e.Constraint != "":
		return fmt.Sprintf("%q log: %s: %s", e.Type, e.Err, e.Constraint)
	default:
		return fmt.Sprintf("%q log: %s", e.Type, e.Err)
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

func fieldError(t Type, field, constraint string) error {
	return &ValidationError{Type: t, Field: field, Constraint: constraint, Err: ErrInvalidField}
}
