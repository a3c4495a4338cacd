// Package oerr defines the error taxonomy shared by all sidebar services.
// Validation, not-found and cycle errors are synchronous and side-effect-free;
// persistence errors mean the intent was queued for retry; integrity errors
// are surfaced to the operator and never auto-repaired.
package oerr

import (
	"errors"
	"fmt"
)

// ValidationError reports a bad enum value or missing field, rejected before
// any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NotFoundError reports an unknown context or target id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// CycleError reports a reparent that would make a context its own ancestor.
// Nothing is mutated when it is returned.
type CycleError struct {
	ContextID   string
	NewParentID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("reparenting %s under %s would create a cycle", e.ContextID, e.NewParentID)
}

// PersistenceError reports a failed store write. The intended write has been
// queued in the emergency cache and in-memory state is untouched.
type PersistenceError struct {
	ContextID string
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed for %s during %s: %v (queued for retry)", e.ContextID, e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IntegrityError reports an audit/snapshot mismatch found during
// verification.
type IntegrityError struct {
	ContextID string
	Detail    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation for %s: %s", e.ContextID, e.Detail)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCycle reports whether err is (or wraps) a CycleError.
func IsCycle(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
