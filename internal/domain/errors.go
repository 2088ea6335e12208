package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")
	ErrTimeout       = errors.New("timeout")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// ConflictError describes a command rejected by a state-machine or
// uniqueness invariant. It carries the state the aggregate was in and
// the transition (or operation) the command attempted.
type ConflictError struct {
	Entity    string
	Current   string
	Attempted string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s in state %s cannot accept %s", e.Entity, e.Current, e.Attempted)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewConflictError creates a ConflictError.
func NewConflictError(entity, current, attempted string) *ConflictError {
	return &ConflictError{Entity: entity, Current: current, Attempted: attempted}
}

// TimeoutError is returned when a command was accepted but its projection
// did not materialize within the configured bound. The outcome is
// ambiguous: the command may still complete, so the caller should
// re-query later rather than resubmit.
type TimeoutError struct {
	AggregateID string
	Elapsed     time.Duration
	Attempts    int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"timed out waiting for projection of %s after %s (%d attempts); command may still complete, re-query instead of resubmitting",
		e.AggregateID, e.Elapsed, e.Attempts,
	)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }
