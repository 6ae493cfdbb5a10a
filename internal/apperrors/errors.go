package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUpstream     = errors.New("upstream failure")
)

// Resolution misses. Callers must be able to tell these apart from a
// generic storage failure.
var (
	ErrConnectionNotFound = fmt.Errorf("connection %w", ErrNotFound)
	ErrNoDocumentAtRank   = fmt.Errorf("no document at that position: %w", ErrNotFound)
	ErrMessageNotFound    = fmt.Errorf("message %w", ErrNotFound)
	ErrBehaviorNotFound   = fmt.Errorf("organization behavior %w", ErrNotFound)
	ErrChunkNotFound      = fmt.Errorf("knowledge chunk %w", ErrNotFound)
)

var (
	ErrMissingUserID       = fmt.Errorf("userId is required: %w", ErrInvalidInput)
	ErrMissingQuestion     = fmt.Errorf("question is required: %w", ErrInvalidInput)
	ErrInvalidFeedbackType = fmt.Errorf("feedback type must be one of like, dislike, report, retry: %w", ErrInvalidInput)
	ErrDuplicateFeedback   = fmt.Errorf("feedback already submitted for this message: %w", ErrConflict)

	ErrCompletionUnavailable = fmt.Errorf("completion unavailable: %w", ErrUpstream)
)

// MissingFieldError reports a field that is required for the given request shape,
// e.g. reason for a report.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrInvalidInput }

// ValidationError reports a field whose value failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid is shorthand for a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
