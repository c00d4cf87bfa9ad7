// Package services holds the application services between the HTTP API and
// the persistence/orchestration layers.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrNotCancellable is returned when a run is already terminal.
	ErrNotCancellable = errors.New("run is not cancellable")

	// ErrNotResumable is returned when a run is not paused for review.
	ErrNotResumable = errors.New("run is not awaiting review")

	// ErrBusy is returned when the worker pool rejects a submission.
	ErrBusy = errors.New("queue at capacity")
)

// ValidationError wraps field-specific validation errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
