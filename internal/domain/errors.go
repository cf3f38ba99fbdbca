package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates user input was rejected before reaching the remote store.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidStage indicates a target stage is not declared by the board.
	ErrInvalidStage = errors.New("invalid stage")
	// ErrNotFound indicates the requested entity is not held locally.
	ErrNotFound = errors.New("not found")
)

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Required returns a ValidationError for an empty required field.
func Required(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}
