package services

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to HTTP status codes by the API layer.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrNotGenerating = errors.New("itinerary is not generating")
	ErrBusy          = errors.New("generation capacity exhausted")
	ErrShuttingDown  = errors.New("service is shutting down")
)

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a field-level validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
