// Package services provides the journey and run operations behind the HTTP API.
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/journey/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidJourney = errors.New("invalid journey")
	ErrJourneyNil     = errors.New("journey cannot be nil")

	// ErrJourneyNotFound is returned when a journey is not found.
	ErrJourneyNotFound = persistence.ErrJourneyNotFound

	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = persistence.ErrRunNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ValidationError lists every structural problem found in a journey definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidJourney, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidJourney
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidJourney) ||
		errors.Is(err, ErrJourneyNil)
}

// IsNotFound checks if an error should return HTTP 404.
func IsNotFound(err error) bool {
	return persistence.IsJourneyNotFound(err) || persistence.IsRunNotFound(err)
}

// IsConflictError checks if an error is a conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return persistence.IsAlreadyExists(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
