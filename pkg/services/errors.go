// Package services provides the application layer between the HTTP surface
// and the persistence, runner and event bus collaborators.
package services

import (
	"errors"
	"fmt"

	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/persistence"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrChainNameRequired  = errors.New("chain name is required")
	ErrChainNil           = errors.New("chain cannot be nil")
	ErrUserIDRequired     = errors.New("user ID is required")
	ErrChainIDRequired    = errors.New("chain ID is required")
	ErrRunIDRequired      = errors.New("run ID is required")
	ErrEmptyStepTemplate  = errors.New("step template cannot be empty")
	ErrDuplicateStepNames = errors.New("step names must be unique within a chain")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string
	Code    string
	Message string
	Err     error
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

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrChainNameRequired) ||
		errors.Is(err, ErrChainNil) ||
		errors.Is(err, ErrUserIDRequired) ||
		errors.Is(err, ErrChainIDRequired) ||
		errors.Is(err, ErrRunIDRequired) ||
		errors.Is(err, ErrEmptyStepTemplate) ||
		errors.Is(err, ErrDuplicateStepNames) ||
		errors.Is(err, models.ErrChainEmpty) ||
		errors.Is(err, models.ErrChainTooLong) ||
		errors.Is(err, models.ErrDuplicatePosition) ||
		errors.Is(err, models.ErrDuplicateStepID) ||
		errors.Is(err, models.ErrMissingModel) ||
		errors.Is(err, models.ErrTooManyInputs)
}

// IsConflictError checks if an error is a business logic conflict that
// should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, persistence.ErrChainAlreadyExists) ||
		errors.Is(err, persistence.ErrRunTerminal)
}

// NewValidationError creates a validation error with operation context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
