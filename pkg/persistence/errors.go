// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrChainNotFound indicates a chain was not found by the given identifier.
	ErrChainNotFound = errors.New("chain not found")

	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrChainAlreadyExists indicates a chain with the same identifier already exists.
	ErrChainAlreadyExists = errors.New("chain already exists")

	// ErrRunTerminal indicates an attempt to update a run that already reached
	// a terminal status.
	ErrRunTerminal = errors.New("run already terminal")
)

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op    string // Operation being performed (e.g., "CreateRun", "UpdateRunStatus")
	RunID string // Run ID if applicable
	Err   error  // Underlying error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for run errors.
func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{Op: op, RunID: runID, Err: err}
}

// ChainError wraps chain-related errors with additional context.
type ChainError struct {
	Op      string
	ChainID string
	Err     error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s operation failed for chain %s: %v", e.Op, e.ChainID, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

func (e *ChainError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsChainNotFound checks if an error indicates a chain was not found.
func IsChainNotFound(err error) bool {
	return errors.Is(err, ErrChainNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
