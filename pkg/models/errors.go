package models

import "errors"

// Chain validation errors. These are detected before any step executes and
// abort the run without producing step results.
var (
	ErrChainEmpty        = errors.New("chain has no steps")
	ErrChainTooLong      = errors.New("chain too long")
	ErrDuplicatePosition = errors.New("duplicate step position")
	ErrDuplicateStepID   = errors.New("duplicate step id")
	ErrMissingModel      = errors.New("step has no model configured")
	ErrTooManyInputs     = errors.New("run input set too large")
)
