package models

import (
	"time"

	"github.com/google/uuid"
)

// StepResultStatus represents the outcome of one executed step.
type StepResultStatus string

const (
	StepResultStatusCompleted StepResultStatus = "completed"
	StepResultStatusFailed    StepResultStatus = "failed"
)

// StepResult is the durable record of one step's outcome within a run. It is
// created when the step finishes and never mutated afterward. A run
// exclusively owns its step results.
type StepResult struct {
	ID            string           `json:"id"`
	RunID         string           `json:"run_id"`
	StepID        string           `json:"step_id"`
	ResolvedInput string           `json:"resolved_input"`
	Output        string           `json:"output"`
	Status        StepResultStatus `json:"status"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
	DurationMs    int64            `json:"duration_ms"`
}

// NewStepResult builds a completed step result for the given step and run.
func NewStepResult(runID, stepID, resolvedInput, output string, startedAt time.Time) *StepResult {
	completedAt := time.Now().UTC()

	return &StepResult{
		ID:            "sr-" + uuid.New().String(),
		RunID:         runID,
		StepID:        stepID,
		ResolvedInput: resolvedInput,
		Output:        output,
		Status:        StepResultStatusCompleted,
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
		DurationMs:    completedAt.Sub(startedAt).Milliseconds(),
	}
}

// NewFailedStepResult builds a failed step result carrying the error text.
// The output is empty on failure.
func NewFailedStepResult(runID, stepID, resolvedInput string, stepErr error, startedAt time.Time) *StepResult {
	completedAt := time.Now().UTC()

	return &StepResult{
		ID:            "sr-" + uuid.New().String(),
		RunID:         runID,
		StepID:        stepID,
		ResolvedInput: resolvedInput,
		Status:        StepResultStatusFailed,
		ErrorMessage:  stepErr.Error(),
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
		DurationMs:    completedAt.Sub(startedAt).Milliseconds(),
	}
}
