package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one execution of a chain against a concrete input set. A run is
// created in the running state and transitions exactly once to completed
// or failed.
type Run struct {
	ID           string         `json:"id"`
	ChainID      string         `json:"chain_id"      validate:"required"`
	UserID       string         `json:"user_id"       validate:"required"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Status       RunStatus      `json:"status"`
	FailedStepID string         `json:"failed_step_id,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// NewRun creates a run record in the running state.
func NewRun(chainID, userID string, inputs map[string]any) *Run {
	return &Run{
		ID:        "run-" + uuid.New().String(),
		ChainID:   chainID,
		UserID:    userID,
		Inputs:    inputs,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}
