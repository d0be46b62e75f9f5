// Package models defines the core domain models for prompt chain execution.
package models

import (
	"fmt"
	"sort"
	"time"
)

const (
	// MaxChainSteps is the maximum number of steps a chain may declare.
	// Chains longer than this are rejected before any step executes.
	MaxChainSteps = 20

	// MaxRunInputs bounds the literal input set supplied when triggering a run.
	MaxRunInputs = 50
)

// Chain is an ordered list of prompt steps. It is immutable for the
// duration of a run and may be shared read-only across concurrent runs.
type Chain struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"        validate:"required,min=3"`
	Description string    `json:"description"`
	Steps       []Step    `json:"steps"       validate:"required,min=1,dive"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Step is one templated generation call within a chain. Steps are read-only
// during a run; they are defined before the run begins.
type Step struct {
	ID             string `json:"id"              validate:"required"`
	Name           string `json:"name"            validate:"required"`
	Template       string `json:"template"        validate:"required"`
	SystemPreamble string `json:"system_preamble,omitempty"`
	Model          string `json:"model"           validate:"required"`
	Position       int    `json:"position"`

	// InputMapping maps a placeholder name to a source expression, either
	// "step_<id>.output" for a prior step's output or a dotted path into
	// the literal input set.
	InputMapping map[string]string `json:"input_mapping,omitempty"`

	// TimeoutSeconds bounds the generation call for this step. Nil means
	// no per-step deadline.
	TimeoutSeconds *int `json:"timeout_seconds,omitempty"`

	KnowledgeSourceIDs []string `json:"knowledge_source_ids,omitempty"`
	ToolIDs            []string `json:"tool_ids,omitempty"`
}

// OrderedSteps returns the chain's steps sorted by ascending position.
func (c *Chain) OrderedSteps() []Step {
	steps := make([]Step, len(c.Steps))
	copy(steps, c.Steps)
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Position < steps[j].Position
	})

	return steps
}

// Validate checks the structural invariants of the chain: the step count
// limit and the uniqueness of step positions and identifiers.
func (c *Chain) Validate() error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("chain %s: %w", c.ID, ErrChainEmpty)
	}

	if len(c.Steps) > MaxChainSteps {
		return fmt.Errorf("chain %s has %d steps, maximum is %d: %w", c.ID, len(c.Steps), MaxChainSteps, ErrChainTooLong)
	}

	positions := make(map[int]string, len(c.Steps))
	ids := make(map[string]struct{}, len(c.Steps))

	for _, step := range c.Steps {
		if other, exists := positions[step.Position]; exists {
			return fmt.Errorf("steps %s and %s share position %d: %w", other, step.ID, step.Position, ErrDuplicatePosition)
		}

		positions[step.Position] = step.ID

		if _, exists := ids[step.ID]; exists {
			return fmt.Errorf("duplicate step id %s: %w", step.ID, ErrDuplicateStepID)
		}

		ids[step.ID] = struct{}{}
	}

	return nil
}
