// Package web provides HTTP request and response types for the chain API.
package web

import "github.com/promptline/promptline/pkg/models"

// StepRequest describes one step within a chain create or update request.
type StepRequest struct {
	ID                 string            `json:"id,omitempty"`
	Name               string            `json:"name"                           validate:"required,min=1"`
	Template           string            `json:"template"                       validate:"required"`
	SystemPreamble     string            `json:"system_preamble,omitempty"`
	Model              string            `json:"model"                          validate:"required"`
	Position           int               `json:"position"`
	InputMapping       map[string]string `json:"input_mapping,omitempty"`
	TimeoutSeconds     *int              `json:"timeout_seconds,omitempty"      validate:"omitempty,min=1"`
	KnowledgeSourceIDs []string          `json:"knowledge_source_ids,omitempty"`
	ToolIDs            []string          `json:"tool_ids,omitempty"`
}

// CreateChainRequest represents the request body for creating a new chain.
type CreateChainRequest struct {
	Name        string        `json:"name"        validate:"required,min=3"`
	Description string        `json:"description"`
	Owner       string        `json:"owner"       validate:"required"`
	Steps       []StepRequest `json:"steps"       validate:"required,min=1,dive"`
}

// UpdateChainRequest represents the request body for replacing a chain
// definition. The full step list is required; partial step updates are not
// supported.
type UpdateChainRequest struct {
	Name        string        `json:"name"        validate:"required,min=3"`
	Description string        `json:"description"`
	Steps       []StepRequest `json:"steps"       validate:"required,min=1,dive"`
}

// TriggerRunRequest represents the request body for triggering a run.
type TriggerRunRequest struct {
	Inputs map[string]any `json:"inputs,omitempty" validate:"omitempty,max=50"`
}

func stepsToModel(steps []StepRequest) []models.Step {
	out := make([]models.Step, len(steps))
	for i, step := range steps {
		out[i] = models.Step{
			ID:                 step.ID,
			Name:               step.Name,
			Template:           step.Template,
			SystemPreamble:     step.SystemPreamble,
			Model:              step.Model,
			Position:           step.Position,
			InputMapping:       step.InputMapping,
			TimeoutSeconds:     step.TimeoutSeconds,
			KnowledgeSourceIDs: step.KnowledgeSourceIDs,
			ToolIDs:            step.ToolIDs,
		}
	}

	return out
}

// ToModel converts the create request into a chain model.
func (r CreateChainRequest) ToModel() *models.Chain {
	return &models.Chain{
		Name:        r.Name,
		Description: r.Description,
		Owner:       r.Owner,
		Steps:       stepsToModel(r.Steps),
	}
}

// ToModel converts the update request into a chain model. Identity fields
// are filled in by the service from the stored chain.
func (r UpdateChainRequest) ToModel() *models.Chain {
	return &models.Chain{
		Name:        r.Name,
		Description: r.Description,
		Steps:       stepsToModel(r.Steps),
	}
}
