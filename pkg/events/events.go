// Package events defines event types and structures for run lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptline/promptline/pkg/models"
)

type EventType string

// Kafka topic carrying all run events.
const Topic = "promptline.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Dispatch event: a validated trigger payload waiting for a worker.
	RunTriggeredEvent EventType = "run.triggered"

	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"

	// Step lifecycle events.
	StepCompletedEvent EventType = "step.completed"
	StepFailedEvent    EventType = "step.failed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ChainID   string    `json:"chain_id"`
	RunID     string    `json:"run_id"`
	UserID    string    `json:"user_id,omitempty"`
}

// RunTriggered carries a validated run-trigger payload from the API to a
// worker. The caller was authorized before this event was published.
type RunTriggered struct {
	BaseEvent

	Inputs map[string]any `json:"inputs,omitempty"`
}

func (e RunTriggered) GetType() EventType {
	return RunTriggeredEvent
}

type RunStarted struct {
	BaseEvent

	ChainName string `json:"chain_name"`
	StepCount int    `json:"step_count"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	FinalOutput   string `json:"final_output"`
	StepsExecuted int    `json:"steps_executed"`
	DurationMs    int64  `json:"duration_ms"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	FailedStepID  string `json:"failed_step_id"`
	Error         string `json:"error"`
	StepsExecuted int    `json:"steps_executed"`
	DurationMs    int64  `json:"duration_ms"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type StepCompleted struct {
	BaseEvent

	StepID     string       `json:"step_id"`
	DurationMs int64        `json:"duration_ms"`
	Usage      models.Usage `json:"usage"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	StepID     string `json:"step_id"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

func NewBaseEvent(eventType EventType, chainID, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ChainID:   chainID,
		RunID:     runID,
	}
}
