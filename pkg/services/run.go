package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/promptline/promptline/pkg/eventbus"
	"github.com/promptline/promptline/pkg/events"
	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/persistence"
)

// ErrRunNotFound is returned when a run is not found.
var ErrRunNotFound = persistence.ErrRunNotFound

// Run accepts trigger payloads and exposes run state. Execution itself
// happens in the worker: Trigger persists the run in the running state and
// publishes a dispatch event for a worker to pick up.
type Run struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
}

// NewRun creates a new run service.
func NewRun(store persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *Run {
	return &Run{
		persistence: store,
		eventBus:    bus,
		logger:      logger,
	}
}

// Trigger validates the payload against the chain, creates the run record in
// the running state and hands it to a worker via the event bus. The returned
// run is immediately queryable.
func (s *Run) Trigger(ctx context.Context, chainID, userID string, inputs map[string]any) (*models.Run, error) {
	if chainID == "" {
		return nil, ErrChainIDRequired
	}

	if userID == "" {
		return nil, ErrUserIDRequired
	}

	chain, err := s.persistence.ChainByID(ctx, chainID)
	if err != nil {
		return nil, err
	}

	if err := chain.Validate(); err != nil {
		return nil, err
	}

	if len(inputs) > models.MaxRunInputs {
		return nil, fmt.Errorf("trigger payload has %d inputs, maximum is %d: %w", len(inputs), models.MaxRunInputs, models.ErrTooManyInputs)
	}

	run := models.NewRun(chainID, userID, inputs)

	if err := s.persistence.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	event := events.RunTriggered{
		BaseEvent: events.NewBaseEvent(events.RunTriggeredEvent, chainID, run.ID),
		Inputs:    inputs,
	}
	event.UserID = userID

	if err := s.eventBus.Publish(ctx, run.ID, event); err != nil {
		// The run record exists but no worker will see it. Surface the
		// failure so the caller can retry the trigger.
		return nil, fmt.Errorf("failed to dispatch run %s: %w", run.ID, err)
	}

	s.logger.InfoContext(ctx, "Run triggered", "chain_id", chainID, "run_id", run.ID, "user_id", userID)

	return run, nil
}

// FetchByID returns one run by its identifier.
func (s *Run) FetchByID(ctx context.Context, id string) (*models.Run, error) {
	if id == "" {
		return nil, ErrRunIDRequired
	}

	return s.persistence.RunByID(ctx, id)
}

// ListByChain returns all runs recorded against a chain.
func (s *Run) ListByChain(ctx context.Context, chainID string) ([]*models.Run, error) {
	if chainID == "" {
		return nil, ErrChainIDRequired
	}

	return s.persistence.RunsByChain(ctx, chainID)
}

// StepResults returns a run's step results in execution order. The run must
// exist; a run with no recorded steps yet returns an empty slice.
func (s *Run) StepResults(ctx context.Context, runID string) ([]*models.StepResult, error) {
	if runID == "" {
		return nil, ErrRunIDRequired
	}

	if _, err := s.persistence.RunByID(ctx, runID); err != nil {
		return nil, err
	}

	results, err := s.persistence.StepResultsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if results == nil {
		results = []*models.StepResult{}
	}

	return results, nil
}
