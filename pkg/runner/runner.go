// Package runner executes prompt chains: a strictly sequential loop that
// resolves each step's template, invokes the generation provider, races the
// completion against the step's timeout and persists the result before the
// next step is issued.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptline/promptline/pkg/conversation"
	"github.com/promptline/promptline/pkg/eventbus"
	"github.com/promptline/promptline/pkg/events"
	"github.com/promptline/promptline/pkg/generation"
	"github.com/promptline/promptline/pkg/knowledge"
	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/otelhelper"
	"github.com/promptline/promptline/pkg/persistence"
	"github.com/promptline/promptline/pkg/race"
	"github.com/promptline/promptline/pkg/resolver"
	"github.com/promptline/promptline/pkg/tools"
)

// Outcome is the terminal result of one run. Exactly one of the two shapes
// is produced: completed with the final step's output, or failed with the
// failing step and its error.
type Outcome struct {
	RunID         string
	Status        models.RunStatus
	FinalOutput   string
	FailingStepID string
	ErrorMessage  string
	StepsExecuted int
}

// Runner drives chain execution. Chains are immutable and may be shared
// across concurrent runs; everything mutable (output map, conversation
// window) is created per run and never shared.
type Runner struct {
	persistence persistence.Persistence
	generator   generation.Client
	retriever   knowledge.Retriever
	toolBuilder tools.Builder
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	maxPairs    int
}

// Option configures optional runner collaborators.
type Option func(*Runner)

// WithRetriever wires the knowledge retrieval collaborator.
func WithRetriever(retriever knowledge.Retriever) Option {
	return func(r *Runner) { r.retriever = retriever }
}

// WithToolBuilder wires the tool provisioning collaborator.
func WithToolBuilder(builder tools.Builder) Option {
	return func(r *Runner) { r.toolBuilder = builder }
}

// WithEventBus wires the notification publisher. Publish failures are
// logged and swallowed; they never affect the run.
func WithEventBus(bus eventbus.EventPublisher) Option {
	return func(r *Runner) { r.eventBus = bus }
}

// WithMaxContextPairs bounds the conversation window handed to the provider.
func WithMaxContextPairs(maxPairs int) Option {
	return func(r *Runner) { r.maxPairs = maxPairs }
}

// New creates a runner around the required collaborators.
func New(store persistence.Persistence, generator generation.Client, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		persistence: store,
		generator:   generator,
		logger:      logger,
		tracer:      otel.Tracer("promptline.runner"),
		maxPairs:    conversation.DefaultMaxPairs,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Execute runs every step of the chain in ascending position order against
// the given run record. The run must not have been persisted yet: Execute
// creates it in the running state and writes its terminal status exactly
// once before returning.
//
// Chain-level validation failures (too many steps, oversized input set) are
// returned before the run record is created, so operators can distinguish
// "never started" from "failed at step N".
func (r *Runner) Execute(ctx context.Context, chain *models.Chain, run *models.Run) (*Outcome, error) {
	if err := chain.Validate(); err != nil {
		return nil, err
	}

	if len(run.Inputs) > models.MaxRunInputs {
		return nil, fmt.Errorf("run has %d inputs, maximum is %d: %w", len(run.Inputs), models.MaxRunInputs, models.ErrTooManyInputs)
	}

	logger := r.logger.With("chain_id", chain.ID, "run_id", run.ID, "user_id", run.UserID)

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "run.execute",
		attribute.String(otelhelper.ChainIDKey, chain.ID),
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.UserIDKey, run.UserID),
	)
	defer span.End()

	if err := r.persistence.CreateRun(ctx, run); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	steps := chain.OrderedSteps()

	logger.InfoContext(ctx, "Starting chain run", "steps", len(steps))
	r.publish(ctx, run.ID, events.RunStarted{
		BaseEvent: r.baseEvent(events.RunStartedEvent, chain.ID, run),
		ChainName: chain.Name,
		StepCount: len(steps),
	})

	window := conversation.NewWindow(r.maxPairs)
	outputs := make(map[string]string, len(steps))

	var finalOutput string

	for i, step := range steps {
		stepLogger := logger.With("step_id", step.ID, "step_name", step.Name, "position", step.Position)

		result, output, usage := r.executeStep(ctx, chain, run, step, outputs, window, stepLogger)

		if err := r.persistence.InsertStepResult(ctx, result); err != nil {
			// The store's retry layer is already exhausted here; the run
			// cannot continue without its audit trail.
			otelhelper.SetError(span, err)
			r.failRun(ctx, chain, run, step.ID, fmt.Errorf("failed to persist step result: %w", err), i, logger)

			return r.failedOutcome(run.ID, step.ID, fmt.Errorf("failed to persist step result: %w", err), i), nil
		}

		if result.Status == models.StepResultStatusFailed {
			stepErr := errors.New(result.ErrorMessage)
			otelhelper.SetError(span, stepErr, attribute.String(otelhelper.StepIDKey, step.ID))

			r.publish(ctx, run.ID, events.StepFailed{
				BaseEvent:  r.baseEvent(events.StepFailedEvent, chain.ID, run),
				StepID:     step.ID,
				Error:      result.ErrorMessage,
				DurationMs: result.DurationMs,
			})
			r.failRun(ctx, chain, run, step.ID, stepErr, i, logger)

			return r.failedOutcome(run.ID, step.ID, stepErr, i), nil
		}

		outputs[step.ID] = output
		window.Append(result.ResolvedInput, output)
		finalOutput = output

		stepLogger.InfoContext(ctx, "Step completed", "duration_ms", result.DurationMs)
		r.publish(ctx, run.ID, events.StepCompleted{
			BaseEvent:  r.baseEvent(events.StepCompletedEvent, chain.ID, run),
			StepID:     step.ID,
			DurationMs: result.DurationMs,
			Usage:      usage,
		})
	}

	completedAt := time.Now().UTC()

	err := r.persistence.UpdateRunStatus(ctx, run.ID, models.RunStatusCompleted, persistence.RunStatusDetail{
		CompletedAt: completedAt,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to mark run completed: %w", err)
	}

	logger.InfoContext(ctx, "Chain run completed", "steps_executed", len(steps))
	r.publish(ctx, run.ID, events.RunCompleted{
		BaseEvent:     r.baseEvent(events.RunCompletedEvent, chain.ID, run),
		FinalOutput:   finalOutput,
		StepsExecuted: len(steps),
		DurationMs:    completedAt.Sub(run.StartedAt).Milliseconds(),
	})

	return &Outcome{
		RunID:         run.ID,
		Status:        models.RunStatusCompleted,
		FinalOutput:   finalOutput,
		StepsExecuted: len(steps),
	}, nil
}

// executeStep performs one step end to end and always returns a step result
// to persist: completed with the output text, or failed with the error.
func (r *Runner) executeStep(
	ctx context.Context,
	chain *models.Chain,
	run *models.Run,
	step models.Step,
	outputs map[string]string,
	window *conversation.Window,
	logger *slog.Logger,
) (*models.StepResult, string, models.Usage) {
	startedAt := time.Now().UTC()

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "run.step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepNameKey, step.Name),
		attribute.String(otelhelper.ModelKey, step.Model),
	)
	defer span.End()

	if step.Model == "" {
		err := fmt.Errorf("step %s: %w", step.ID, models.ErrMissingModel)
		otelhelper.SetError(span, err)

		return models.NewFailedStepResult(run.ID, step.ID, "", err, startedAt), "", models.Usage{}
	}

	resolved, err := resolver.Resolve(step.Template, run.Inputs, outputs, step.InputMapping, step.ID)
	if err != nil {
		otelhelper.SetError(span, err)

		return models.NewFailedStepResult(run.ID, step.ID, "", err, startedAt), "", models.Usage{}
	}

	requestText := resolved

	if len(step.KnowledgeSourceIDs) > 0 && r.retriever != nil {
		chunks, err := r.retriever.Retrieve(ctx, resolved, step.KnowledgeSourceIDs, run.UserID)
		if err != nil {
			otelhelper.SetError(span, err)

			return models.NewFailedStepResult(run.ID, step.ID, resolved, fmt.Errorf("knowledge retrieval failed: %w", err), startedAt), "", models.Usage{}
		}

		requestText += knowledge.FormatChunks(chunks)
	}

	var stepTools []models.Tool

	if len(step.ToolIDs) > 0 && r.toolBuilder != nil {
		stepTools, err = r.toolBuilder.BuildTools(step.ToolIDs, run.UserID)
		if err != nil {
			otelhelper.SetError(span, err)

			return models.NewFailedStepResult(run.ID, step.ID, requestText, fmt.Errorf("tool provisioning failed: %w", err), startedAt), "", models.Usage{}
		}
	}

	request := generation.Request{
		Conversation:   append(window.Snapshot(), models.ChatMessage{Role: models.ChatMessageRoleUser, Content: requestText}),
		SystemPreamble: step.SystemPreamble,
		Tools:          stepTools,
		Model:          step.Model,
	}

	var timeout time.Duration
	if step.TimeoutSeconds != nil && *step.TimeoutSeconds > 0 {
		timeout = time.Duration(*step.TimeoutSeconds) * time.Second
	}

	settleHandle := race.NewHandle(timeout)

	genHandle, err := r.generator.Stream(ctx, request)
	if err != nil {
		otelhelper.SetError(span, err)

		return models.NewFailedStepResult(run.ID, step.ID, requestText, fmt.Errorf("generation call failed: %w", err), startedAt), "", models.Usage{}
	}

	go func() {
		result := <-genHandle.Done()
		if result.Err != nil {
			settleHandle.Fail(result.Err)

			return
		}

		settleHandle.Settle(result.Completion.Text, result.Completion.Usage, result.Completion.FinishReason)
	}()

	settlement, err := settleHandle.Await(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return models.NewFailedStepResult(run.ID, step.ID, requestText, err, startedAt), "", models.Usage{}
	}

	if settlement.Err != nil {
		otelhelper.SetError(span, settlement.Err)
		logger.WarnContext(ctx, "Step generation failed", "error", settlement.Err)

		return models.NewFailedStepResult(run.ID, step.ID, requestText, settlement.Err, startedAt), "", models.Usage{}
	}

	logger.DebugContext(ctx, "Step generation settled",
		"prompt_tokens", settlement.Usage.PromptTokens,
		"completion_tokens", settlement.Usage.CompletionTokens,
		"finish_reason", settlement.FinishReason,
	)

	return models.NewStepResult(run.ID, step.ID, requestText, settlement.Text, startedAt), settlement.Text, settlement.Usage
}

// failRun writes the run's terminal failure status and emits the failure
// notification. Persistence errors here are logged; the original step error
// is what callers see.
func (r *Runner) failRun(ctx context.Context, chain *models.Chain, run *models.Run, stepID string, stepErr error, stepsExecuted int, logger *slog.Logger) {
	err := r.persistence.UpdateRunStatus(ctx, run.ID, models.RunStatusFailed, persistence.RunStatusDetail{
		FailedStepID: stepID,
		ErrorMessage: stepErr.Error(),
		CompletedAt:  time.Now().UTC(),
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to mark run failed", "error", err)
	}

	logger.WarnContext(ctx, "Chain run failed", "failed_step_id", stepID, "error", stepErr)

	r.publish(ctx, run.ID, events.RunFailed{
		BaseEvent:     r.baseEvent(events.RunFailedEvent, chain.ID, run),
		FailedStepID:  stepID,
		Error:         stepErr.Error(),
		StepsExecuted: stepsExecuted,
		DurationMs:    time.Since(run.StartedAt).Milliseconds(),
	})
}

func (r *Runner) failedOutcome(runID, stepID string, stepErr error, stepsExecuted int) *Outcome {
	return &Outcome{
		RunID:         runID,
		Status:        models.RunStatusFailed,
		FailingStepID: stepID,
		ErrorMessage:  stepErr.Error(),
		StepsExecuted: stepsExecuted,
	}
}

func (r *Runner) baseEvent(eventType events.EventType, chainID string, run *models.Run) events.BaseEvent {
	base := events.NewBaseEvent(eventType, chainID, run.ID)
	base.UserID = run.UserID

	return base
}

// publish sends a notification and swallows any failure. Notifications are
// fire-and-forget; they must never fail the run.
func (r *Runner) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.eventBus == nil {
		return
	}

	if err := r.eventBus.Publish(ctx, key, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
