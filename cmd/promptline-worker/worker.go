package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/promptline/promptline/pkg/eventbus"
	"github.com/promptline/promptline/pkg/events"
	"github.com/promptline/promptline/pkg/generation"
	"github.com/promptline/promptline/pkg/knowledge"
	"github.com/promptline/promptline/pkg/persistence"
	"github.com/promptline/promptline/pkg/runner"
)

// Worker consumes run dispatch events and executes chains. Each triggered
// run executes on its own goroutine; the runner serializes steps within a
// run.
type Worker struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	generator   generation.Client
	retriever   knowledge.Retriever
}

func NewWorker(
	id string,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	generator generation.Client,
	retriever knowledge.Retriever,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:          id,
		logger:      logger.With("module", "promptline-worker", "worker_id", id),
		persistence: store,
		eventBus:    eventBus,
		generator:   generator,
		retriever:   retriever,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker", "worker_id", w.id)

	err := w.eventBus.Handle(events.RunTriggeredEvent, w.handleRunTriggered)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *Worker) handleRunTriggered(ctx context.Context, event any) error {
	triggeredEvent, ok := event.(*events.RunTriggered)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunTriggered")

		return nil
	}

	logger := w.logger.With(
		"chain_id", triggeredEvent.ChainID,
		"run_id", triggeredEvent.RunID,
		"event_id", triggeredEvent.ID,
	)
	logger.InfoContext(ctx, "Processing run triggered event")

	chain, err := w.persistence.ChainByID(ctx, triggeredEvent.ChainID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load chain", "error", err)

		return err
	}

	run, err := w.persistence.RunByID(ctx, triggeredEvent.RunID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load run", "error", err)

		return err
	}

	if run.Status.IsTerminal() {
		// Redelivered event for an already settled run.
		logger.InfoContext(ctx, "Run already terminal, skipping", "status", run.Status)

		return nil
	}

	opts := []runner.Option{runner.WithEventBus(w.eventBus)}
	if w.retriever != nil {
		opts = append(opts, runner.WithRetriever(w.retriever))
	}

	chainRunner := runner.New(w.persistence, w.generator, logger, opts...)

	outcome, err := chainRunner.Execute(ctx, chain, run)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to execute run", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Run settled",
		"status", outcome.Status,
		"steps_executed", outcome.StepsExecuted,
		"failed_step_id", outcome.FailingStepID,
	)

	return nil
}
