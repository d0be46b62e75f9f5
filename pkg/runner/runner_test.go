package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/promptline/promptline/pkg/eventbus"
	"github.com/promptline/promptline/pkg/events"
	"github.com/promptline/promptline/pkg/generation"
	"github.com/promptline/promptline/pkg/knowledge"
	"github.com/promptline/promptline/pkg/mocks"
	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/persistence/file"
)

// stubGenerator scripts one completion per call, optionally delayed, and
// records every request it receives.
type stubGenerator struct {
	mu       sync.Mutex
	requests []generation.Request
	outputs  []string
	delay    time.Duration
	failAt   int // 1-based call index that fails; 0 means never
	err      error
}

func (s *stubGenerator) Stream(_ context.Context, req generation.Request) (*generation.Handle, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	call := len(s.requests)
	s.mu.Unlock()

	handle := generation.NewHandle()

	go func() {
		if s.delay > 0 {
			time.Sleep(s.delay)
		}

		if s.failAt != 0 && call == s.failAt {
			handle.Fail(s.err)

			return
		}

		output := fmt.Sprintf("output-%d", call)
		if call <= len(s.outputs) {
			output = s.outputs[call-1]
		}

		handle.Complete(generation.Completion{
			Text:         output,
			Usage:        models.Usage{PromptTokens: 10, CompletionTokens: 20},
			FinishReason: models.FinishReasonStop,
		})
	}()

	return handle, nil
}

func (s *stubGenerator) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.requests)
}

func (s *stubGenerator) request(i int) generation.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.requests[i]
}

func newTestRunner(t *testing.T, gen generation.Client, opts ...Option) (*Runner, *file.Persistence) {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	return New(store, gen, slog.Default(), opts...), store
}

func twoStepChain() *models.Chain {
	return &models.Chain{
		ID:   "chain-1",
		Name: "summarize and translate",
		Steps: []models.Step{
			{
				ID:       "step-a",
				Name:     "summarize",
				Template: "Summarize {{topic}}",
				Model:    "gpt-4o",
				Position: 0,
			},
			{
				ID:       "step-b",
				Name:     "translate",
				Template: "Translate: {{summary}}",
				Model:    "gpt-4o",
				Position: 1,
				InputMapping: map[string]string{
					"summary": "step_step-a.output",
				},
			},
		},
	}
}

func TestExecuteChainedSteps(t *testing.T) {
	gen := &stubGenerator{outputs: []string{"the summary", "la traduction"}}
	r, store := newTestRunner(t, gen)
	ctx := context.Background()

	run := models.NewRun("chain-1", "user-1", map[string]any{"topic": "quarterly earnings"})

	outcome, err := r.Execute(ctx, twoStepChain(), run)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, outcome.Status)
	assert.Equal(t, "la traduction", outcome.FinalOutput)
	assert.Equal(t, 2, outcome.StepsExecuted)

	// Step A's output is substituted verbatim into step B's resolved text.
	require.Equal(t, 2, gen.requestCount())
	second := gen.request(1)
	lastMessage := second.Conversation[len(second.Conversation)-1]
	assert.Equal(t, "Translate: the summary", lastMessage.Content)

	// Exactly one step result per step, in position order.
	results, err := store.StepResultsByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "step-a", results[0].StepID)
	assert.Equal(t, models.StepResultStatusCompleted, results[0].Status)
	assert.Equal(t, "the summary", results[0].Output)
	assert.Equal(t, "step-b", results[1].StepID)
	assert.Equal(t, "la traduction", results[1].Output)

	persisted, err := store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, persisted.Status)
	require.NotNil(t, persisted.CompletedAt)
}

func TestExecuteSelfReferenceFailsRun(t *testing.T) {
	gen := &stubGenerator{}
	r, store := newTestRunner(t, gen)
	ctx := context.Background()

	chain := twoStepChain()
	chain.Steps[1].InputMapping = map[string]string{
		"summary": "step_step-b.output",
	}

	run := models.NewRun("chain-1", "user-1", map[string]any{"topic": "bees"})

	outcome, err := r.Execute(ctx, chain, run)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, outcome.Status)
	assert.Equal(t, "step-b", outcome.FailingStepID)
	assert.Contains(t, outcome.ErrorMessage, "step-b")
	assert.Contains(t, outcome.ErrorMessage, "has not executed yet")

	// Step A completed, step B has a failure record, nothing beyond.
	results, err := store.StepResultsByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.StepResultStatusCompleted, results[0].Status)
	assert.Equal(t, models.StepResultStatusFailed, results[1].Status)

	// Only step A's generation call was ever issued.
	assert.Equal(t, 1, gen.requestCount())

	persisted, err := store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, persisted.Status)
	assert.Equal(t, "step-b", persisted.FailedStepID)
}

func TestExecuteChainTooLongRejectedBeforeAnyExecution(t *testing.T) {
	gen := &stubGenerator{}
	r, store := newTestRunner(t, gen)
	ctx := context.Background()

	steps := make([]models.Step, models.MaxChainSteps+1)
	for i := range steps {
		steps[i] = models.Step{
			ID:       fmt.Sprintf("step-%d", i),
			Name:     "step",
			Template: "x",
			Model:    "gpt-4o",
			Position: i,
		}
	}

	chain := &models.Chain{ID: "chain-long", Name: "too long", Steps: steps}
	run := models.NewRun("chain-long", "user-1", nil)

	_, err := r.Execute(ctx, chain, run)
	require.ErrorIs(t, err, models.ErrChainTooLong)

	// No run record and no step results were created.
	assert.Equal(t, 0, gen.requestCount())

	_, err = store.RunByID(ctx, run.ID)
	require.Error(t, err)

	results, err := store.StepResultsByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExecuteTooManyInputsRejected(t *testing.T) {
	gen := &stubGenerator{}
	r, _ := newTestRunner(t, gen)

	inputs := make(map[string]any, models.MaxRunInputs+1)
	for i := 0; i <= models.MaxRunInputs; i++ {
		inputs[fmt.Sprintf("key-%d", i)] = i
	}

	run := models.NewRun("chain-1", "user-1", inputs)

	_, err := r.Execute(context.Background(), twoStepChain(), run)
	require.ErrorIs(t, err, models.ErrTooManyInputs)
	assert.Equal(t, 0, gen.requestCount())
}

func TestExecuteContextWindowTrimming(t *testing.T) {
	// maxPairs = 2, five steps: the final request sees only the pairs from
	// steps 3 and 4 plus its own new user message.
	steps := make([]models.Step, 5)
	for i := range steps {
		steps[i] = models.Step{
			ID:       fmt.Sprintf("step-%d", i+1),
			Name:     "step",
			Template: fmt.Sprintf("prompt %d", i+1),
			Model:    "gpt-4o",
			Position: i,
		}
	}

	chain := &models.Chain{ID: "chain-5", Name: "five steps", Steps: steps}
	gen := &stubGenerator{}
	r, _ := newTestRunner(t, gen, WithMaxContextPairs(2))

	run := models.NewRun("chain-5", "user-1", nil)

	outcome, err := r.Execute(context.Background(), chain, run)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, outcome.Status)

	require.Equal(t, 5, gen.requestCount())

	last := gen.request(4)
	require.Len(t, last.Conversation, 5) // 4 retained messages + new user message
	assert.Equal(t, "prompt 3", last.Conversation[0].Content)
	assert.Equal(t, "output-3", last.Conversation[1].Content)
	assert.Equal(t, "prompt 4", last.Conversation[2].Content)
	assert.Equal(t, "output-4", last.Conversation[3].Content)
	assert.Equal(t, "prompt 5", last.Conversation[4].Content)
}

func TestExecuteTimeoutRecordsSingleFailure(t *testing.T) {
	timeout := 1
	chain := &models.Chain{
		ID:   "chain-t",
		Name: "slow",
		Steps: []models.Step{
			{
				ID:             "step-slow",
				Name:           "slow step",
				Template:       "take your time",
				Model:          "gpt-4o",
				Position:       0,
				TimeoutSeconds: &timeout,
			},
		},
	}

	gen := &stubGenerator{delay: 3 * time.Second}
	r, store := newTestRunner(t, gen)
	ctx := context.Background()

	run := models.NewRun("chain-t", "user-1", nil)

	outcome, err := r.Execute(ctx, chain, run)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, outcome.Status)
	assert.Equal(t, "step-slow", outcome.FailingStepID)
	assert.Contains(t, outcome.ErrorMessage, "timed out after 1s")

	// Exactly one step result, even though the late completion eventually
	// arrives.
	time.Sleep(3 * time.Second)

	results, err := store.StepResultsByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.StepResultStatusFailed, results[0].Status)
	assert.Contains(t, results[0].ErrorMessage, "timed out after 1s")
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	chain := &models.Chain{
		ID:   "chain-3",
		Name: "three steps",
		Steps: []models.Step{
			{ID: "step-1", Name: "one", Template: "a", Model: "gpt-4o", Position: 0},
			{ID: "step-2", Name: "two", Template: "b", Model: "gpt-4o", Position: 1},
			{ID: "step-3", Name: "three", Template: "c", Model: "gpt-4o", Position: 2},
		},
	}

	gen := &stubGenerator{failAt: 2, err: errors.New("provider unavailable")}
	r, store := newTestRunner(t, gen)
	ctx := context.Background()

	run := models.NewRun("chain-3", "user-1", nil)

	outcome, err := r.Execute(ctx, chain, run)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, outcome.Status)
	assert.Equal(t, "step-2", outcome.FailingStepID)
	assert.Equal(t, 1, outcome.StepsExecuted)

	// Step 3 was never issued.
	assert.Equal(t, 2, gen.requestCount())

	// Partial progress remains queryable: step 1 completed, step 2 failed.
	results, err := store.StepResultsByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.StepResultStatusCompleted, results[0].Status)
	assert.Equal(t, models.StepResultStatusFailed, results[1].Status)
	assert.Contains(t, results[1].ErrorMessage, "provider unavailable")
}

func TestExecuteMissingModelIsFatal(t *testing.T) {
	chain := &models.Chain{
		ID:   "chain-m",
		Name: "missing model",
		Steps: []models.Step{
			{ID: "step-1", Name: "one", Template: "a", Position: 0},
		},
	}

	gen := &stubGenerator{}
	r, store := newTestRunner(t, gen)
	ctx := context.Background()

	run := models.NewRun("chain-m", "user-1", nil)

	outcome, err := r.Execute(ctx, chain, run)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, outcome.Status)
	assert.Equal(t, "step-1", outcome.FailingStepID)
	assert.Equal(t, 0, gen.requestCount())

	results, err := store.StepResultsByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.StepResultStatusFailed, results[0].Status)
}

func TestExecutePersistFailureFailsRun(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	store.On("InsertStepResult", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	store.On("UpdateRunStatus", mock.Anything, mock.Anything, models.RunStatusFailed, mock.Anything).Return(nil)

	gen := &stubGenerator{}
	r := New(store, gen, slog.Default())

	run := models.NewRun("chain-1", "user-1", map[string]any{"topic": "bees"})

	outcome, err := r.Execute(context.Background(), twoStepChain(), run)
	require.NoError(t, err)

	// A step result that cannot be persisted is fatal: the next step never
	// executes and the run fails.
	assert.Equal(t, models.RunStatusFailed, outcome.Status)
	assert.Equal(t, "step-a", outcome.FailingStepID)
	assert.Contains(t, outcome.ErrorMessage, "failed to persist step result")
	assert.Equal(t, 1, gen.requestCount())
	store.AssertExpectations(t)
}

func TestExecuteSystemPreambleAndToolsPassedThrough(t *testing.T) {
	chain := &models.Chain{
		ID:   "chain-p",
		Name: "with preamble",
		Steps: []models.Step{
			{
				ID:             "step-1",
				Name:           "one",
				Template:       "a",
				Model:          "gpt-4o",
				Position:       0,
				SystemPreamble: "You are terse.",
				ToolIDs:        []string{"search"},
			},
		},
	}

	builder := &mocks.MockToolBuilder{}
	builder.On("BuildTools", []string{"search"}, "user-1").
		Return([]models.Tool{{Name: "search"}}, nil)

	gen := &stubGenerator{}
	r, _ := newTestRunner(t, gen, WithToolBuilder(builder))

	run := models.NewRun("chain-p", "user-1", nil)

	_, err := r.Execute(context.Background(), chain, run)
	require.NoError(t, err)

	req := gen.request(0)
	assert.Equal(t, "You are terse.", req.SystemPreamble)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "search", req.Tools[0].Name)
	builder.AssertExpectations(t)
}

func TestExecuteKnowledgeAppendedToPrompt(t *testing.T) {
	chain := &models.Chain{
		ID:   "chain-k",
		Name: "with knowledge",
		Steps: []models.Step{
			{
				ID:                 "step-1",
				Name:               "one",
				Template:           "Summarize {{topic}}",
				Model:              "gpt-4o",
				Position:           0,
				KnowledgeSourceIDs: []string{"kb-1"},
			},
		},
	}

	retriever := &mocks.MockRetriever{}
	retriever.On("Retrieve", mock.Anything, "Summarize bees", []string{"kb-1"}, "user-1").
		Return([]knowledge.Chunk{{SourceID: "kb-1", Content: "bees dance"}}, nil)

	gen := &stubGenerator{}
	r, _ := newTestRunner(t, gen, WithRetriever(retriever))

	run := models.NewRun("chain-k", "user-1", map[string]any{"topic": "bees"})

	_, err := r.Execute(context.Background(), chain, run)
	require.NoError(t, err)

	req := gen.request(0)
	prompt := req.Conversation[len(req.Conversation)-1].Content
	assert.Contains(t, prompt, "Summarize bees")
	assert.Contains(t, prompt, "bees dance")
	retriever.AssertExpectations(t)
}

func TestExecuteRetrievalErrorFailsStep(t *testing.T) {
	chain := &models.Chain{
		ID:   "chain-k",
		Name: "with knowledge",
		Steps: []models.Step{
			{
				ID:                 "step-1",
				Name:               "one",
				Template:           "a",
				Model:              "gpt-4o",
				Position:           0,
				KnowledgeSourceIDs: []string{"kb-1"},
			},
		},
	}

	retriever := &mocks.MockRetriever{}
	retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("index offline"))

	gen := &stubGenerator{}
	r, _ := newTestRunner(t, gen, WithRetriever(retriever))

	run := models.NewRun("chain-k", "user-1", nil)

	outcome, err := r.Execute(context.Background(), chain, run)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, outcome.Status)
	assert.Contains(t, outcome.ErrorMessage, "knowledge retrieval failed")
	assert.Equal(t, 0, gen.requestCount())
}

func TestExecutePublishesLifecycleEvents(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	gen := &stubGenerator{}
	r, _ := newTestRunner(t, gen, WithEventBus(bus))

	run := models.NewRun("chain-1", "user-1", map[string]any{"topic": "bees"})

	_, err := r.Execute(context.Background(), twoStepChain(), run)
	require.NoError(t, err)

	types := make([]events.EventType, 0, len(bus.Calls))
	for _, call := range bus.Calls {
		types = append(types, call.Arguments[2].(eventbus.Event).GetType())
	}

	assert.Equal(t, []events.EventType{
		events.RunStartedEvent,
		events.StepCompletedEvent,
		events.StepCompletedEvent,
		events.RunCompletedEvent,
	}, types)
}

func TestExecuteNotificationFailuresAreSwallowed(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	gen := &stubGenerator{}
	r, _ := newTestRunner(t, gen, WithEventBus(bus))

	run := models.NewRun("chain-1", "user-1", map[string]any{"topic": "bees"})

	outcome, err := r.Execute(context.Background(), twoStepChain(), run)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, outcome.Status)
}
