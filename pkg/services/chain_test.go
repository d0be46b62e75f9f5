package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/persistence"
	"github.com/promptline/promptline/pkg/persistence/file"
)

func newFileStore(t *testing.T) *file.Persistence {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	return store
}

func validChain() *models.Chain {
	return &models.Chain{
		Name:        "Research pipeline",
		Description: "summarize then translate",
		Owner:       "user-1",
		Steps: []models.Step{
			{Name: "summarize", Template: "Summarize {{topic}}", Model: "gpt-4o"},
			{Name: "translate", Template: "Translate: {{summary}}", Model: "gpt-4o"},
		},
	}
}

func TestChainCreate(t *testing.T) {
	service := NewChain(newFileStore(t))

	created, err := service.Create(t.Context(), validChain())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())

	// Step IDs were generated and positions follow declaration order.
	require.Len(t, created.Steps, 2)
	assert.NotEmpty(t, created.Steps[0].ID)
	assert.Equal(t, 0, created.Steps[0].Position)
	assert.Equal(t, 1, created.Steps[1].Position)

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, fetched.Name)
}

func TestChainCreateValidation(t *testing.T) {
	service := NewChain(newFileStore(t))
	ctx := t.Context()

	_, err := service.Create(ctx, nil)
	require.ErrorIs(t, err, ErrChainNil)

	chain := validChain()
	chain.Name = ""
	_, err = service.Create(ctx, chain)
	require.ErrorIs(t, err, ErrChainNameRequired)

	chain = validChain()
	chain.Steps = nil
	_, err = service.Create(ctx, chain)
	require.ErrorIs(t, err, models.ErrChainEmpty)

	chain = validChain()
	chain.Steps[1].Model = ""
	_, err = service.Create(ctx, chain)
	require.ErrorIs(t, err, models.ErrMissingModel)

	chain = validChain()
	chain.Steps[1].Name = chain.Steps[0].Name
	_, err = service.Create(ctx, chain)
	require.ErrorIs(t, err, ErrDuplicateStepNames)

	chain = validChain()
	chain.Steps[0].Template = ""
	_, err = service.Create(ctx, chain)
	require.ErrorIs(t, err, ErrEmptyStepTemplate)
}

func TestChainCreateRejectsTooManySteps(t *testing.T) {
	service := NewChain(newFileStore(t))

	chain := validChain()
	chain.Steps = nil

	for i := 0; i <= models.MaxChainSteps; i++ {
		chain.Steps = append(chain.Steps, models.Step{
			Name:     fmt.Sprintf("step-%d", i),
			Template: "x",
			Model:    "gpt-4o",
			Position: i,
		})
	}

	_, err := service.Create(t.Context(), chain)
	require.ErrorIs(t, err, models.ErrChainTooLong)
}

func TestChainUpdate(t *testing.T) {
	service := NewChain(newFileStore(t))
	ctx := t.Context()

	created, err := service.Create(ctx, validChain())
	require.NoError(t, err)

	replacement := validChain()
	replacement.Name = "Renamed pipeline"

	updated, err := service.Update(ctx, created.ID, replacement)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Renamed pipeline", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.CreatedAt) || updated.UpdatedAt.Equal(created.CreatedAt))
}

func TestChainUpdateNotFound(t *testing.T) {
	service := NewChain(newFileStore(t))

	_, err := service.Update(t.Context(), "chain-missing", validChain())
	require.ErrorIs(t, err, persistence.ErrChainNotFound)
}

func TestChainDelete(t *testing.T) {
	service := NewChain(newFileStore(t))
	ctx := t.Context()

	created, err := service.Create(ctx, validChain())
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, created.ID))

	_, err = service.FetchByID(ctx, created.ID)
	require.ErrorIs(t, err, persistence.ErrChainNotFound)
}

func TestChainHealthCheck(t *testing.T) {
	service := NewChain(newFileStore(t))

	message, healthy := service.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.NotEmpty(t, message)

	message, healthy = NewChain(nil).HealthCheck(t.Context())
	assert.False(t, healthy)
	assert.NotEmpty(t, message)
}
