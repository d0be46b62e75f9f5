package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/persistence"
)

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) Chains(ctx context.Context) ([]*models.Chain, error) {
	args := m.Called(ctx)

	chains, _ := args.Get(0).([]*models.Chain)

	return chains, args.Error(1)
}

func (m *MockPersistence) SaveChain(ctx context.Context, chain *models.Chain) error {
	args := m.Called(ctx, chain)

	return args.Error(0)
}

func (m *MockPersistence) ChainByID(ctx context.Context, id string) (*models.Chain, error) {
	args := m.Called(ctx, id)

	chain, _ := args.Get(0).(*models.Chain)

	return chain, args.Error(1)
}

func (m *MockPersistence) DeleteChain(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) CreateRun(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockPersistence) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, detail persistence.RunStatusDetail) error {
	args := m.Called(ctx, runID, status, detail)

	return args.Error(0)
}

func (m *MockPersistence) RunByID(ctx context.Context, id string) (*models.Run, error) {
	args := m.Called(ctx, id)

	run, _ := args.Get(0).(*models.Run)

	return run, args.Error(1)
}

func (m *MockPersistence) RunsByChain(ctx context.Context, chainID string) ([]*models.Run, error) {
	args := m.Called(ctx, chainID)

	runs, _ := args.Get(0).([]*models.Run)

	return runs, args.Error(1)
}

func (m *MockPersistence) InsertStepResult(ctx context.Context, result *models.StepResult) error {
	args := m.Called(ctx, result)

	return args.Error(0)
}

func (m *MockPersistence) StepResultsByRun(ctx context.Context, runID string) ([]*models.StepResult, error) {
	args := m.Called(ctx, runID)

	results, _ := args.Get(0).([]*models.StepResult)

	return results, args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
