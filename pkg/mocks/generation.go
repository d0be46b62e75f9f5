package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/promptline/promptline/pkg/generation"
	"github.com/promptline/promptline/pkg/knowledge"
	"github.com/promptline/promptline/pkg/models"
)

// MockGenerationClient is a mock implementation of generation.Client.
type MockGenerationClient struct {
	mock.Mock
}

func (m *MockGenerationClient) Stream(ctx context.Context, req generation.Request) (*generation.Handle, error) {
	args := m.Called(ctx, req)

	handle, _ := args.Get(0).(*generation.Handle)

	return handle, args.Error(1)
}

// MockRetriever is a mock implementation of knowledge.Retriever.
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, sourceRefs []string, callerID string) ([]knowledge.Chunk, error) {
	args := m.Called(ctx, query, sourceRefs, callerID)

	chunks, _ := args.Get(0).([]knowledge.Chunk)

	return chunks, args.Error(1)
}

// MockToolBuilder is a mock implementation of tools.Builder.
type MockToolBuilder struct {
	mock.Mock
}

func (m *MockToolBuilder) BuildTools(toolIDs []string, callerID string) ([]models.Tool, error) {
	args := m.Called(toolIDs, callerID)

	built, _ := args.Get(0).([]models.Tool)

	return built, args.Error(1)
}
