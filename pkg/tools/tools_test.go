package tools

import (
	"testing"

	"github.com/promptline/promptline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchTool() models.Tool {
	return models.Tool{
		Name:        "search",
		Description: "Search the knowledge base",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []any{"query"},
		},
	}
}

func TestRegistryBuildTools(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("search", searchTool()))

	built, err := registry.BuildTools([]string{"search"}, "user-1")
	require.NoError(t, err)
	require.Len(t, built, 1)
	assert.Equal(t, "search", built[0].Name)
}

func TestRegistryUnknownTool(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.BuildTools([]string{"missing"}, "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool missing")
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("search", searchTool()))

	err := registry.Register("search", searchTool())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryRejectsInvalidSchema(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register("broken", models.Tool{
		Name: "broken",
		Parameters: map[string]any{
			"type": 42,
		},
	})
	require.Error(t, err)
}

func TestRegistryEmptyToolIDs(t *testing.T) {
	registry := NewRegistry()

	built, err := registry.BuildTools(nil, "user-1")
	require.NoError(t, err)
	assert.Empty(t, built)
}
