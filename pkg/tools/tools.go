// Package tools provisions named tool sets passed through opaquely to the
// generation provider.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/promptline/promptline/pkg/models"
)

// Builder assembles the tool definitions a step enables. Tool execution
// happens inside the generation provider; this core only passes definitions
// through.
type Builder interface {
	BuildTools(toolIDs []string, callerID string) ([]models.Tool, error)
}

// Registry is a Builder backed by an in-process table of tool definitions.
// Definitions are registered at startup; their parameter schemas are
// validated once, at registration.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]models.Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]models.Tool)}
}

// Register adds a tool definition after validating that its parameter
// document is a well-formed JSON schema.
func (r *Registry) Register(id string, tool models.Tool) error {
	if tool.Parameters != nil {
		raw, err := json.Marshal(tool.Parameters)
		if err != nil {
			return fmt.Errorf("tool %s: failed to encode parameter schema: %w", id, err)
		}

		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw)); err != nil {
			return fmt.Errorf("tool %s: invalid parameter schema: %w", id, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[id]; exists {
		return fmt.Errorf("tool %s already registered", id)
	}

	r.tools[id] = tool

	return nil
}

// BuildTools returns the definitions for the requested tool identifiers. An
// unknown identifier is an error; the step fails rather than silently
// running without the tool.
func (r *Registry) BuildTools(toolIDs []string, callerID string) ([]models.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	built := make([]models.Tool, 0, len(toolIDs))

	for _, id := range toolIDs {
		tool, exists := r.tools[id]
		if !exists {
			return nil, fmt.Errorf("unknown tool %s requested by %s", id, callerID)
		}

		built = append(built, tool)
	}

	return built, nil
}
