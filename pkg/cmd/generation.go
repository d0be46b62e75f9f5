package cmd

import (
	"log/slog"

	"github.com/promptline/promptline/pkg/generation"
	"github.com/promptline/promptline/pkg/generation/openai"
)

// NewGenerationClient builds the generation provider for the worker.
func NewGenerationClient(provider, apiKey string, logger *slog.Logger) generation.Client {
	switch provider {
	case "openai":
		return openai.NewClient(apiKey, logger)
	default:
		panic("Unsupported generation provider: " + provider)
	}
}
