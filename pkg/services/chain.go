package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/persistence"
)

// ErrChainNotFound is returned when a chain is not found.
var ErrChainNotFound = persistence.ErrChainNotFound

// Chain manages prompt chain definitions.
type Chain struct {
	persistence persistence.Persistence
}

// NewChain creates a new chain service.
func NewChain(persistence persistence.Persistence) *Chain {
	return &Chain{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Chain) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and persists a new chain. Missing chain and step IDs are
// assigned; positions default to declaration order when all are zero.
func (s *Chain) Create(ctx context.Context, chain *models.Chain) (*models.Chain, error) {
	if chain == nil {
		return nil, ErrChainNil
	}

	if chain.Name == "" {
		return nil, ErrChainNameRequired
	}

	if chain.ID == "" {
		chain.ID = "chain-" + uuid.New().String()
	}

	applyStepDefaults(chain)

	if err := validateSteps(chain); err != nil {
		return nil, err
	}

	if err := chain.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	chain.CreatedAt = now
	chain.UpdatedAt = now

	if err := s.persistence.SaveChain(ctx, chain); err != nil {
		return nil, fmt.Errorf("failed to save chain: %w", err)
	}

	return chain, nil
}

// Update validates and replaces an existing chain definition.
func (s *Chain) Update(ctx context.Context, id string, chain *models.Chain) (*models.Chain, error) {
	if id == "" {
		return nil, ErrChainIDRequired
	}

	if chain == nil {
		return nil, ErrChainNil
	}

	existing, err := s.persistence.ChainByID(ctx, id)
	if err != nil {
		return nil, err
	}

	chain.ID = existing.ID
	chain.CreatedAt = existing.CreatedAt
	chain.UpdatedAt = time.Now().UTC()

	applyStepDefaults(chain)

	if err := validateSteps(chain); err != nil {
		return nil, err
	}

	if err := chain.Validate(); err != nil {
		return nil, err
	}

	if err := s.persistence.SaveChain(ctx, chain); err != nil {
		return nil, fmt.Errorf("failed to save chain: %w", err)
	}

	return chain, nil
}

// FetchByID returns one chain by its identifier.
func (s *Chain) FetchByID(ctx context.Context, id string) (*models.Chain, error) {
	if id == "" {
		return nil, ErrChainIDRequired
	}

	return s.persistence.ChainByID(ctx, id)
}

// List returns all stored chains.
func (s *Chain) List(ctx context.Context) ([]*models.Chain, error) {
	return s.persistence.Chains(ctx)
}

// Delete removes a chain definition. Runs already recorded against it are
// kept for audit.
func (s *Chain) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrChainIDRequired
	}

	return s.persistence.DeleteChain(ctx, id)
}

// applyStepDefaults assigns missing step IDs and, when every position is
// zero, numbers the steps in declaration order.
func applyStepDefaults(chain *models.Chain) {
	allZero := true

	for i := range chain.Steps {
		if chain.Steps[i].ID == "" {
			chain.Steps[i].ID = "step-" + uuid.New().String()
		}

		if chain.Steps[i].Position != 0 {
			allZero = false
		}
	}

	if allZero && len(chain.Steps) > 1 {
		for i := range chain.Steps {
			chain.Steps[i].Position = i
		}
	}
}

// validateSteps enforces the service-level step rules that the model's
// structural validation does not cover.
func validateSteps(chain *models.Chain) error {
	names := make(map[string]struct{}, len(chain.Steps))

	for _, step := range chain.Steps {
		if step.Template == "" {
			return fmt.Errorf("step %s: %w", step.ID, ErrEmptyStepTemplate)
		}

		if step.Model == "" {
			return fmt.Errorf("step %s: %w", step.ID, models.ErrMissingModel)
		}

		if step.Name != "" {
			if _, exists := names[step.Name]; exists {
				return fmt.Errorf("step name %q: %w", step.Name, ErrDuplicateStepNames)
			}

			names[step.Name] = struct{}{}
		}
	}

	return nil
}
