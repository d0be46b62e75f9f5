package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/persistence"
)

// ChainRepository handles chain-related database operations.
type ChainRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewChainRepository creates a new chain repository.
func NewChainRepository(db *sql.DB, logger *slog.Logger) *ChainRepository {
	return &ChainRepository{db: db, logger: logger}
}

// Save upserts a chain. Steps are stored as a JSONB document.
func (cr *ChainRepository) Save(ctx context.Context, chain *models.Chain) error {
	stepsJSON, err := json.Marshal(chain.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO chains (id, name, description, steps, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			steps = EXCLUDED.steps,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at
	`

	_, err = cr.db.ExecContext(ctx, query,
		chain.ID,
		chain.Name,
		chain.Description,
		stepsJSON,
		chain.Owner,
		chain.CreatedAt,
		chain.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save chain: %w", err)
	}

	return nil
}

// GetByID retrieves a chain by its ID.
func (cr *ChainRepository) GetByID(ctx context.Context, id string) (*models.Chain, error) {
	query := `
		SELECT id, name, description, steps, owner, created_at, updated_at
		FROM chains
		WHERE id = $1
	`

	chain, err := cr.scanChain(cr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ChainError{Op: "GetByID", ChainID: id, Err: persistence.ErrChainNotFound}
		}

		return nil, fmt.Errorf("failed to scan chain: %w", err)
	}

	return chain, nil
}

// GetAll retrieves all chains, newest first.
func (cr *ChainRepository) GetAll(ctx context.Context) ([]*models.Chain, error) {
	query := `
		SELECT id, name, description, steps, owner, created_at, updated_at
		FROM chains
		ORDER BY created_at DESC
	`

	rows, err := cr.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			cr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var chains []*models.Chain

	for rows.Next() {
		chain, err := cr.scanChain(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}

		chains = append(chains, chain)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chains: %w", err)
	}

	return chains, nil
}

// Delete removes a chain by its ID.
func (cr *ChainRepository) Delete(ctx context.Context, id string) error {
	result, err := cr.db.ExecContext(ctx, "DELETE FROM chains WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete chain: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return &persistence.ChainError{Op: "Delete", ChainID: id, Err: persistence.ErrChainNotFound}
	}

	return nil
}

func (cr *ChainRepository) scanChain(scanner interface {
	Scan(dest ...any) error
}) (*models.Chain, error) {
	var (
		chain     models.Chain
		stepsJSON []byte
	)

	err := scanner.Scan(
		&chain.ID,
		&chain.Name,
		&chain.Description,
		&stepsJSON,
		&chain.Owner,
		&chain.CreatedAt,
		&chain.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if stepsJSON != nil {
		err := json.Unmarshal(stepsJSON, &chain.Steps)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}

	return &chain, nil
}
