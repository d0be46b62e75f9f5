package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/promptline/promptline/pkg/models"
)

// StepResultRepository handles step result database operations.
type StepResultRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepResultRepository creates a new step result repository.
func NewStepResultRepository(db *sql.DB, logger *slog.Logger) *StepResultRepository {
	return &StepResultRepository{db: db, logger: logger}
}

// Insert writes one step result. Step results are immutable: a retried
// insert with the same ID is a no-op, never an update.
func (srr *StepResultRepository) Insert(ctx context.Context, result *models.StepResult) error {
	query := `
		INSERT INTO step_results (id, run_id, step_id, resolved_input, output, status, error_message, started_at, completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := srr.db.ExecContext(ctx, query,
		result.ID,
		result.RunID,
		result.StepID,
		result.ResolvedInput,
		result.Output,
		result.Status,
		nullString(result.ErrorMessage),
		result.StartedAt,
		result.CompletedAt,
		result.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step result: %w", err)
	}

	return nil
}

// GetByRun retrieves a run's step results in execution order.
func (srr *StepResultRepository) GetByRun(ctx context.Context, runID string) ([]*models.StepResult, error) {
	query := `
		SELECT id, run_id, step_id, resolved_input, output, status, error_message, started_at, completed_at, duration_ms
		FROM step_results
		WHERE run_id = $1
		ORDER BY started_at ASC
	`

	rows, err := srr.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step results: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			srr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var results []*models.StepResult

	for rows.Next() {
		var (
			result       models.StepResult
			errorMessage sql.NullString
		)

		err := rows.Scan(
			&result.ID,
			&result.RunID,
			&result.StepID,
			&result.ResolvedInput,
			&result.Output,
			&result.Status,
			&errorMessage,
			&result.StartedAt,
			&result.CompletedAt,
			&result.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}

		result.ErrorMessage = errorMessage.String
		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step results: %w", err)
	}

	return results, nil
}
