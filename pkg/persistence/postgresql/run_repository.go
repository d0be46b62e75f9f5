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

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Create inserts a new run record. Reinserting the same run ID is a no-op so
// the call is safe to retry.
func (rr *RunRepository) Create(ctx context.Context, run *models.Run) error {
	inputsJSON, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}

	query := `
		INSERT INTO runs (id, chain_id, user_id, inputs, status, failed_step_id, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = rr.db.ExecContext(ctx, query,
		run.ID,
		run.ChainID,
		run.UserID,
		inputsJSON,
		run.Status,
		nullString(run.FailedStepID),
		nullString(run.ErrorMessage),
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	return nil
}

// UpdateStatus writes the run's terminal status and failure detail. The
// write targets only non-terminal rows, so a retried call cannot overwrite
// an already-terminal run.
func (rr *RunRepository) UpdateStatus(ctx context.Context, runID string, status models.RunStatus, detail persistence.RunStatusDetail) error {
	query := `
		UPDATE runs
		SET status = $2, failed_step_id = $3, error_message = $4, completed_at = $5
		WHERE id = $1 AND (status = 'running' OR status = $2)
	`

	result, err := rr.db.ExecContext(ctx, query,
		runID,
		status,
		nullString(detail.FailedStepID),
		nullString(detail.ErrorMessage),
		detail.CompletedAt,
	)
	if err != nil {
		return persistence.NewRunError("UpdateRunStatus", runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRunError("UpdateRunStatus", runID, err)
	}

	if affected == 0 {
		exists, err := rr.exists(ctx, runID)
		if err != nil {
			return persistence.NewRunError("UpdateRunStatus", runID, err)
		}

		if !exists {
			return persistence.NewRunError("UpdateRunStatus", runID, persistence.ErrRunNotFound)
		}

		return persistence.NewRunError("UpdateRunStatus", runID, persistence.ErrRunTerminal)
	}

	return nil
}

// GetByID retrieves a run by its ID.
func (rr *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT id, chain_id, user_id, inputs, status, failed_step_id, error_message, started_at, completed_at
		FROM runs
		WHERE id = $1
	`

	run, err := rr.scanRun(rr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// GetByChain retrieves all runs for a chain, newest first.
func (rr *RunRepository) GetByChain(ctx context.Context, chainID string) ([]*models.Run, error) {
	query := `
		SELECT id, chain_id, user_id, inputs, status, failed_step_id, error_message, started_at, completed_at
		FROM runs
		WHERE chain_id = $1
		ORDER BY started_at DESC
	`

	rows, err := rr.db.QueryContext(ctx, query, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			rr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var runs []*models.Run

	for rows.Next() {
		run, err := rr.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (rr *RunRepository) exists(ctx context.Context, runID string) (bool, error) {
	var exists bool

	err := rr.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM runs WHERE id = $1)", runID).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (rr *RunRepository) scanRun(scanner interface {
	Scan(dest ...any) error
}) (*models.Run, error) {
	var (
		run          models.Run
		inputsJSON   []byte
		failedStepID sql.NullString
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)

	err := scanner.Scan(
		&run.ID,
		&run.ChainID,
		&run.UserID,
		&inputsJSON,
		&run.Status,
		&failedStepID,
		&errorMessage,
		&run.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if inputsJSON != nil {
		err := json.Unmarshal(inputsJSON, &run.Inputs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
		}
	}

	run.FailedStepID = failedStepID.String
	run.ErrorMessage = errorMessage.String

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
