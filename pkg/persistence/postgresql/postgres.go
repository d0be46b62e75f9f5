// Package postgresql provides PostgreSQL persistence implementation for
// chains, runs and step results.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/persistence"
	"github.com/promptline/promptline/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	chainRepo      *ChainRepository
	runRepo        *RunRepository
	stepResultRepo *StepResultRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs any
// pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		chainRepo:      NewChainRepository(database, logger),
		runRepo:        NewRunRepository(database, logger),
		stepResultRepo: NewStepResultRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Chains returns all chains from the database.
func (p *Persistence) Chains(ctx context.Context) ([]*models.Chain, error) {
	return p.chainRepo.GetAll(ctx)
}

// ChainByID returns a chain by its ID.
func (p *Persistence) ChainByID(ctx context.Context, id string) (*models.Chain, error) {
	return p.chainRepo.GetByID(ctx, id)
}

// SaveChain saves a chain to the database.
func (p *Persistence) SaveChain(ctx context.Context, chain *models.Chain) error {
	return p.chainRepo.Save(ctx, chain)
}

// DeleteChain deletes a chain by its ID.
func (p *Persistence) DeleteChain(ctx context.Context, id string) error {
	return p.chainRepo.Delete(ctx, id)
}

// CreateRun inserts a new run record.
func (p *Persistence) CreateRun(ctx context.Context, run *models.Run) error {
	return p.runRepo.Create(ctx, run)
}

// UpdateRunStatus writes a run's terminal status and detail.
func (p *Persistence) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, detail persistence.RunStatusDetail) error {
	return p.runRepo.UpdateStatus(ctx, runID, status, detail)
}

// RunByID returns a run by its ID.
func (p *Persistence) RunByID(ctx context.Context, id string) (*models.Run, error) {
	return p.runRepo.GetByID(ctx, id)
}

// RunsByChain returns all runs for a chain, newest first.
func (p *Persistence) RunsByChain(ctx context.Context, chainID string) ([]*models.Run, error) {
	return p.runRepo.GetByChain(ctx, chainID)
}

// InsertStepResult inserts one step result record.
func (p *Persistence) InsertStepResult(ctx context.Context, result *models.StepResult) error {
	return p.stepResultRepo.Insert(ctx, result)
}

// StepResultsByRun returns a run's step results in insertion order.
func (p *Persistence) StepResultsByRun(ctx context.Context, runID string) ([]*models.StepResult, error) {
	return p.stepResultRepo.GetByRun(ctx, runID)
}
