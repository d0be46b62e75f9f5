// Package persistence provides the data storage abstraction for chains,
// runs and step results.
package persistence

import (
	"context"
	"time"

	"github.com/promptline/promptline/pkg/models"
)

// RunStatusDetail carries the terminal metadata written alongside a run's
// final status.
type RunStatusDetail struct {
	FailedStepID string
	ErrorMessage string
	CompletedAt  time.Time
}

// Persistence is the durable store consumed by the runner and the services.
// InsertStepResult and UpdateRunStatus must be safe to retry; the resilient
// wrapper in pkg/persistence/resilient relies on that.
type Persistence interface {
	Chains(ctx context.Context) ([]*models.Chain, error)
	SaveChain(ctx context.Context, chain *models.Chain) error
	ChainByID(ctx context.Context, id string) (*models.Chain, error)
	DeleteChain(ctx context.Context, id string) error

	CreateRun(ctx context.Context, run *models.Run) error
	UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, detail RunStatusDetail) error
	RunByID(ctx context.Context, id string) (*models.Run, error)
	RunsByChain(ctx context.Context, chainID string) ([]*models.Run, error)

	InsertStepResult(ctx context.Context, result *models.StepResult) error
	StepResultsByRun(ctx context.Context, runID string) ([]*models.StepResult, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
