// Package resilient decorates a persistence implementation with retries and
// a circuit breaker. The wrapped store is the only resource shared across
// concurrent runs, so transient faults are absorbed here rather than in the
// runner; errors that survive the retries surface as fatal run failures.
package resilient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/persistence"
)

const (
	defaultMaxRetries      = 3
	defaultInitialInterval = 100 * time.Millisecond
)

// Persistence wraps another persistence implementation. Every call runs
// through the circuit breaker; inside it, transient failures are retried
// with exponential backoff. The inner implementation's operations must be
// idempotent-safe to retry, which the shipped adapters guarantee.
type Persistence struct {
	inner      persistence.Persistence
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	maxRetries uint64
}

// New creates a resilient persistence wrapper around inner.
func New(inner persistence.Persistence, logger *slog.Logger) *Persistence {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "persistence",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Persistence circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Persistence{
		inner:      inner,
		breaker:    breaker,
		logger:     logger,
		maxRetries: defaultMaxRetries,
	}
}

func (p *Persistence) execute(ctx context.Context, op string, fn func() error) error {
	_, err := p.breaker.Execute(func() (any, error) {
		policy := backoff.WithContext(
			backoff.WithMaxRetries(newExponentialBackOff(), p.maxRetries),
			ctx,
		)

		attempt := 0

		return nil, backoff.Retry(func() error {
			attempt++

			err := fn()
			if err != nil {
				// Not-found and terminal-state outcomes are contract
				// results, not faults; retrying cannot change them.
				if persistence.IsChainNotFound(err) || persistence.IsRunNotFound(err) ||
					errors.Is(err, persistence.ErrRunTerminal) {
					return backoff.Permanent(err)
				}

				p.logger.WarnContext(ctx, "Persistence operation failed, retrying",
					"op", op, "attempt", attempt, "error", err)
			}

			return err
		}, policy)
	})

	return err
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultInitialInterval

	return bo
}

func (p *Persistence) Chains(ctx context.Context) ([]*models.Chain, error) {
	var chains []*models.Chain

	err := p.execute(ctx, "Chains", func() error {
		var err error
		chains, err = p.inner.Chains(ctx)

		return err
	})

	return chains, err
}

func (p *Persistence) SaveChain(ctx context.Context, chain *models.Chain) error {
	return p.execute(ctx, "SaveChain", func() error {
		return p.inner.SaveChain(ctx, chain)
	})
}

func (p *Persistence) ChainByID(ctx context.Context, id string) (*models.Chain, error) {
	var chain *models.Chain

	err := p.execute(ctx, "ChainByID", func() error {
		var err error
		chain, err = p.inner.ChainByID(ctx, id)

		return err
	})

	return chain, err
}

func (p *Persistence) DeleteChain(ctx context.Context, id string) error {
	return p.execute(ctx, "DeleteChain", func() error {
		return p.inner.DeleteChain(ctx, id)
	})
}

func (p *Persistence) CreateRun(ctx context.Context, run *models.Run) error {
	return p.execute(ctx, "CreateRun", func() error {
		return p.inner.CreateRun(ctx, run)
	})
}

func (p *Persistence) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, detail persistence.RunStatusDetail) error {
	return p.execute(ctx, "UpdateRunStatus", func() error {
		return p.inner.UpdateRunStatus(ctx, runID, status, detail)
	})
}

func (p *Persistence) RunByID(ctx context.Context, id string) (*models.Run, error) {
	var run *models.Run

	err := p.execute(ctx, "RunByID", func() error {
		var err error
		run, err = p.inner.RunByID(ctx, id)

		return err
	})

	return run, err
}

func (p *Persistence) RunsByChain(ctx context.Context, chainID string) ([]*models.Run, error) {
	var runs []*models.Run

	err := p.execute(ctx, "RunsByChain", func() error {
		var err error
		runs, err = p.inner.RunsByChain(ctx, chainID)

		return err
	})

	return runs, err
}

func (p *Persistence) InsertStepResult(ctx context.Context, result *models.StepResult) error {
	return p.execute(ctx, "InsertStepResult", func() error {
		return p.inner.InsertStepResult(ctx, result)
	})
}

func (p *Persistence) StepResultsByRun(ctx context.Context, runID string) ([]*models.StepResult, error) {
	var results []*models.StepResult

	err := p.execute(ctx, "StepResultsByRun", func() error {
		var err error
		results, err = p.inner.StepResultsByRun(ctx, runID)

		return err
	})

	return results, err
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.inner.HealthCheck(ctx)
}

func (p *Persistence) Close(ctx context.Context) error {
	return p.inner.Close(ctx)
}
