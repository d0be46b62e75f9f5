// Package file provides file-based persistence implementation for chains,
// runs and step results. It is intended for local development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/promptline/promptline/pkg/models"
	"github.com/promptline/promptline/pkg/persistence"
)

const dirPerm = 0o755

// Persistence implements the persistence.Persistence interface using the
// file system. One JSON document per chain and per run; step results are
// accumulated in a per-run document, in insertion order.
type Persistence struct {
	root string
	mu   sync.Mutex
}

// NewPersistence creates a new instance rooted at the given directory.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{"chains", "runs", "step_results"} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// SaveChain writes a chain document.
func (fp *Persistence) SaveChain(_ context.Context, chain *models.Chain) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return writeJSON(fp.chainPath(chain.ID), chain)
}

// ChainByID reads a chain document.
func (fp *Persistence) ChainByID(_ context.Context, id string) (*models.Chain, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var chain models.Chain

	if err := readJSON(fp.chainPath(id), &chain); err != nil {
		if os.IsNotExist(err) {
			return nil, &persistence.ChainError{Op: "ChainByID", ChainID: id, Err: persistence.ErrChainNotFound}
		}

		return nil, err
	}

	return &chain, nil
}

// Chains lists all chain documents.
func (fp *Persistence) Chains(_ context.Context) ([]*models.Chain, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(fp.root, "chains"))
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}

	var chains []*models.Chain

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var chain models.Chain

		if err := readJSON(filepath.Join(fp.root, "chains", entry.Name()), &chain); err != nil {
			return nil, err
		}

		chains = append(chains, &chain)
	}

	sort.Slice(chains, func(i, j int) bool {
		return chains[i].CreatedAt.After(chains[j].CreatedAt)
	})

	return chains, nil
}

// DeleteChain removes a chain document.
func (fp *Persistence) DeleteChain(_ context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := os.Remove(fp.chainPath(id))
	if os.IsNotExist(err) {
		return &persistence.ChainError{Op: "DeleteChain", ChainID: id, Err: persistence.ErrChainNotFound}
	}

	return err
}

// CreateRun writes a new run document. An existing document is left
// untouched so the call is safe to retry.
func (fp *Persistence) CreateRun(_ context.Context, run *models.Run) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if _, err := os.Stat(fp.runPath(run.ID)); err == nil {
		return nil
	}

	return writeJSON(fp.runPath(run.ID), run)
}

// UpdateRunStatus rewrites a run document with its terminal status. Updating
// an already-terminal run to a different status is rejected.
func (fp *Persistence) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, detail persistence.RunStatusDetail) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var run models.Run

	if err := readJSON(fp.runPath(runID), &run); err != nil {
		if os.IsNotExist(err) {
			return persistence.NewRunError("UpdateRunStatus", runID, persistence.ErrRunNotFound)
		}

		return err
	}

	if run.Status.IsTerminal() && run.Status != status {
		return persistence.NewRunError("UpdateRunStatus", runID, persistence.ErrRunTerminal)
	}

	run.Status = status
	run.FailedStepID = detail.FailedStepID
	run.ErrorMessage = detail.ErrorMessage
	completedAt := detail.CompletedAt
	run.CompletedAt = &completedAt

	return writeJSON(fp.runPath(runID), &run)
}

// RunByID reads a run document.
func (fp *Persistence) RunByID(_ context.Context, id string) (*models.Run, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var run models.Run

	if err := readJSON(fp.runPath(id), &run); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, err
	}

	return &run, nil
}

// RunsByChain lists all runs for a chain, newest first.
func (fp *Persistence) RunsByChain(_ context.Context, chainID string) ([]*models.Run, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(fp.root, "runs"))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var runs []*models.Run

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var run models.Run

		if err := readJSON(filepath.Join(fp.root, "runs", entry.Name()), &run); err != nil {
			return nil, err
		}

		if run.ChainID == chainID {
			runs = append(runs, &run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

// InsertStepResult appends one step result to the run's result document. A
// result ID already present is skipped, keeping retries idempotent.
func (fp *Persistence) InsertStepResult(_ context.Context, result *models.StepResult) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	path := fp.stepResultsPath(result.RunID)

	var results []*models.StepResult

	if err := readJSON(path, &results); err != nil && !os.IsNotExist(err) {
		return err
	}

	for _, existing := range results {
		if existing.ID == result.ID {
			return nil
		}
	}

	results = append(results, result)

	return writeJSON(path, results)
}

// StepResultsByRun returns a run's step results in insertion order.
func (fp *Persistence) StepResultsByRun(_ context.Context, runID string) ([]*models.StepResult, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var results []*models.StepResult

	if err := readJSON(fp.stepResultsPath(runID), &results); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	return results, nil
}

func (fp *Persistence) chainPath(id string) string {
	return filepath.Join(fp.root, "chains", id+".json")
}

func (fp *Persistence) runPath(id string) string {
	return filepath.Join(fp.root, "runs", id+".json")
}

func (fp *Persistence) stepResultsPath(runID string) string {
	return filepath.Join(fp.root, "step_results", runID+".json")
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

func readJSON(path string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return nil
}
