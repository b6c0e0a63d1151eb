package store

import (
	"context"

	"github.com/joescharf/prarena/internal/models"
)

// Store defines the run-history persistence interface. Live run state is
// held in memory by the eval controllers; the store only archives
// finished runs so results survive a restart.
type Store interface {
	// Runs
	ArchiveRun(ctx context.Context, run *models.Run, results []models.CombinationResult) error
	ListRuns(ctx context.Context, stage models.RunStage, limit int) ([]*models.Run, error)
	GetRun(ctx context.Context, id string) (*models.Run, error)
	GetRunResults(ctx context.Context, runID string) ([]models.CombinationResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
