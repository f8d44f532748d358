package store

import (
	"context"

	"github.com/joescharf/rc/internal/models"
)

// Store defines the persistence interface for rc. The cycle history is
// append-only: cycles and their issues are written once per iteration
// and never mutated.
type Store interface {
	// Cycles
	CreateCycle(ctx context.Context, c *models.ReviewCycle) error
	GetCycle(ctx context.Context, id string) (*models.ReviewCycle, error)
	LatestCycle(ctx context.Context, cycleID string) (*models.ReviewCycle, error)
	ListCycles(ctx context.Context, cycleID string, limit int) ([]*models.ReviewCycle, error)

	// Reviewer runs
	CreateReviewerRuns(ctx context.Context, runs []*models.ReviewerRun) error
	ListReviewerRuns(ctx context.Context, cycleRowID string) ([]*models.ReviewerRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
