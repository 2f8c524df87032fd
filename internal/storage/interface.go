// Package storage defines the storage interface for experiment runs.
package storage

import (
	"context"

	"github.com/fidde/cardinality_estimator/pkg/models"
)

// Storage is the interface for storing and retrieving experiment runs.
// Implementations must be safe for concurrent use.
type Storage interface {
	// SaveRun stores a new run. Saving an existing ID returns models.ErrRunExists.
	SaveRun(ctx context.Context, run *models.Run) error

	// GetRun returns models.ErrRunNotFound for unknown IDs.
	GetRun(ctx context.Context, id string) (*models.Run, error)

	// ListRuns returns summaries newest first, optionally filtered by dataset.
	ListRuns(ctx context.Context, dataset string) ([]models.RunSummary, error)

	DeleteRun(ctx context.Context, id string) error

	// Clear all data
	Clear(ctx context.Context) error

	// Close the storage (for cleanup, e.g., DB connections)
	Close() error
}
