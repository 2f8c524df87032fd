// Package dual mirrors writes to a second run store.
package dual

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fidde/cardinality_estimator/pkg/models"
)

// Backend is the subset of storage.Storage the mirror needs.
type Backend interface {
	SaveRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, dataset string) ([]models.RunSummary, error)
	DeleteRun(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Close() error
}

// Store wraps two storage backends.
// Writes go to both primary and secondary.
// Reads come from primary only.
type Store struct {
	primary   Backend
	secondary Backend
	logger    *slog.Logger

	// pending tracks asynchronous secondary writes so Close can wait for them
	pending sync.WaitGroup
}

// Config holds dual store configuration.
type Config struct {
	Primary   Backend
	Secondary Backend
	Logger    *slog.Logger
}

// New creates a new dual-write store.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Store{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		logger:    cfg.Logger,
	}
}

// dualWrite performs a write to both backends.
// Errors from secondary are logged but don't fail the operation.
func (s *Store) dualWrite(ctx context.Context, op string, primaryWrite, secondaryWrite func(context.Context) error) error {
	if err := primaryWrite(ctx); err != nil {
		return err
	}

	// The request context may end before the mirror write does
	detached := context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := secondaryWrite(detached); err != nil {
			s.logger.Error("dual-write to secondary failed",
				"operation", op,
				"error", err,
			)
		}
	}()

	return nil
}

// SaveRun stores the run in both backends.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	return s.dualWrite(ctx, "SaveRun",
		func(ctx context.Context) error { return s.primary.SaveRun(ctx, run) },
		func(ctx context.Context) error { return s.secondary.SaveRun(ctx, run) },
	)
}

// GetRun retrieves a run from primary backend only.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return s.primary.GetRun(ctx, id)
}

// ListRuns lists runs from primary backend only.
func (s *Store) ListRuns(ctx context.Context, dataset string) ([]models.RunSummary, error) {
	return s.primary.ListRuns(ctx, dataset)
}

// DeleteRun deletes the run from both backends.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	return s.dualWrite(ctx, "DeleteRun",
		func(ctx context.Context) error { return s.primary.DeleteRun(ctx, id) },
		func(ctx context.Context) error { return s.secondary.DeleteRun(ctx, id) },
	)
}

// Clear clears both backends.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.primary.Clear(ctx); err != nil {
		return fmt.Errorf("clear primary: %w", err)
	}

	// Clear secondary (best effort)
	if err := s.secondary.Clear(ctx); err != nil {
		s.logger.Error("failed to clear secondary backend",
			"error", err,
		)
	}

	return nil
}

// Close waits for in-flight mirror writes, then closes both backends.
func (s *Store) Close() error {
	s.pending.Wait()

	primaryErr := s.primary.Close()
	secondaryErr := s.secondary.Close()

	if primaryErr != nil {
		return fmt.Errorf("close primary: %w", primaryErr)
	}
	if secondaryErr != nil {
		return fmt.Errorf("close secondary: %w", secondaryErr)
	}

	return nil
}

// Flush blocks until every mirror write issued so far has finished.
func (s *Store) Flush() {
	s.pending.Wait()
}
