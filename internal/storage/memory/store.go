// Package memory provides an in-memory storage implementation for experiment runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fidde/cardinality_estimator/pkg/models"
)

// Store is an in-memory storage for experiment runs.
type Store struct {
	runs   map[string]*models.Run
	runsmu sync.RWMutex

	// maxRuns bounds the number of stored runs, zero means unbounded
	maxRuns int
}

// New creates a new in-memory store.
func New() *Store {
	return NewWithLimit(0)
}

// NewWithLimit creates a store that refuses new runs once maxRuns are held.
func NewWithLimit(maxRuns int) *Store {
	return &Store{
		runs:    make(map[string]*models.Run),
		maxRuns: maxRuns,
	}
}

// SaveRun stores a copy of run.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if err := models.ValidateRunID(run.ID); err != nil {
		return err
	}

	s.runsmu.Lock()
	defer s.runsmu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s: %w", run.ID, models.ErrRunExists)
	}
	if s.maxRuns > 0 && len(s.runs) >= s.maxRuns {
		return models.ErrTooManyRuns
	}

	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	s.runsmu.RLock()
	defer s.runsmu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("run %s: %w", id, models.ErrRunNotFound)
	}

	return cloneRun(run), nil
}

// ListRuns returns all runs, optionally filtered by dataset.
func (s *Store) ListRuns(ctx context.Context, dataset string) ([]models.RunSummary, error) {
	s.runsmu.RLock()
	defer s.runsmu.RUnlock()

	summaries := make([]models.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		if dataset != "" && run.Dataset != dataset {
			continue
		}
		summaries = append(summaries, run.Summary())
	}

	SortSummaries(summaries)
	return summaries, nil
}

// DeleteRun removes a run.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	s.runsmu.Lock()
	defer s.runsmu.Unlock()

	if _, exists := s.runs[id]; !exists {
		return fmt.Errorf("run %s: %w", id, models.ErrRunNotFound)
	}
	delete(s.runs, id)
	return nil
}

// Clear removes all stored data.
func (s *Store) Clear(ctx context.Context) error {
	s.runsmu.Lock()
	defer s.runsmu.Unlock()

	s.runs = make(map[string]*models.Run)
	return nil
}

// Close is a no-op for memory storage.
func (s *Store) Close() error {
	return nil
}

// SortSummaries orders summaries newest first, ties broken by ID.
func SortSummaries(summaries []models.RunSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].Created.Equal(summaries[j].Created) {
			return summaries[i].Created.After(summaries[j].Created)
		}
		return summaries[i].ID < summaries[j].ID
	})
}

func cloneRun(run *models.Run) *models.Run {
	c := *run
	c.Points = append([]models.Point(nil), run.Points...)
	return &c
}
