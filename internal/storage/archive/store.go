// Package archive provides file-based run storage: one gzip-compressed JSON
// document per run.
package archive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fidde/cardinality_estimator/internal/storage/memory"
	"github.com/fidde/cardinality_estimator/pkg/models"
)

// Default configuration values
const (
	DefaultDir        = "./data/runs"
	DefaultMaxRunSize = 16 * 1024 * 1024 // 16MB
	DefaultMaxRuns    = 1000
	FileExtension     = ".json.gz"
)

// Config contains archive configuration.
type Config struct {
	// Dir is the directory where runs are stored
	Dir string

	// MaxRunSize is the maximum size of a single encoded run in bytes
	MaxRunSize int64

	// MaxRuns is the maximum number of runs to keep
	MaxRuns int
}

// DefaultConfig returns the default archive configuration.
func DefaultConfig() Config {
	return Config{
		Dir:        DefaultDir,
		MaxRunSize: DefaultMaxRunSize,
		MaxRuns:    DefaultMaxRuns,
	}
}

// Store is a file-based run archive.
type Store struct {
	config Config
	mu     sync.RWMutex
}

// New creates the archive directory if needed.
func New(config Config) (*Store, error) {
	if config.Dir == "" {
		config.Dir = DefaultDir
	}
	if config.MaxRunSize <= 0 {
		config.MaxRunSize = DefaultMaxRunSize
	}

	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	return &Store{config: config}, nil
}

// SaveRun writes run to <dir>/<id>.json.gz.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if err := models.ValidateRunID(run.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.runPath(run.ID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("run %s: %w", run.ID, models.ErrRunExists)
	}

	if s.config.MaxRuns > 0 {
		ids, err := s.listIDsLocked()
		if err != nil {
			return err
		}
		if len(ids) >= s.config.MaxRuns {
			return models.ErrTooManyRuns
		}
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	if int64(len(data)) > s.config.MaxRunSize {
		return models.ErrRunTooLarge
	}

	if err := writeGzip(path, data); err != nil {
		return fmt.Errorf("writing run file: %w", err)
	}

	return nil
}

// GetRun loads a run from disk.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	if err := models.ValidateRunID(id); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, models.ErrRunNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadLocked(id)
}

func (s *Store) loadLocked(id string) (*models.Run, error) {
	data, err := readGzip(s.runPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("run %s: %w", id, models.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading run file: %w", err)
	}

	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshaling run: %w", err)
	}

	return &run, nil
}

// ListRuns loads every archived run; unreadable files are skipped.
func (s *Store) ListRuns(ctx context.Context, dataset string) ([]models.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.listIDsLocked()
	if err != nil {
		return nil, err
	}

	summaries := []models.RunSummary{}
	for _, id := range ids {
		run, err := s.loadLocked(id)
		if err != nil {
			continue // Skip corrupted files
		}
		if dataset != "" && run.Dataset != dataset {
			continue
		}
		summaries = append(summaries, run.Summary())
	}

	memory.SortSummaries(summaries)
	return summaries, nil
}

// DeleteRun removes a run file.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if err := models.ValidateRunID(id); err != nil {
		return fmt.Errorf("run %s: %w", id, models.ErrRunNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.runPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("run %s: %w", id, models.ErrRunNotFound)
	}
	if err != nil {
		return fmt.Errorf("removing run file: %w", err)
	}
	return nil
}

// Clear removes every archived run file.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.listIDsLocked()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := os.Remove(s.runPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing run file: %w", err)
		}
	}
	return nil
}

// Close is a no-op; every write is complete when SaveRun returns.
func (s *Store) Close() error {
	return nil
}

// runPath returns the file path for a run.
func (s *Store) runPath(id string) string {
	return filepath.Join(s.config.Dir, id+FileExtension)
}

// listIDsLocked lists the IDs of all run files (must hold lock).
func (s *Store) listIDsLocked() ([]string, error) {
	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, FileExtension) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, FileExtension))
	}
	return ids, nil
}

// writeGzip writes data to a gzip-compressed file.
func writeGzip(path string, data []byte) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	gw := gzip.NewWriter(file)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}

	return file.Close()
}

// readGzip reads data from a gzip-compressed file.
func readGzip(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gr, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	return io.ReadAll(gr)
}
