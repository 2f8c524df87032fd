// Package sqlite provides a SQLite-backed storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/fidde/cardinality_estimator/pkg/models"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.up.sql
var migrationSQL string

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("store is closed")

// Store is a SQLite-backed storage for experiment runs.
type Store struct {
	db      *sql.DB
	maxRuns int

	// Batch writer
	writeCh   chan writeOp
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// writeOp represents a write operation to be batched.
type writeOp struct {
	run  *models.Run
	done chan error
}

// Config holds SQLite store configuration.
type Config struct {
	DBPath        string
	MaxRuns       int
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns default SQLite configuration.
func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:        dbPath,
		BatchSize:     100,
		FlushInterval: 100 * time.Millisecond,
	}
}

// New creates a new SQLite store with the given configuration.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000", // 64MB cache
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 100 * time.Millisecond
	}

	store := &Store{
		db:      db,
		maxRuns: cfg.MaxRuns,
		writeCh: make(chan writeOp, 1000),
		closeCh: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.batchWriter(cfg.BatchSize, cfg.FlushInterval)

	return store, nil
}

// batchWriter runs in a goroutine and batches write operations.
func (s *Store) batchWriter(batchSize int, flushInterval time.Duration) {
	defer s.wg.Done()

	batch := make([]writeOp, 0, max(batchSize, 1))
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		errs := s.executeBatch(batch)

		for i := range batch {
			batch[i].done <- errs[i]
			close(batch[i].done)
		}

		batch = batch[:0]
	}

	for {
		select {
		case op := <-s.writeCh:
			batch = append(batch, op)
			if batchSize > 0 && len(batch) >= batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.closeCh:
			// Drain whatever was queued before Close
			for {
				select {
				case op := <-s.writeCh:
					batch = append(batch, op)
				default:
					flush()
					return
				}
			}
		}
	}
}

// executeBatch runs a batch of inserts in a single transaction. Conflicts and
// limit violations fail only their own op; anything else fails the batch.
func (s *Store) executeBatch(batch []writeOp) []error {
	errs := make([]error, len(batch))
	fail := func(err error) []error {
		for i := range errs {
			errs[i] = err
		}
		return errs
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fail(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	for i, op := range batch {
		if err := s.insertRunTx(tx, op.run); err != nil {
			if errors.Is(err, models.ErrRunExists) || errors.Is(err, models.ErrTooManyRuns) {
				errs[i] = err
				continue
			}
			return fail(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("commit transaction: %w", err))
	}

	return errs
}

func (s *Store) insertRunTx(tx *sql.Tx, run *models.Run) error {
	if s.maxRuns > 0 {
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&count); err != nil {
			return fmt.Errorf("counting runs: %w", err)
		}
		if count >= s.maxRuns {
			return models.ErrTooManyRuns
		}
	}

	res, err := tx.Exec(`
		INSERT INTO runs (id, dataset, elements, distinct_count, simulations, hash, seed, created_ns, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Dataset, run.Elements, run.Distinct, run.Simulations, run.Hash,
		int64(run.Seed), run.Created.UnixNano(), run.ElapsedMS)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, models.ErrRunExists)
	}

	for seq, p := range run.Points {
		_, err := tx.Exec(`
			INSERT INTO run_points (
				run_id, seq, algorithm, pow, parameter, registers, mean, stddev,
				min_estimate, max_estimate, relative_error, standard_error, memory_bytes
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, seq, p.Algorithm, p.Pow, p.Parameter, p.Registers, finite(p.Mean), finite(p.StdDev),
			finite(p.Min), finite(p.Max), finite(p.RelativeError), finite(p.StandardError), p.MemoryBytes)
		if err != nil {
			return fmt.Errorf("inserting point %d: %w", seq, err)
		}
	}

	return nil
}

// Close closes the store and releases resources.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// SaveRun queues run for the batch writer and waits for its transaction.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if err := models.ValidateRunID(run.ID); err != nil {
		return err
	}

	done := make(chan error, 1)

	select {
	case <-s.closeCh:
		return ErrClosed
	default:
	}

	select {
	case s.writeCh <- writeOp{run: run, done: done}:
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closeCh:
		return ErrClosed
	}
}

// GetRun retrieves a run and its points.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var (
		run       models.Run
		seed      int64
		createdNS int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, dataset, elements, distinct_count, simulations, hash, seed, created_ns, elapsed_ms
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Dataset, &run.Elements, &run.Distinct, &run.Simulations,
		&run.Hash, &seed, &createdNS, &run.ElapsedMS)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, models.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	run.Seed = uint64(seed)
	run.Created = time.Unix(0, createdNS).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT algorithm, pow, parameter, registers, mean, stddev,
		       min_estimate, max_estimate, relative_error, standard_error, memory_bytes
		FROM run_points WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying run points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Point
		if err := rows.Scan(&p.Algorithm, &p.Pow, &p.Parameter, &p.Registers, &p.Mean, &p.StdDev,
			&p.Min, &p.Max, &p.RelativeError, &p.StandardError, &p.MemoryBytes); err != nil {
			return nil, fmt.Errorf("scanning point: %w", err)
		}
		run.Points = append(run.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &run, nil
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context, dataset string) ([]models.RunSummary, error) {
	query := `
		SELECT r.id, r.dataset, r.elements, r.distinct_count, r.simulations, r.created_ns,
		       COUNT(p.seq), COALESCE(GROUP_CONCAT(DISTINCT p.algorithm), '')
		FROM runs r
		LEFT JOIN run_points p ON p.run_id = r.id`
	var args []any
	if dataset != "" {
		query += ` WHERE r.dataset = ?`
		args = append(args, dataset)
	}
	query += ` GROUP BY r.id ORDER BY r.created_ns DESC, r.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	summaries := []models.RunSummary{}
	for rows.Next() {
		var (
			sum        models.RunSummary
			createdNS  int64
			algorithms string
		)
		if err := rows.Scan(&sum.ID, &sum.Dataset, &sum.Elements, &sum.Distinct, &sum.Simulations,
			&createdNS, &sum.Points, &algorithms); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		sum.Created = time.Unix(0, createdNS).UTC()
		if algorithms != "" {
			sum.Algorithms = strings.Split(algorithms, ",")
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteRun removes a run; its points go with it through the foreign key.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, models.ErrRunNotFound)
	}
	return nil
}

// Clear removes all stored data.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"run_points", "runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// finite maps NaN to zero and clamps infinities, which SQLite REAL columns reject as NULL.
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}
