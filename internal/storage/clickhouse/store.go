package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/fidde/cardinality_estimator/pkg/models"
)

// Store implements the storage.Storage interface using ClickHouse
type Store struct {
	conn    driver.Conn
	logger  *slog.Logger
	maxRuns int
}

// NewStore creates a new ClickHouse storage instance
func NewStore(ctx context.Context, config *ConnectionConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		config = DefaultConfig()
	}

	conn, err := Connect(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}

	if err := InitializeSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	logger.Info("clickhouse store ready", "addr", config.Addr, "database", config.Database)

	return &Store{
		conn:    conn,
		logger:  logger,
		maxRuns: config.MaxRuns,
	}, nil
}

// SaveRun inserts the run and its points.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if err := models.ValidateRunID(run.ID); err != nil {
		return err
	}

	exists, err := s.runExists(ctx, run.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("run %s: %w", run.ID, models.ErrRunExists)
	}

	if s.maxRuns > 0 {
		var count uint64
		if err := s.conn.QueryRow(ctx, "SELECT count() FROM runs").Scan(&count); err != nil {
			return fmt.Errorf("counting runs: %w", err)
		}
		if count >= uint64(s.maxRuns) {
			return models.ErrTooManyRuns
		}
	}

	if err := insertRun(ctx, s.conn, run); err != nil {
		return err
	}

	s.logger.Debug("run stored", "id", run.ID, "points", len(run.Points))
	return nil
}

func (s *Store) runExists(ctx context.Context, id string) (bool, error) {
	var count uint64
	if err := s.conn.QueryRow(ctx, "SELECT count() FROM runs WHERE id = ?", id).Scan(&count); err != nil {
		return false, fmt.Errorf("querying run: %w", err)
	}
	return count > 0, nil
}

// GetRun retrieves a run and its points.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, dataset, elements, distinct_count, simulations, hash, seed, created, elapsed_ms
		FROM runs
		WHERE id = ?
		LIMIT 1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("run %s: %w", id, models.ErrRunNotFound)
	}

	var (
		run                             models.Run
		elements, distinct, simulations int64
		created                         time.Time
	)
	if err := rows.Scan(&run.ID, &run.Dataset, &elements, &distinct, &simulations,
		&run.Hash, &run.Seed, &created, &run.ElapsedMS); err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.Elements = int(elements)
	run.Distinct = int(distinct)
	run.Simulations = int(simulations)
	run.Created = created.UTC()

	points, err := s.getPoints(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Points = points

	return &run, nil
}

func (s *Store) getPoints(ctx context.Context, id string) ([]models.Point, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT algorithm, pow, parameter, registers, mean, stddev,
		       min_estimate, max_estimate, relative_error, standard_error, memory_bytes
		FROM run_points
		WHERE run_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying run points: %w", err)
	}
	defer rows.Close()

	var points []models.Point
	for rows.Next() {
		var (
			p                            models.Point
			pow                          int32
			parameter, registers, memory int64
		)
		if err := rows.Scan(&p.Algorithm, &pow, &parameter, &registers, &p.Mean, &p.StdDev,
			&p.Min, &p.Max, &p.RelativeError, &p.StandardError, &memory); err != nil {
			return nil, fmt.Errorf("scanning point: %w", err)
		}
		p.Pow = int(pow)
		p.Parameter = int(parameter)
		p.Registers = int(registers)
		p.MemoryBytes = int(memory)
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context, dataset string) ([]models.RunSummary, error) {
	query := `
		SELECT id, dataset, elements, distinct_count, simulations, created
		FROM runs`
	var args []any
	if dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, dataset)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	summaries := []models.RunSummary{}
	index := make(map[string]int)
	for rows.Next() {
		var (
			sum                             models.RunSummary
			elements, distinct, simulations int64
			created                         time.Time
		)
		if err := rows.Scan(&sum.ID, &sum.Dataset, &elements, &distinct, &simulations, &created); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		sum.Elements = int(elements)
		sum.Distinct = int(distinct)
		sum.Simulations = int(simulations)
		sum.Created = created.UTC()
		index[sum.ID] = len(summaries)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(summaries) > 0 {
		if err := s.fillPointStats(ctx, summaries, index); err != nil {
			return nil, err
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].Created.Equal(summaries[j].Created) {
			return summaries[i].Created.After(summaries[j].Created)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

func (s *Store) fillPointStats(ctx context.Context, summaries []models.RunSummary, index map[string]int) error {
	ids := make([]string, len(summaries))
	for i, sum := range summaries {
		ids[i] = sum.ID
	}

	rows, err := s.conn.Query(ctx, `
		SELECT run_id, count(), groupUniqArray(algorithm)
		FROM run_points
		WHERE run_id IN (?)
		GROUP BY run_id
	`, ids)
	if err != nil {
		return fmt.Errorf("querying point stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         string
			count      uint64
			algorithms []string
		)
		if err := rows.Scan(&id, &count, &algorithms); err != nil {
			return fmt.Errorf("scanning point stats: %w", err)
		}
		if i, ok := index[id]; ok {
			sort.Strings(algorithms)
			summaries[i].Points = int(count)
			summaries[i].Algorithms = algorithms
		}
	}
	return rows.Err()
}

// DeleteRun removes a run with lightweight deletes on both tables.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	exists, err := s.runExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("run %s: %w", id, models.ErrRunNotFound)
	}

	for _, table := range []string{"run_points", "runs"} {
		column := "id"
		if table == "run_points" {
			column = "run_id"
		}
		if err := s.conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, column), id); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	return nil
}

// Clear truncates both tables.
func (s *Store) Clear(ctx context.Context) error {
	for _, table := range []string{"runs", "run_points"} {
		if err := s.conn.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return fmt.Errorf("truncating table %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}
