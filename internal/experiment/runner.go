package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fidde/cardinality_estimator/pkg/hashing"
	"github.com/fidde/cardinality_estimator/pkg/models"
	"github.com/fidde/cardinality_estimator/pkg/stream"
)

// ErrInvalidConfig wraps every configuration error returned by NewRunner.
var ErrInvalidConfig = errors.New("invalid experiment config")

// Config holds the parameters of an experiment.
type Config struct {
	// Algorithms to run, in report order
	Algorithms []Algorithm

	// Simulations is the number of trials averaged per point
	Simulations int

	// MinPow and MaxPow bound the swept exponent (inclusive)
	MinPow int
	MaxPow int

	// Workers limits concurrent trials; 0 means GOMAXPROCS
	Workers int

	// Hash selects the hash family used by every trial
	Hash hashing.Kind

	// Seed makes the run reproducible; 0 draws a random seed
	Seed uint64
}

// DefaultConfig returns the sweep of the original experiment script:
// both algorithms, 100 simulations, pow 4..9.
func DefaultConfig() Config {
	return Config{
		Algorithms:  All(),
		Simulations: 100,
		MinPow:      4,
		MaxPow:      9,
		Workers:     0,
		Hash:        hashing.KindMurmur3,
	}
}

// Validate checks the configuration before any trial runs.
func (c Config) Validate() error {
	if len(c.Algorithms) == 0 {
		return errors.New("at least one algorithm is required")
	}
	if c.Simulations < 1 {
		return fmt.Errorf("simulations must be at least 1, got %d", c.Simulations)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.MinPow > c.MaxPow {
		return fmt.Errorf("min pow %d is greater than max pow %d", c.MinPow, c.MaxPow)
	}
	for _, a := range c.Algorithms {
		if err := a.CheckPow(c.MinPow); err != nil {
			return fmt.Errorf("%s: %w", a, err)
		}
		if err := a.CheckPow(c.MaxPow); err != nil {
			return fmt.Errorf("%s: %w", a, err)
		}
	}
	if _, err := hashing.ParseKind(string(c.Hash)); err != nil {
		return err
	}
	return nil
}

// Trials returns the total number of estimator calls the configuration implies.
func (c Config) Trials() int {
	return len(c.Algorithms) * (c.MaxPow - c.MinPow + 1) * c.Simulations
}

// ProgressFunc observes completed trials.
type ProgressFunc func(done, total int)

// Runner executes experiments.
type Runner struct {
	cfg    Config
	logger *slog.Logger

	progressMu sync.Mutex
	progress   ProgressFunc
}

// NewRunner validates cfg and creates a runner.
func NewRunner(cfg Config, logger *slog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Hash == "" {
		cfg.Hash = hashing.KindMurmur3
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{cfg: cfg, logger: logger}, nil
}

// Config returns the effective configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// OnProgress registers fn to be called after every trial. Calls are serialized.
func (r *Runner) OnProgress(fn ProgressFunc) {
	r.progress = fn
}

// Run sweeps every configured algorithm over corpus. Trial seeds are drawn in
// a fixed order from the run seed, and results are aggregated in trial order,
// so a seeded run is reproducible regardless of the worker count.
func (r *Runner) Run(ctx context.Context, dataset string, corpus stream.Corpus) (*models.Run, error) {
	seeder := hashing.NewSeeder(r.cfg.Seed)
	start := time.Now()

	run := &models.Run{
		ID:          uuid.NewString(),
		Dataset:     dataset,
		Elements:    corpus.Len(),
		Distinct:    corpus.Distinct(),
		Simulations: r.cfg.Simulations,
		Hash:        string(r.cfg.Hash),
		Seed:        seeder.Base(),
		Created:     start.UTC(),
	}

	r.logger.Info("starting experiment",
		"run_id", run.ID,
		"dataset", dataset,
		"elements", run.Elements,
		"distinct", run.Distinct,
		"simulations", r.cfg.Simulations,
		"seed", run.Seed,
	)

	total := r.cfg.Trials()
	done := 0

	for _, a := range r.cfg.Algorithms {
		for pow := r.cfg.MinPow; pow <= r.cfg.MaxPow; pow++ {
			parameter := a.Parameter(pow)

			seeds := make([]uint64, r.cfg.Simulations)
			for i := range seeds {
				seeds[i] = seeder.Next()
			}

			estimates, err := r.trials(ctx, a, parameter, corpus, seeds, &done, total)
			if err != nil {
				return nil, fmt.Errorf("%s pow %d: %w", a, pow, err)
			}

			point := summarize(a, pow, parameter, estimates, run.Distinct)
			run.Points = append(run.Points, point)

			r.logger.Debug("point complete",
				"algorithm", string(a),
				"pow", pow,
				"parameter", parameter,
				"mean", point.Mean,
				"relative_error", point.RelativeError,
			)
		}
	}

	run.ElapsedMS = time.Since(start).Milliseconds()
	r.logger.Info("experiment complete", "run_id", run.ID, "elapsed_ms", run.ElapsedMS)
	return run, nil
}

// trials runs one point's trials on a bounded errgroup.
func (r *Runner) trials(ctx context.Context, a Algorithm, parameter int, corpus stream.Corpus,
	seeds []uint64, done *int, total int) ([]float64, error) {
	estimates := make([]float64, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i, seed := range seeds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			family, err := hashing.New(r.cfg.Hash, 1, seed)
			if err != nil {
				return err
			}
			estimate, err := a.Estimate(corpus.All(), parameter, family)
			if err != nil {
				return err
			}
			estimates[i] = estimate

			r.progressMu.Lock()
			*done++
			if r.progress != nil {
				r.progress(*done, total)
			}
			r.progressMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return estimates, nil
}

// summarize aggregates trial estimates in order.
func summarize(a Algorithm, pow, parameter int, estimates []float64, distinct int) models.Point {
	n := float64(len(estimates))
	minEst, maxEst := math.Inf(1), math.Inf(-1)
	sum := 0.0
	for _, e := range estimates {
		sum += e
		minEst = math.Min(minEst, e)
		maxEst = math.Max(maxEst, e)
	}
	mean := sum / n

	stddev := 0.0
	if len(estimates) > 1 {
		sq := 0.0
		for _, e := range estimates {
			sq += (e - mean) * (e - mean)
		}
		stddev = math.Sqrt(sq / (n - 1))
	}

	relErr := 0.0
	if distinct > 0 {
		relErr = math.Abs(mean-float64(distinct)) / float64(distinct)
	}

	return models.Point{
		Algorithm:     string(a),
		Pow:           pow,
		Parameter:     parameter,
		Registers:     1 << pow,
		Mean:          mean,
		StdDev:        stddev,
		Min:           minEst,
		Max:           maxEst,
		RelativeError: relErr,
		StandardError: a.StandardError(parameter, float64(distinct)),
		MemoryBytes:   a.MemoryBytes(parameter),
	}
}
