package experiment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fidde/cardinality_estimator/pkg/hashing"
	"github.com/fidde/cardinality_estimator/pkg/hyperloglog"
	"github.com/fidde/cardinality_estimator/pkg/recordinality"
	"github.com/fidde/cardinality_estimator/pkg/stream"
)

func testCorpus(distinct, repeats int) stream.Corpus {
	var c stream.Corpus
	for r := 0; r < repeats; r++ {
		for i := 0; i < distinct; i++ {
			c = append(c, fmt.Sprintf("item-%d", i))
		}
	}
	return c
}

func TestParseAlgorithms(t *testing.T) {
	tests := []struct {
		in      string
		want    []Algorithm
		wantErr bool
	}{
		{"all", []Algorithm{HyperLogLog, Recordinality}, false},
		{"", []Algorithm{HyperLogLog, Recordinality}, false},
		{"hll", []Algorithm{HyperLogLog}, false},
		{"REC", []Algorithm{Recordinality}, false},
		{"rec, hll, rec", []Algorithm{Recordinality, HyperLogLog}, false},
		{"loglog", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithms(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownAlgorithm)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAlgorithmParameter(t *testing.T) {
	require.Equal(t, 9, HyperLogLog.Parameter(9))
	require.Equal(t, 512, Recordinality.Parameter(9))
	require.Equal(t, "HyperLogLog", HyperLogLog.Title())
	require.Equal(t, "Recordinality", Recordinality.Title())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
		is     error
	}{
		{"default", func(*Config) {}, true, nil},
		{"rec accepts pow 0", func(c *Config) { c.Algorithms = []Algorithm{Recordinality}; c.MinPow = 0 }, true, nil},
		{"no algorithms", func(c *Config) { c.Algorithms = nil }, false, nil},
		{"zero simulations", func(c *Config) { c.Simulations = 0 }, false, nil},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false, nil},
		{"inverted range", func(c *Config) { c.MinPow, c.MaxPow = 8, 5 }, false, nil},
		{"hll pow too low", func(c *Config) { c.MinPow = 3 }, false, hyperloglog.ErrParameterOutOfRange},
		{"hll pow too high", func(c *Config) { c.MaxPow = 17 }, false, hyperloglog.ErrParameterOutOfRange},
		{"rec pow too high", func(c *Config) { c.Algorithms = []Algorithm{Recordinality}; c.MaxPow = 21 }, false, recordinality.ErrInvalidParameter},
		{"unknown hash", func(c *Config) { c.Hash = "crc32" }, false, hashing.ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.is != nil {
				require.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestRunProducesSweep(t *testing.T) {
	cfg := Config{
		Algorithms:  All(),
		Simulations: 5,
		MinPow:      4,
		MaxPow:      6,
		Workers:     2,
		Seed:        7,
	}
	runner, err := NewRunner(cfg, nil)
	require.NoError(t, err)

	var calls, lastTotal int
	runner.OnProgress(func(done, total int) {
		calls++
		lastTotal = total
	})

	corpus := testCorpus(500, 3)
	run, err := runner.Run(context.Background(), "test", corpus)
	require.NoError(t, err)

	require.Equal(t, "test", run.Dataset)
	require.Equal(t, 1500, run.Elements)
	require.Equal(t, 500, run.Distinct)
	require.Equal(t, uint64(7), run.Seed)
	require.Equal(t, "murmur3", run.Hash)
	require.Len(t, run.Points, 6)
	require.Equal(t, 30, calls)
	require.Equal(t, 30, lastTotal)

	hll := run.PointsFor("hll")
	require.Len(t, hll, 3)
	require.Equal(t, 4, hll[0].Parameter)
	require.Equal(t, 16, hll[0].Registers)

	rec := run.PointsFor("rec")
	require.Len(t, rec, 3)
	require.Equal(t, 64, rec[2].Parameter)

	for _, p := range run.Points {
		require.LessOrEqual(t, p.Min, p.Mean)
		require.GreaterOrEqual(t, p.Max, p.Mean)
		require.GreaterOrEqual(t, p.StdDev, 0.0)
		require.Positive(t, p.MemoryBytes)
	}
}

func TestRunIsReproducibleAcrossWorkerCounts(t *testing.T) {
	corpus := testCorpus(2000, 1)

	means := func(workers int) []float64 {
		runner, err := NewRunner(Config{
			Algorithms:  All(),
			Simulations: 8,
			MinPow:      5,
			MaxPow:      7,
			Workers:     workers,
			Hash:        hashing.KindXXHash,
			Seed:        4242,
		}, nil)
		require.NoError(t, err)

		run, err := runner.Run(context.Background(), "repro", corpus)
		require.NoError(t, err)

		out := make([]float64, len(run.Points))
		for i, p := range run.Points {
			out[i] = p.Mean
		}
		return out
	}

	require.Equal(t, means(1), means(4))
}

func TestRunAccuracy(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test")
	}

	runner, err := NewRunner(Config{
		Algorithms:  All(),
		Simulations: 100,
		MinPow:      10,
		MaxPow:      10,
		Seed:        1,
	}, nil)
	require.NoError(t, err)

	run, err := runner.Run(context.Background(), "accuracy", testCorpus(10000, 2))
	require.NoError(t, err)

	bound := 3 * hyperloglog.StandardError(10)
	for _, p := range run.Points {
		require.LessOrEqual(t, p.RelativeError, bound, "%s mean %.1f", p.Algorithm, p.Mean)
	}
}

func TestRunCancelled(t *testing.T) {
	runner, err := NewRunner(Config{
		Algorithms:  []Algorithm{HyperLogLog},
		Simulations: 50,
		MinPow:      4,
		MaxPow:      4,
		Workers:     1,
		Seed:        3,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runner.Run(ctx, "cancelled", testCorpus(10, 1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunEmptyCorpus(t *testing.T) {
	runner, err := NewRunner(Config{
		Algorithms:  All(),
		Simulations: 3,
		MinPow:      4,
		MaxPow:      4,
		Seed:        9,
	}, nil)
	require.NoError(t, err)

	run, err := runner.Run(context.Background(), "empty", stream.Corpus{})
	require.NoError(t, err)

	hll := run.PointsFor("hll")[0]
	require.Equal(t, 0.0, hll.Mean)
	require.Equal(t, 0.0, hll.RelativeError)

	rec := run.PointsFor("rec")[0]
	require.InDelta(t, recordinality.Formula(16, 0), rec.Mean, 1e-9)
}

func TestNewRunnerRejectsInvalidConfig(t *testing.T) {
	_, err := NewRunner(Config{Algorithms: All(), Simulations: 0, MinPow: 4, MaxPow: 4}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRunner(Config{Algorithms: All(), Simulations: 1, MinPow: 3, MaxPow: 4}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.ErrorIs(t, err, hyperloglog.ErrParameterOutOfRange)
}
