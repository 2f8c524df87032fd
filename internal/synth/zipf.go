// Package synth generates synthetic test streams whose element frequencies
// follow a Zipfian distribution.
package synth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// FileExtension is appended to generated stream files.
const FileExtension = ".synth_stream"

// ctxCheckInterval is how many elements are written between context checks.
const ctxCheckInterval = 1 << 16

// Config describes a synthetic stream.
type Config struct {
	// Distinct is the number of ranks (labels 1..Distinct)
	Distinct int

	// Elements is the stream length
	Elements int

	// Skew is the Zipf exponent s; P(rank r) is proportional to r^-s
	Skew float64

	// Seed makes generation reproducible; 0 draws a random seed
	Seed uint64
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Distinct < 1 {
		return fmt.Errorf("distinct elements must be at least 1, got %d", c.Distinct)
	}
	if c.Elements < 0 {
		return fmt.Errorf("stream length must not be negative, got %d", c.Elements)
	}
	if math.IsNaN(c.Skew) || math.IsInf(c.Skew, 0) {
		return fmt.Errorf("skewness must be finite, got %v", c.Skew)
	}
	return nil
}

// Generator samples Zipf-distributed ranks by inverting the cumulative
// distribution. Unlike math/rand's Zipf it accepts any finite exponent.
type Generator struct {
	cfg Config
	cdf []float64
	rng *rand.Rand
}

// NewGenerator precomputes the distribution for cfg.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cdf := make([]float64, cfg.Distinct)
	total := 0.0
	for r := 1; r <= cfg.Distinct; r++ {
		total += math.Pow(float64(r), -cfg.Skew)
		cdf[r-1] = total
	}
	for i := range cdf {
		cdf[i] /= total
	}
	cdf[len(cdf)-1] = 1

	seed := cfg.Seed
	for seed == 0 {
		seed = rand.Uint64()
	}

	return &Generator{
		cfg: cfg,
		cdf: cdf,
		rng: rand.New(rand.NewPCG(seed, seed>>1|1)),
	}, nil
}

// Probability returns P(rank).
func (g *Generator) Probability(rank int) float64 {
	if rank < 1 || rank > len(g.cdf) {
		return 0
	}
	if rank == 1 {
		return g.cdf[0]
	}
	return g.cdf[rank-1] - g.cdf[rank-2]
}

// Next returns a rank in [1, Distinct].
func (g *Generator) Next() int {
	return sort.SearchFloat64s(g.cdf, g.rng.Float64()) + 1
}

// Generate writes Elements ranks to w, one per line, and returns how many
// were written.
func (g *Generator) Generate(ctx context.Context, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 24)

	for i := 0; i < g.cfg.Elements; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return i, err
			}
		}

		buf = strconv.AppendInt(buf[:0], int64(g.Next()), 10)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return i, fmt.Errorf("writing stream: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return g.cfg.Elements, fmt.Errorf("flushing stream: %w", err)
	}
	return g.cfg.Elements, nil
}

// FileName returns the timestamped name for a stream generated at t.
func FileName(t time.Time) string {
	return "zipfian_" + t.Format("20060102_150405") + FileExtension
}

// WriteFile generates a stream into dir and returns the file path.
func WriteFile(ctx context.Context, dir string, cfg Config, now time.Time) (string, error) {
	g, err := NewGenerator(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(dir, FileName(now))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating stream file: %w", err)
	}

	if _, err := g.Generate(ctx, f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing stream file: %w", err)
	}
	return path, nil
}
