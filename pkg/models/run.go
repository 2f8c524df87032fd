// Package models defines the data structures shared by the experiment runner,
// the result stores and the API.
package models

import (
	"errors"
	"regexp"
	"time"
)

// Run ID validation: generated IDs are UUIDs, user-chosen IDs are slugs.
var runIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*[a-z0-9]$|^[a-z0-9]$`)

// Run errors
var (
	ErrRunNotFound  = errors.New("run not found")
	ErrRunExists    = errors.New("run already exists")
	ErrInvalidRunID = errors.New("invalid run id: must be lowercase alphanumeric with hyphens")
	ErrRunTooLarge  = errors.New("run exceeds size limit")
	ErrTooManyRuns  = errors.New("maximum number of runs reached")
)

// Algorithm names as they appear in stored runs.
const (
	AlgorithmHyperLogLog   = "hll"
	AlgorithmRecordinality = "rec"
)

// ValidateRunID checks if a run ID is valid.
func ValidateRunID(id string) error {
	if id == "" || len(id) > 128 {
		return ErrInvalidRunID
	}
	if !runIDRegex.MatchString(id) {
		return ErrInvalidRunID
	}
	return nil
}

// Run is the result of one experiment: every swept parameter of every selected
// algorithm, each averaged over Simulations independently seeded trials.
type Run struct {
	// ID is the unique run identifier
	ID string `json:"id" yaml:"id"`

	// Dataset names the corpus the run was computed over
	Dataset string `json:"dataset" yaml:"dataset"`

	// Elements is the stream length, duplicates included
	Elements int `json:"elements" yaml:"elements"`

	// Distinct is the exact number of distinct elements
	Distinct int `json:"distinct" yaml:"distinct"`

	Simulations int    `json:"simulations" yaml:"simulations"`
	Hash        string `json:"hash" yaml:"hash"`
	Seed        uint64 `json:"seed" yaml:"seed"`

	Created   time.Time `json:"created" yaml:"created"`
	ElapsedMS int64     `json:"elapsed_ms" yaml:"elapsed_ms"`

	Points []Point `json:"points" yaml:"points"`
}

// Point is the aggregate of all trials for one algorithm and parameter.
type Point struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`

	// Pow is the swept exponent; Parameter is the precision for HyperLogLog
	// and 2^Pow records for Recordinality.
	Pow       int `json:"pow" yaml:"pow"`
	Parameter int `json:"parameter" yaml:"parameter"`

	// Registers is the summary size (2^Pow for both algorithms)
	Registers int `json:"registers" yaml:"registers"`

	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`

	// RelativeError is |Mean - Distinct| / Distinct, zero for an empty dataset
	RelativeError float64 `json:"relative_error" yaml:"relative_error"`

	// StandardError is the theoretical relative error of a single trial
	StandardError float64 `json:"standard_error" yaml:"standard_error"`

	// MemoryBytes is the approximate size of one trial's summary structure
	MemoryBytes int `json:"memory_bytes" yaml:"memory_bytes"`
}

// RunSummary describes a stored run without its points.
type RunSummary struct {
	ID          string    `json:"id"`
	Dataset     string    `json:"dataset"`
	Elements    int       `json:"elements"`
	Distinct    int       `json:"distinct"`
	Simulations int       `json:"simulations"`
	Algorithms  []string  `json:"algorithms"`
	Points      int       `json:"points"`
	Created     time.Time `json:"created"`
}

// Summary returns the run's summary.
func (r *Run) Summary() RunSummary {
	return RunSummary{
		ID:          r.ID,
		Dataset:     r.Dataset,
		Elements:    r.Elements,
		Distinct:    r.Distinct,
		Simulations: r.Simulations,
		Algorithms:  r.Algorithms(),
		Points:      len(r.Points),
		Created:     r.Created,
	}
}

// Algorithms returns the algorithms present in the run, in first-seen order.
func (r *Run) Algorithms() []string {
	var algorithms []string
	for _, p := range r.Points {
		if !containsAlgorithm(algorithms, p.Algorithm) {
			algorithms = append(algorithms, p.Algorithm)
		}
	}
	return algorithms
}

// PointsFor returns the points of one algorithm in sweep order.
func (r *Run) PointsFor(algorithm string) []Point {
	var points []Point
	for _, p := range r.Points {
		if p.Algorithm == algorithm {
			points = append(points, p)
		}
	}
	return points
}

func containsAlgorithm(algorithms []string, algorithm string) bool {
	for _, a := range algorithms {
		if a == algorithm {
			return true
		}
	}
	return false
}
