// Package experiment runs repeated, independently seeded estimator trials
// over a corpus and aggregates them per swept parameter.
package experiment

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/fidde/cardinality_estimator/pkg/hashing"
	"github.com/fidde/cardinality_estimator/pkg/hyperloglog"
	"github.com/fidde/cardinality_estimator/pkg/models"
	"github.com/fidde/cardinality_estimator/pkg/recordinality"
)

// Algorithm selects an estimator.
type Algorithm string

const (
	HyperLogLog   Algorithm = models.AlgorithmHyperLogLog
	Recordinality Algorithm = models.AlgorithmRecordinality
)

// maxRecordPow caps Recordinality sweeps at 2^20 records.
const maxRecordPow = 20

// ErrUnknownAlgorithm is returned for an unsupported algorithm name.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// All lists every algorithm in report order.
func All() []Algorithm {
	return []Algorithm{HyperLogLog, Recordinality}
}

// ParseAlgorithms parses "all", a single name, or a comma separated list.
func ParseAlgorithms(s string) ([]Algorithm, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "all" {
		return All(), nil
	}

	var out []Algorithm
	for _, part := range strings.Split(s, ",") {
		a := Algorithm(strings.TrimSpace(part))
		switch a {
		case HyperLogLog, Recordinality:
		default:
			return nil, fmt.Errorf("%w: %q (supported: hll, rec, all)", ErrUnknownAlgorithm, part)
		}
		if !contains(out, a) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Title returns the human-readable algorithm name.
func (a Algorithm) Title() string {
	switch a {
	case HyperLogLog:
		return "HyperLogLog"
	case Recordinality:
		return "Recordinality"
	default:
		return string(a)
	}
}

// Parameter maps a swept exponent to the estimator parameter: the precision
// for HyperLogLog, 2^pow records for Recordinality.
func (a Algorithm) Parameter(pow int) int {
	if a == Recordinality {
		return 1 << pow
	}
	return pow
}

// CheckPow validates a swept exponent for the algorithm.
func (a Algorithm) CheckPow(pow int) error {
	switch a {
	case HyperLogLog:
		if pow < hyperloglog.MinPrecision || pow > hyperloglog.MaxPrecision {
			return fmt.Errorf("%w: pow %d outside %d..%d", hyperloglog.ErrParameterOutOfRange,
				pow, hyperloglog.MinPrecision, hyperloglog.MaxPrecision)
		}
	case Recordinality:
		if pow < 0 || pow > maxRecordPow {
			return fmt.Errorf("%w: pow %d outside 0..%d", recordinality.ErrInvalidParameter, pow, maxRecordPow)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
	}
	return nil
}

// Estimate runs one trial of the algorithm.
func (a Algorithm) Estimate(s iter.Seq[string], parameter int, family hashing.Family) (float64, error) {
	switch a {
	case HyperLogLog:
		return hyperloglog.Estimate(s, parameter, family)
	case Recordinality:
		return recordinality.Estimate(s, parameter, family)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
	}
}

// StandardError returns the theoretical relative error of one trial at
// parameter for a stream with n distinct elements.
func (a Algorithm) StandardError(parameter int, n float64) float64 {
	switch a {
	case HyperLogLog:
		return hyperloglog.StandardError(parameter)
	case Recordinality:
		return recordinality.StandardError(parameter, n)
	default:
		return 0
	}
}

// MemoryBytes approximates the size of one trial's summary structure.
func (a Algorithm) MemoryBytes(parameter int) int {
	switch a {
	case HyperLogLog:
		return (1 << parameter) + 32
	case Recordinality:
		// heap slot plus mirror set entry per record
		return parameter*(4+8) + 48
	default:
		return 0
	}
}

func contains(algorithms []Algorithm, a Algorithm) bool {
	for _, x := range algorithms {
		if x == a {
			return true
		}
	}
	return false
}
