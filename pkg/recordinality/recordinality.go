// Package recordinality estimates stream cardinality from the k largest
// distinct hash values and the number of times that set changed.
//
// Reference: Helmi, Lumbroso, Martínez, Viola, "Recordinality: a random
// sampling algorithm for counting distinct elements" (DMTCS, 2012).
package recordinality

import (
	"fmt"
	"iter"
	"math"

	"github.com/fidde/cardinality_estimator/pkg/hashing"
)

var (
	// ErrInvalidParameter is returned when the record count is below 1.
	ErrInvalidParameter = &RecordinalityError{"record count must be at least 1"}
)

// RecordinalityError represents an error in Recordinality operations.
type RecordinalityError struct {
	message string
}

func (e *RecordinalityError) Error() string {
	return "recordinality: " + e.message
}

// Estimate runs one Recordinality pass over s with k records, hashing every
// element with the first function of family. It fails before reading s when
// k < 1.
func Estimate(s iter.Seq[string], k int, family hashing.Family) (float64, error) {
	records, err := NewRecordSet(k)
	if err != nil {
		return 0, err
	}

	for element := range s {
		records.Offer(family.Sum32(0, element))
	}
	return records.Estimate(), nil
}

// Formula returns k * (1 + 1/k)^(changes-k+1) - 1.
func Formula(k, changes int) float64 {
	kf := float64(k)
	return kf*math.Pow(1+1/kf, float64(changes-k+1)) - 1
}

// StandardError returns the asymptotic relative error for k records and a
// true cardinality n. It is zero while n is too small for the asymptotic
// form to apply.
func StandardError(k int, n float64) float64 {
	if k < 1 {
		return math.NaN()
	}
	ratio := n / (float64(k) * math.E)
	if ratio <= 1 {
		return 0
	}
	return math.Sqrt(math.Pow(ratio, 1/float64(k)) - 1)
}

func checkRecordCount(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidParameter, k)
	}
	return nil
}
