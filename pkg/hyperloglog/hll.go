// Package hyperloglog estimates stream cardinality with the HyperLogLog
// algorithm over 32-bit hash values.
//
// Reference: Flajolet, Fusy, Gandouet, Meunier, "HyperLogLog: the analysis of a
// near-optimal cardinality estimation algorithm" (2007), Figure 3.
package hyperloglog

import (
	"fmt"
	"iter"
	"math"
	"math/bits"

	"github.com/fidde/cardinality_estimator/pkg/hashing"
)

const (
	// MinPrecision and MaxPrecision bound the number of index bits.
	MinPrecision = 4
	MaxPrecision = 16

	hashBits = 32

	// two32 is the size of the hash space.
	two32 = float64(1 << hashBits)
)

// Regime identifies which correction produced an estimate.
type Regime int

const (
	RegimeSmall Regime = iota
	RegimeIntermediate
	RegimeLarge
)

func (r Regime) String() string {
	switch r {
	case RegimeSmall:
		return "small"
	case RegimeIntermediate:
		return "intermediate"
	case RegimeLarge:
		return "large"
	default:
		return fmt.Sprintf("Regime(%d)", int(r))
	}
}

// HyperLogLog is the register array of a single estimation pass.
//
// Memory usage: 2^precision bytes (precision=16 uses 64KB)
// Standard error: ~1.04 / sqrt(2^precision)
type HyperLogLog struct {
	precision uint8   // Number of bits for register index (4-16)
	m         uint32  // Number of registers (2^precision)
	registers []uint8 // Register array
	alpha     float64 // Bias correction constant
}

// New creates an empty HyperLogLog with 2^precision registers.
// Precision must be between 4 and 16.
func New(precision int) (*HyperLogLog, error) {
	if precision < MinPrecision || precision > MaxPrecision {
		return nil, fmt.Errorf("%w: got %d, want %d..%d",
			ErrParameterOutOfRange, precision, MinPrecision, MaxPrecision)
	}

	m := uint32(1) << precision
	return &HyperLogLog{
		precision: uint8(precision),
		m:         m,
		registers: make([]uint8, m),
		alpha:     Alpha(m),
	}, nil
}

// Estimate runs one HyperLogLog pass over s, hashing every element with the
// first function of family. It fails before reading s when precision is out
// of range.
func Estimate(s iter.Seq[string], precision int, family hashing.Family) (float64, error) {
	h, err := New(precision)
	if err != nil {
		return 0, err
	}

	for element := range s {
		h.AddHash(family.Sum32(0, element))
	}
	return h.Estimate(), nil
}

// Alpha returns the bias correction constant for m registers.
func Alpha(m uint32) float64 {
	switch m {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	default:
		return 0.7213 / (1 + 1.079/float64(m))
	}
}

// StandardError returns the expected relative error for a precision.
func StandardError(precision int) float64 {
	return 1.04 / math.Sqrt(float64(uint32(1)<<precision))
}

// AddHash folds a 32-bit hash into the registers.
func (h *HyperLogLog) AddHash(hash uint32) {
	// Top p bits pick the register, the remaining 32-p bits give the rank.
	registerIndex := hash >> (hashBits - h.precision)
	w := hash & (1<<(hashBits-h.precision) - 1)

	// Leftmost set bit of the low field, 1-based. LeadingZeros32(0) is 32,
	// which yields the 32-p+1 cap for an all-zero field.
	rank := uint8(bits.LeadingZeros32(w)) - h.precision + 1

	if rank > h.registers[registerIndex] {
		h.registers[registerIndex] = rank
	}
}

// Add hashes value with the first function of family and adds it.
func (h *HyperLogLog) Add(family hashing.Family, value string) {
	h.AddHash(family.Sum32(0, value))
}

// Precision returns the number of index bits.
func (h *HyperLogLog) Precision() int {
	return int(h.precision)
}

// Registers returns a copy of the register array.
func (h *HyperLogLog) Registers() []uint8 {
	out := make([]uint8, len(h.registers))
	copy(out, h.registers)
	return out
}

// Zeros returns the number of registers that were never set.
func (h *HyperLogLog) Zeros() int {
	zeros := 0
	for _, val := range h.registers {
		if val == 0 {
			zeros++
		}
	}
	return zeros
}

// RawEstimate returns alpha * m^2 / sum(2^-register), before any correction.
func (h *HyperLogLog) RawEstimate() float64 {
	sum := 0.0
	for _, val := range h.registers {
		sum += math.Ldexp(1, -int(val))
	}

	m := float64(h.m)
	return h.alpha * m * m / sum
}

// Estimate returns the bias-corrected cardinality estimate.
func (h *HyperLogLog) Estimate() float64 {
	estimate, _ := h.correct()
	return estimate
}

// Regime reports which range correction Estimate applies.
func (h *HyperLogLog) Regime() Regime {
	_, regime := h.correct()
	return regime
}

func (h *HyperLogLog) correct() (float64, Regime) {
	raw := h.RawEstimate()
	m := float64(h.m)

	switch {
	case raw <= 2.5*m:
		if zeros := h.Zeros(); zeros != 0 {
			return m * math.Log(m/float64(zeros)), RegimeSmall
		}
		return raw, RegimeSmall
	case raw <= two32/30:
		return raw, RegimeIntermediate
	case raw >= two32:
		// The hash space is saturated; the correction diverges.
		return math.Inf(1), RegimeLarge
	default:
		return -two32 * math.Log(1-raw/two32), RegimeLarge
	}
}

// MemorySize returns the approximate memory usage in bytes.
func (h *HyperLogLog) MemorySize() int {
	return int(h.m) + 32 // registers + struct overhead
}

var (
	// ErrParameterOutOfRange is returned when the precision is outside 4..16.
	ErrParameterOutOfRange = &HLLError{"precision out of range"}
)

// HLLError represents an error in HyperLogLog operations.
type HLLError struct {
	message string
}

func (e *HLLError) Error() string {
	return "hyperloglog: " + e.message
}
