// Package hashing provides explicitly seeded families of 32-bit hash functions.
//
// A Family is created once per estimator run. Within a family the same element
// always hashes to the same value; two families built from different seeds
// produce statistically independent values, which is what makes averaging many
// trials meaningful.
package hashing

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// Kind names a hash family implementation.
type Kind string

const (
	KindMurmur3 Kind = "murmur3"
	KindXXHash  Kind = "xxhash"
)

// pcgStream is the PCG increment used when expanding a family seed into
// per-function seeds.
const pcgStream = 0x9e3779b97f4a7c15

var (
	// ErrInvalidCount is returned when a family is asked for fewer than one function.
	ErrInvalidCount = errors.New("hashing: count must be at least 1")

	// ErrUnknownKind is returned for an unsupported hash family name.
	ErrUnknownKind = errors.New("hashing: unknown hash family")
)

// Family is a set of Count() independent hash functions over strings.
// Implementations are not safe for concurrent use; each estimator call owns its family.
type Family interface {
	// Count returns the number of functions in the family.
	Count() int

	// Sum32 returns the value of function i for element. i must be in [0, Count()).
	Sum32(i int, element string) uint32
}

// Hashes returns the values of every function in f for element.
func Hashes(f Family, element string) []uint32 {
	out := make([]uint32, f.Count())
	for i := range out {
		out[i] = f.Sum32(i, element)
	}
	return out
}

// New creates a family of the given kind. An empty kind selects murmur3.
func New(kind Kind, count int, seed uint64) (Family, error) {
	switch kind {
	case KindMurmur3, "":
		return NewMurmur3(count, seed)
	case KindXXHash:
		return NewXXHash(count, seed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// ParseKind validates a hash family name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindMurmur3, KindXXHash:
		return k, nil
	case "":
		return KindMurmur3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// functionSeeds expands one family seed into count per-function seeds.
func functionSeeds(count int, seed uint64) []uint64 {
	rng := rand.New(rand.NewPCG(seed, pcgStream))
	seeds := make([]uint64, count)
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}
	return seeds
}
