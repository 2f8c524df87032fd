package hashing

import "math/rand/v2"

// Seeder hands out independent family seeds, one per trial.
// The sequence is fully determined by the base seed.
type Seeder struct {
	base uint64
	rng  *rand.Rand
}

// NewSeeder creates a seeder. A zero base draws a random one, so repeated
// invocations of a program produce different trials.
func NewSeeder(base uint64) *Seeder {
	for base == 0 {
		base = rand.Uint64()
	}
	return &Seeder{
		base: base,
		rng:  rand.New(rand.NewPCG(base, ^uint64(pcgStream))),
	}
}

// Base returns the seed the sequence was derived from.
func (s *Seeder) Base() uint64 {
	return s.base
}

// Next returns the next non-zero trial seed.
func (s *Seeder) Next() uint64 {
	for {
		if v := s.rng.Uint64(); v != 0 {
			return v
		}
	}
}
