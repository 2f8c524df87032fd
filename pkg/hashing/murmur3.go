package hashing

import (
	"fmt"

	"github.com/twmb/murmur3"
)

// Murmur3 is a family of seeded 32-bit MurmurHash3 functions.
type Murmur3 struct {
	seeds []uint32
}

// NewMurmur3 creates count murmur3 functions derived from seed.
func NewMurmur3(count int, seed uint64) (*Murmur3, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}

	wide := functionSeeds(count, seed)
	seeds := make([]uint32, count)
	for i, s := range wide {
		seeds[i] = uint32(s>>32) ^ uint32(s)
	}
	return &Murmur3{seeds: seeds}, nil
}

// Count returns the number of functions.
func (m *Murmur3) Count() int {
	return len(m.seeds)
}

// Sum32 hashes element with function i.
func (m *Murmur3) Sum32(i int, element string) uint32 {
	return murmur3.SeedSum32(m.seeds[i], []byte(element))
}
