package hashing

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// XXHash is a family of seeded xxHash64 functions folded down to 32 bits.
type XXHash struct {
	seeds  []uint64
	digest *xxhash.Digest
}

// NewXXHash creates count xxhash functions derived from seed.
func NewXXHash(count int, seed uint64) (*XXHash, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}

	seeds := functionSeeds(count, seed)
	return &XXHash{
		seeds:  seeds,
		digest: xxhash.NewWithSeed(seeds[0]),
	}, nil
}

// Count returns the number of functions.
func (x *XXHash) Count() int {
	return len(x.seeds)
}

// Sum32 hashes element with function i. The digest is reused between calls.
func (x *XXHash) Sum32(i int, element string) uint32 {
	x.digest.ResetWithSeed(x.seeds[i])
	_, _ = x.digest.WriteString(element)
	sum := x.digest.Sum64()
	return uint32(sum>>32) ^ uint32(sum)
}
