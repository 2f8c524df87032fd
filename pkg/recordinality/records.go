package recordinality

import (
	"container/heap"
	"slices"
)

// maxPrealloc caps the capacity reserved up front. Larger sets grow as the
// stream fills them.
const maxPrealloc = 1 << 16

// RecordSet holds at most k distinct hash values, the largest seen so far.
//
// It starts with k empty slots. An empty slot ranks below every real hash, so
// the first k distinct hashes always enter. Once full, the smallest record is
// the eviction threshold. A mirror set answers membership in O(1).
type RecordSet struct {
	k       int
	records minHeap
	present map[uint32]struct{}
	changes int
}

// NewRecordSet creates an empty record set of capacity k.
func NewRecordSet(k int) (*RecordSet, error) {
	if err := checkRecordCount(k); err != nil {
		return nil, err
	}
	size := min(k, maxPrealloc)
	return &RecordSet{
		k:       k,
		records: make(minHeap, 0, size),
		present: make(map[uint32]struct{}, size),
	}, nil
}

// Offer presents a hash value. It returns true when the value became a record,
// replacing the current minimum (an empty slot or the smallest record).
// Values already tracked and values not above the minimum are ignored.
func (r *RecordSet) Offer(hash uint32) bool {
	if _, tracked := r.present[hash]; tracked {
		return false
	}

	switch {
	case len(r.records) < r.k:
		heap.Push(&r.records, hash)
	case hash > r.records[0]:
		delete(r.present, r.records[0])
		r.records[0] = hash
		heap.Fix(&r.records, 0)
	default:
		return false
	}

	r.present[hash] = struct{}{}
	r.changes++
	return true
}

// K returns the capacity.
func (r *RecordSet) K() int {
	return r.k
}

// Len returns the number of filled slots.
func (r *RecordSet) Len() int {
	return len(r.records)
}

// Min returns the eviction threshold. ok is false while an empty slot remains,
// in which case every new hash would enter.
func (r *RecordSet) Min() (value uint32, ok bool) {
	if len(r.records) < r.k {
		return 0, false
	}
	return r.records[0], true
}

// Contains reports whether hash is currently a record.
func (r *RecordSet) Contains(hash uint32) bool {
	_, ok := r.present[hash]
	return ok
}

// Changes returns how many times a new value entered the set.
func (r *RecordSet) Changes() int {
	return r.changes
}

// Records returns the current records in ascending order.
func (r *RecordSet) Records() []uint32 {
	out := slices.Clone([]uint32(r.records))
	slices.Sort(out)
	return out
}

// Estimate returns the cardinality estimate for the changes observed so far.
func (r *RecordSet) Estimate() float64 {
	return Formula(r.k, r.changes)
}

// minHeap implements heap.Interface over uint32.
type minHeap []uint32

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) {
	*h = append(*h, x.(uint32))
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
