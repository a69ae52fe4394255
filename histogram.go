package optrack

import "math/bits"

// Pow2Histogram is a power-of-two bucketed histogram, the same bucketing
// scheme used by the age histogram this type is modeled on: bucket i holds
// the count of values v with bits.Len64(v) == i, so bucket boundaries are
// 0, 1, 2-3, 4-7, 8-15, and so on.
type Pow2Histogram struct {
	buckets []int64
}

// Add records one observation of v (typically an age in milliseconds).
func (h *Pow2Histogram) Add(v int64) {
	i := bucketFor(v)
	for len(h.buckets) <= i {
		h.buckets = append(h.buckets, 0)
	}
	h.buckets[i]++
}

func bucketFor(v int64) int {
	if v <= 0 {
		return 0
	}
	return bits.Len64(uint64(v))
}

// Buckets returns a copy of the bucket counts, indexed by bits.Len64 of the
// upper bound of that bucket.
func (h *Pow2Histogram) Buckets() []int64 {
	out := make([]int64, len(h.buckets))
	copy(out, h.buckets)
	return out
}

// Dump emits the histogram as an array of bucket counts under the given
// name, matching the shape the original admin-socket age histogram uses.
func (h *Pow2Histogram) Dump(e Emitter, name string) {
	e.OpenArray(name)
	for _, c := range h.buckets {
		e.DumpInt("", c)
	}
	e.CloseSection()
}
