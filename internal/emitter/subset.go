package emitter

import (
	"fmt"
	"sort"
)

func gather[T any](v []T, idx []int) []T {
	if v == nil {
		return nil
	}
	out := make([]T, len(idx))
	for k, i := range idx {
		out[k] = v[i]
	}
	return out
}

// Subset returns the emitters at idx, in idx order. It panics if an index is
// out of range.
func (s *Set) Subset(idx []int) *Set {
	return s.mapAll(
		func(v []float64) []float64 { return gather(v, idx) },
		func(v []int64) []int64 { return gather(v, idx) },
		func(v []Vec3) []Vec3 { return gather(v, idx) },
	)
}

// SubsetMask returns the emitters whose mask entry is true. It panics if the
// mask length differs from Len.
func (s *Set) SubsetMask(mask []bool) *Set {
	if len(mask) != s.Len() {
		panic(fmt.Sprintf("emitter: mask length %d does not match %d emitters", len(mask), s.Len()))
	}
	idx := make([]int, 0, len(mask))
	for i, keep := range mask {
		if keep {
			idx = append(idx, i)
		}
	}
	return s.Subset(idx)
}

// SubsetFrame returns the emitters with lo <= frame_ix < hi. An empty range
// yields an empty set.
func (s *Set) SubsetFrame(lo, hi int64) *Set {
	idx := make([]int, 0)
	for i, f := range s.frameIx {
		if f >= lo && f < hi {
			idx = append(idx, i)
		}
	}
	return s.Subset(idx)
}

// Frame returns the emitters on frame ix.
func (s *Set) Frame(ix int64) *Set {
	return s.SubsetFrame(ix, ix+1)
}

// FrameRange returns the emitters on frames [lo, hi). Only a step of 1 is
// supported; any other step returns ErrNotSupported rather than guessing at
// strided semantics.
func (s *Set) FrameRange(lo, hi, step int64) (*Set, error) {
	if step != 1 {
		return nil, fmt.Errorf("%w: frame access with step %d", ErrNotSupported, step)
	}
	return s.SubsetFrame(lo, hi), nil
}

// SplitInFrames returns hi-lo sets, one per frame in [lo, hi). Frames
// without emitters yield empty sets.
func (s *Set) SplitInFrames(lo, hi int64) ([]*Set, error) {
	if hi < lo {
		return nil, fmt.Errorf("%w: split range [%d, %d) is reversed", ErrValidation, lo, hi)
	}
	buckets := make([][]int, hi-lo)
	for i, f := range s.frameIx {
		if f >= lo && f < hi {
			buckets[f-lo] = append(buckets[f-lo], i)
		}
	}
	out := make([]*Set, len(buckets))
	for k, idx := range buckets {
		if idx == nil {
			idx = []int{}
		}
		out[k] = s.Subset(idx)
	}
	return out, nil
}

// FrameBounds returns the smallest and largest frame index. ok is false for
// an empty set.
func (s *Set) FrameBounds() (lo, hi int64, ok bool) {
	if s.Len() == 0 {
		return 0, 0, false
	}
	lo, hi = s.frameIx[0], s.frameIx[0]
	for _, f := range s.frameIx[1:] {
		lo = min(lo, f)
		hi = max(hi, f)
	}
	return lo, hi, true
}

// Chunks splits the set into contiguous blocks of at most n emitters; the
// last block holds the remainder. An empty set yields one empty block so
// that Cat(Chunks(n)) always reproduces the metadata.
func (s *Set) Chunks(n int) ([]*Set, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrValidation, n)
	}
	if s.Len() == 0 {
		return []*Set{s.Clone()}, nil
	}
	var out []*Set
	for start := 0; start < s.Len(); start += n {
		end := min(start+n, s.Len())
		idx := make([]int, end-start)
		for k := range idx {
			idx[k] = start + k
		}
		out = append(out, s.Subset(idx))
	}
	return out, nil
}

// SortedByFrameID returns a copy ordered by frame index, then id, then
// original position.
func (s *Set) SortedByFrameID() *Set {
	idx := make([]int, s.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if s.frameIx[ia] != s.frameIx[ib] {
			return s.frameIx[ia] < s.frameIx[ib]
		}
		return s.id[ia] < s.id[ib]
	})
	return s.Subset(idx)
}
