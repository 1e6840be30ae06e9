package emitter

import (
	"fmt"
	"math"
)

// LooseFields describes emitters by continuous on-time rather than frame.
// A nil ID assigns 0..n-1.
type LooseFields struct {
	XYZ       [][]float64
	Intensity []float64
	Ontime    []float64
	T0        []float64
	ID        []int64
}

// LooseSet is a set of emitters active on [t0, t0+ontime) with constant
// photon flux. It is distributed onto frames by Distribute.
type LooseSet struct {
	xyz       []Vec3
	intensity []float64
	ontime    []float64
	t0        []float64
	id        []int64
	meta      meta
}

// NewLooseSet validates fields: coordinate rows of length 2 or 3, unique
// ids, non-negative intensity and non-negative on-time.
func NewLooseSet(f LooseFields, opts ...Option) (*LooseSet, error) {
	m, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	n := len(f.XYZ)
	xyz, err := toVec3(FieldXYZ, f.XYZ, n)
	if err != nil {
		return nil, err
	}
	for _, c := range []struct {
		name string
		v    []float64
	}{{"intensity", f.Intensity}, {"ontime", f.Ontime}, {"t0", f.T0}} {
		if len(c.v) != n {
			return nil, fmt.Errorf("%w: %s has %d entries, expected %d", ErrValidation, c.name, len(c.v), n)
		}
	}

	id := f.ID
	if id == nil {
		id = make([]int64, n)
		for i := range id {
			id[i] = int64(i)
		}
	} else if len(id) != n {
		return nil, fmt.Errorf("%w: id has %d entries, expected %d", ErrValidation, len(id), n)
	}
	seen := make(map[int64]struct{}, n)
	for _, v := range id {
		if _, dup := seen[v]; dup {
			return nil, fmt.Errorf("%w: ids are not unique", ErrValidation)
		}
		seen[v] = struct{}{}
	}
	for i := 0; i < n; i++ {
		if f.Intensity[i] < 0 {
			return nil, fmt.Errorf("%w: negative intensity values encountered", ErrValidation)
		}
		if f.Ontime[i] < 0 {
			return nil, fmt.Errorf("%w: negative ontime encountered", ErrValidation)
		}
	}

	return &LooseSet{
		xyz:       xyz,
		intensity: cloneSlice(f.Intensity),
		ontime:    cloneSlice(f.Ontime),
		t0:        cloneSlice(f.T0),
		id:        cloneSlice(id),
		meta:      m,
	}, nil
}

// Len returns the number of loose emitters.
func (l *LooseSet) Len() int { return len(l.xyz) }

// TEnd returns t0+ontime for every emitter.
func (l *LooseSet) TEnd() []float64 {
	out := make([]float64, l.Len())
	for i := range out {
		out[i] = l.t0[i] + l.ontime[i]
	}
	return out
}

// Distribute integrates each emitter's flux over the frame windows
// [f, f+1). Every frame with non-zero overlap yields one record with
// phot = intensity*overlap and the emitter's xyz and id. Records are ordered
// by emitter, then frame. An emitter with zero on-time yields no records.
func (l *LooseSet) Distribute() (*Set, error) {
	return l.distribute(math.MinInt64, math.MaxInt64)
}

// DistributeFrames is Distribute restricted to frames [lo, hi).
func (l *LooseSet) DistributeFrames(lo, hi int64) (*Set, error) {
	if hi < lo {
		return nil, fmt.Errorf("%w: frame range [%d, %d) is reversed", ErrValidation, lo, hi)
	}
	return l.distribute(lo, hi)
}

func (l *LooseSet) distribute(lo, hi int64) (*Set, error) {
	s := &Set{
		xyz:     []Vec3{},
		phot:    []float64{},
		frameIx: []int64{},
		id:      []int64{},
		xyUnit:  l.meta.xyUnit,
		pxSize:  clonePxSize(l.meta.pxSize),
	}
	for i := range l.xyz {
		start, end := l.t0[i], l.t0[i]+l.ontime[i]
		if end <= start {
			continue
		}
		first := int64(math.Floor(start))
		last := int64(math.Ceil(end)) - 1
		for f := max(first, lo); f <= last && f < hi; f++ {
			overlap := math.Min(float64(f+1), end) - math.Max(float64(f), start)
			if overlap <= 0 {
				continue
			}
			s.xyz = append(s.xyz, l.xyz[i])
			s.phot = append(s.phot, l.intensity[i]*overlap)
			s.frameIx = append(s.frameIx, f)
			s.id = append(s.id, l.id[i])
		}
	}
	return s, nil
}
