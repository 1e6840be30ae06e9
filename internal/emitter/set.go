// Package emitter implements the unit-aware emitter collection used across
// simulation, post-processing and evaluation.
//
// A Set is columnar: every field is a slice with one entry per emitter. The
// required columns (xyz, phot, frame_ix, id) are always present. Optional
// columns are absent when nil. Sets are value-like: every operation returns
// a new Set, except Append and ReplaceWith which are explicit in-place
// accumulators.
package emitter

import (
	"fmt"
	"math"

	"github.com/banshee-data/decode/internal/units"
)

// Vec3 is an (x, y, z) triple.
type Vec3 = [3]float64

// Set is an ordered collection of emitters sharing one xy_unit and px_size.
type Set struct {
	xyz     []Vec3
	phot    []float64
	frameIx []int64
	id      []int64

	prob  []float64
	bg    []float64
	color []int64

	xyzSig  []Vec3
	photSig []float64
	bgSig   []float64

	xyzCr  []Vec3
	photCr []float64
	bgCr   []float64

	xyUnit units.Unit
	pxSize *units.PxSize
}

// column describes one field of a Set so that gather, concatenation and
// equality can be written once per element type.
type column[T comparable] struct {
	name     string
	optional bool
	fill     T
	ref      func(*Set) *[]T
}

var nan = math.NaN()

var f64Columns = []column[float64]{
	{FieldPhot, false, nan, func(s *Set) *[]float64 { return &s.phot }},
	{FieldProb, true, nan, func(s *Set) *[]float64 { return &s.prob }},
	{FieldBg, true, nan, func(s *Set) *[]float64 { return &s.bg }},
	{FieldPhotSig, true, nan, func(s *Set) *[]float64 { return &s.photSig }},
	{FieldBgSig, true, nan, func(s *Set) *[]float64 { return &s.bgSig }},
	{FieldPhotCr, true, nan, func(s *Set) *[]float64 { return &s.photCr }},
	{FieldBgCr, true, nan, func(s *Set) *[]float64 { return &s.bgCr }},
}

var i64Columns = []column[int64]{
	{FieldFrameIx, false, 0, func(s *Set) *[]int64 { return &s.frameIx }},
	{FieldID, false, -1, func(s *Set) *[]int64 { return &s.id }},
	{FieldColor, true, -1, func(s *Set) *[]int64 { return &s.color }},
}

var vecColumns = []column[Vec3]{
	{FieldXYZ, false, Vec3{nan, nan, nan}, func(s *Set) *[]Vec3 { return &s.xyz }},
	{FieldXYZSig, true, Vec3{nan, nan, nan}, func(s *Set) *[]Vec3 { return &s.xyzSig }},
	{FieldXYZCr, true, Vec3{nan, nan, nan}, func(s *Set) *[]Vec3 { return &s.xyzCr }},
}

// mapColumns sets every column of dst to fn applied to the same column of src.
func mapColumns[T comparable](cols []column[T], dst, src *Set, fn func([]T) []T) {
	for _, c := range cols {
		*c.ref(dst) = fn(*c.ref(src))
	}
}

func (s *Set) mapAll(fnF func([]float64) []float64, fnI func([]int64) []int64, fnV func([]Vec3) []Vec3) *Set {
	out := &Set{xyUnit: s.xyUnit, pxSize: clonePxSize(s.pxSize)}
	mapColumns(f64Columns, out, s, fnF)
	mapColumns(i64Columns, out, s, fnI)
	mapColumns(vecColumns, out, s, fnV)
	return out
}

// New validates fields and builds a Set. 2D coordinate rows are promoted to
// 3D, a missing id column defaults to -1 for every emitter and a missing
// frame_ix or phot column is a validation error unless the set is empty.
func New(f Fields, opts ...Option) (*Set, error) {
	m, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	n := f.inferLen()
	if n < 0 {
		n = 0
	}

	s := &Set{xyUnit: m.xyUnit, pxSize: m.pxSize}

	if s.xyz, err = toVec3(FieldXYZ, f.XYZ, n); err != nil {
		return nil, err
	}
	if s.xyz == nil {
		if n > 0 {
			return nil, fmt.Errorf("%w: xyz is required", ErrValidation)
		}
		s.xyz = []Vec3{}
	}
	if f.Phot == nil && n > 0 {
		return nil, fmt.Errorf("%w: phot is required", ErrValidation)
	}
	if f.FrameIx == nil && n > 0 {
		return nil, fmt.Errorf("%w: frame_ix is required", ErrValidation)
	}

	if s.phot, err = checkLen(FieldPhot, f.Phot, n); err != nil {
		return nil, err
	}
	if s.frameIx, err = checkLen(FieldFrameIx, f.FrameIx, n); err != nil {
		return nil, err
	}
	if s.id, err = checkLen(FieldID, f.ID, n); err != nil {
		return nil, err
	}
	if s.phot == nil {
		s.phot = []float64{}
	}
	if s.frameIx == nil {
		s.frameIx = []int64{}
	}
	if s.id == nil {
		s.id = filled(n, int64(-1))
	}

	for _, c := range []struct {
		name string
		src  []float64
		dst  *[]float64
	}{
		{FieldProb, f.Prob, &s.prob},
		{FieldBg, f.Bg, &s.bg},
		{FieldPhotSig, f.PhotSig, &s.photSig},
		{FieldBgSig, f.BgSig, &s.bgSig},
		{FieldPhotCr, f.PhotCr, &s.photCr},
		{FieldBgCr, f.BgCr, &s.bgCr},
	} {
		if *c.dst, err = checkLen(c.name, c.src, n); err != nil {
			return nil, err
		}
	}
	if s.color, err = checkLen(FieldColor, f.Color, n); err != nil {
		return nil, err
	}
	if s.xyzSig, err = toVec3(FieldXYZSig, f.XYZSig, n); err != nil {
		return nil, err
	}
	if s.xyzCr, err = toVec3(FieldXYZCr, f.XYZCr, n); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNew is New that panics on error. Intended for tests and literals.
func MustNew(f Fields, opts ...Option) *Set {
	s, err := New(f, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Empty returns a Set with no emitters and the given metadata.
func Empty(opts ...Option) (*Set, error) {
	return New(Fields{}, opts...)
}

func checkLen[T any](name string, v []T, n int) ([]T, error) {
	if v == nil {
		return nil, nil
	}
	if len(v) != n {
		return nil, fmt.Errorf("%w: %s has %d entries, expected %d", ErrValidation, name, len(v), n)
	}
	return cloneSlice(v), nil
}

func toVec3(name string, rows [][]float64, n int) ([]Vec3, error) {
	if rows == nil {
		return nil, nil
	}
	if len(rows) != n {
		return nil, fmt.Errorf("%w: %s has %d entries, expected %d", ErrValidation, name, len(rows), n)
	}
	out := make([]Vec3, n)
	for i, r := range rows {
		switch len(r) {
		case 2:
			out[i] = Vec3{r[0], r[1], 0}
		case 3:
			out[i] = Vec3{r[0], r[1], r[2]}
		default:
			return nil, fmt.Errorf("%w: wrong %s dimension %d at row %d", ErrValidation, name, len(r), i)
		}
	}
	return out, nil
}

func fromVec3(v []Vec3) [][]float64 {
	if v == nil {
		return nil
	}
	out := make([][]float64, len(v))
	for i := range v {
		out[i] = []float64{v[i][0], v[i][1], v[i][2]}
	}
	return out
}

func cloneSlice[T any](v []T) []T {
	if v == nil {
		return nil
	}
	return append(make([]T, 0, len(v)), v...)
}

func filled[T any](n int, v T) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func clonePxSize(p *units.PxSize) *units.PxSize {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Len returns the number of emitters.
func (s *Set) Len() int { return len(s.xyz) }

// Dim is 3 if any emitter has a non-zero z coordinate or z sigma, else 2.
func (s *Set) Dim() int {
	for i := range s.xyz {
		if s.xyz[i][2] != 0 {
			return 3
		}
		if s.xyzSig != nil && s.xyzSig[i][2] != 0 {
			return 3
		}
	}
	return 2
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	return s.mapAll(cloneSlice[float64], cloneSlice[int64], cloneSlice[Vec3])
}

// Fields returns a deep copy of the data. New(s.Fields(), WithMeta(s.Meta()))
// reproduces s.
func (s *Set) Fields() Fields {
	return Fields{
		XYZ:     fromVec3(s.xyz),
		Phot:    cloneSlice(s.phot),
		FrameIx: cloneSlice(s.frameIx),
		ID:      cloneSlice(s.id),
		Prob:    cloneSlice(s.prob),
		Bg:      cloneSlice(s.bg),
		Color:   cloneSlice(s.color),
		XYZSig:  fromVec3(s.xyzSig),
		PhotSig: cloneSlice(s.photSig),
		BgSig:   cloneSlice(s.bgSig),
		XYZCr:   fromVec3(s.xyzCr),
		PhotCr:  cloneSlice(s.photCr),
		BgCr:    cloneSlice(s.bgCr),
	}
}

// Meta returns the collection metadata.
func (s *Set) Meta() Meta {
	return Meta{XYUnit: s.xyUnit, PxSize: clonePxSize(s.pxSize)}
}

// XYUnit returns the lateral unit.
func (s *Set) XYUnit() units.Unit { return s.xyUnit }

// PxSize returns the pixel size or nil when unset.
func (s *Set) PxSize() *units.PxSize { return clonePxSize(s.pxSize) }

// UsedFields lists the present fields in canonical order.
func (s *Set) UsedFields() []string {
	present := map[string]bool{}
	for _, c := range f64Columns {
		present[c.name] = *c.ref(s) != nil
	}
	for _, c := range i64Columns {
		present[c.name] = *c.ref(s) != nil
	}
	for _, c := range vecColumns {
		present[c.name] = *c.ref(s) != nil
	}
	var out []string
	for _, name := range FieldNames {
		if present[name] {
			out = append(out, name)
		}
	}
	return out
}

// XYZ returns a copy of the coordinates in the native unit.
func (s *Set) XYZ() []Vec3 { return cloneSlice(s.xyz) }

// Phot returns a copy of the photon counts.
func (s *Set) Phot() []float64 { return cloneSlice(s.phot) }

// FrameIx returns a copy of the frame indices.
func (s *Set) FrameIx() []int64 { return cloneSlice(s.frameIx) }

// ID returns a copy of the ids.
func (s *Set) ID() []int64 { return cloneSlice(s.id) }

// Prob returns a copy of the detection probabilities, nil when absent.
func (s *Set) Prob() []float64 { return cloneSlice(s.prob) }

// Bg returns a copy of the background estimates, nil when absent.
func (s *Set) Bg() []float64 { return cloneSlice(s.bg) }

// Color returns a copy of the color labels, nil when absent.
func (s *Set) Color() []int64 { return cloneSlice(s.color) }

// XYZSig returns a copy of the native-unit coordinate sigmas, nil when absent.
func (s *Set) XYZSig() []Vec3 { return cloneSlice(s.xyzSig) }

// PhotSig returns a copy of the photon sigmas, nil when absent.
func (s *Set) PhotSig() []float64 { return cloneSlice(s.photSig) }

// BgSig returns a copy of the background sigmas, nil when absent.
func (s *Set) BgSig() []float64 { return cloneSlice(s.bgSig) }

// XYZCr returns a copy of the native-unit coordinate Cramér-Rao bounds.
func (s *Set) XYZCr() []Vec3 { return cloneSlice(s.xyzCr) }

// PhotCr returns a copy of the photon Cramér-Rao bounds, nil when absent.
func (s *Set) PhotCr() []float64 { return cloneSlice(s.photCr) }

// BgCr returns a copy of the background Cramér-Rao bounds, nil when absent.
func (s *Set) BgCr() []float64 { return cloneSlice(s.bgCr) }

// WithID returns a copy with the id column replaced.
func (s *Set) WithID(id []int64) (*Set, error) {
	if len(id) != s.Len() {
		return nil, fmt.Errorf("%w: id has %d entries, expected %d", ErrValidation, len(id), s.Len())
	}
	out := s.Clone()
	out.id = append(make([]int64, 0, len(id)), id...)
	return out, nil
}

// WithProb returns a copy with the prob column replaced. nil removes it.
func (s *Set) WithProb(p []float64) (*Set, error) {
	v, err := checkLen(FieldProb, p, s.Len())
	if err != nil {
		return nil, err
	}
	out := s.Clone()
	out.prob = v
	return out, nil
}

// WithXYZSig returns a copy with the coordinate sigma column replaced.
func (s *Set) WithXYZSig(sig []Vec3) (*Set, error) {
	v, err := checkLen(FieldXYZSig, sig, s.Len())
	if err != nil {
		return nil, err
	}
	out := s.Clone()
	out.xyzSig = v
	return out, nil
}

// String summarises the set for logs.
func (s *Set) String() string {
	if s.Len() == 0 {
		return fmt.Sprintf("EmitterSet{0 emitters, xy_unit=%q}", s.xyUnit)
	}
	lo, hi := s.frameIx[0], s.frameIx[0]
	for _, f := range s.frameIx {
		lo = min(lo, f)
		hi = max(hi, f)
	}
	return fmt.Sprintf("EmitterSet{%d emitters, frames %d..%d, xy_unit=%q}", s.Len(), lo, hi, s.xyUnit)
}
