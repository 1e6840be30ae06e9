package emitter

import (
	"fmt"

	"github.com/banshee-data/decode/internal/units"
)

// Cat concatenates sets in order. frameShifts adds frameShifts[i] to every
// frame index of sets[i]; frameShiftConstant shifts sets[i] by
// i*frameShiftConstant. At most one of the two may be given.
//
// Metadata must agree across inputs, ignoring unset values. An optional
// field present in any input is present in the result; rows from inputs
// without it are filled with NaN (or -1 for color).
func Cat(sets []*Set, frameShifts []int64, frameShiftConstant *int64) (*Set, error) {
	if frameShifts != nil && frameShiftConstant != nil {
		return nil, fmt.Errorf("%w: frame shifts and frame shift constant are mutually exclusive", ErrValidation)
	}
	if frameShifts != nil && len(frameShifts) != len(sets) {
		return nil, fmt.Errorf("%w: %d frame shifts for %d sets", ErrValidation, len(frameShifts), len(sets))
	}

	m, err := mergeMeta(sets)
	if err != nil {
		return nil, err
	}

	out := &Set{xyUnit: m.xyUnit, pxSize: m.pxSize}
	catColumns(f64Columns, out, sets)
	catColumns(i64Columns, out, sets)
	catColumns(vecColumns, out, sets)

	if frameShifts == nil && frameShiftConstant == nil {
		return out, nil
	}
	offset := 0
	for i, s := range sets {
		var shift int64
		if frameShifts != nil {
			shift = frameShifts[i]
		} else {
			shift = int64(i) * *frameShiftConstant
		}
		for k := offset; k < offset+s.Len(); k++ {
			out.frameIx[k] += shift
		}
		offset += s.Len()
	}
	return out, nil
}

func catColumns[T comparable](cols []column[T], dst *Set, sets []*Set) {
	total := 0
	for _, s := range sets {
		total += s.Len()
	}
	for _, c := range cols {
		present := !c.optional
		for _, s := range sets {
			if *c.ref(s) != nil {
				present = true
			}
		}
		if !present {
			continue
		}
		col := make([]T, 0, total)
		for _, s := range sets {
			v := *c.ref(s)
			if v == nil {
				col = append(col, filled(s.Len(), c.fill)...)
				continue
			}
			col = append(col, v...)
		}
		*c.ref(dst) = col
	}
}

func mergeMeta(sets []*Set) (meta, error) {
	var m meta
	for i, s := range sets {
		if s.xyUnit != units.None {
			if m.xyUnit != units.None && m.xyUnit != s.xyUnit {
				return meta{}, fmt.Errorf("%w: set %d has xy_unit %q, expected %q", ErrValidation, i, s.xyUnit, m.xyUnit)
			}
			m.xyUnit = s.xyUnit
		}
		if s.pxSize != nil {
			if m.pxSize != nil && *m.pxSize != *s.pxSize {
				return meta{}, fmt.Errorf("%w: set %d has px_size %v, expected %v", ErrValidation, i, *s.pxSize, *m.pxSize)
			}
			m.pxSize = clonePxSize(s.pxSize)
		}
	}
	return m, nil
}

// Add returns the concatenation of a and b without frame shifts.
func Add(a, b *Set) (*Set, error) {
	return Cat([]*Set{a, b}, nil, nil)
}

// Append concatenates other onto s in place.
func (s *Set) Append(other *Set) error {
	out, err := Add(s, other)
	if err != nil {
		return err
	}
	*s = *out
	return nil
}

// ReplaceWith overwrites s with a copy of other, metadata included.
func (s *Set) ReplaceWith(other *Set) {
	*s = *other.Clone()
}
