package emitter

import "math"

// Equal reports field-wise equality including the presence of optional
// fields, xy_unit and px_size. NaN entries compare equal to NaN so that
// filled columns survive a persistence round trip.
func (s *Set) Equal(other *Set) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.xyUnit != other.xyUnit {
		return false
	}
	if (s.pxSize == nil) != (other.pxSize == nil) {
		return false
	}
	if s.pxSize != nil && *s.pxSize != *other.pxSize {
		return false
	}
	return columnsEqual(f64Columns, s, other, floatEq) &&
		columnsEqual(i64Columns, s, other, func(a, b int64) bool { return a == b }) &&
		columnsEqual(vecColumns, s, other, func(a, b Vec3) bool {
			return floatEq(a[0], b[0]) && floatEq(a[1], b[1]) && floatEq(a[2], b[2])
		})
}

func floatEq(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func columnsEqual[T comparable](cols []column[T], a, b *Set, eq func(T, T) bool) bool {
	for _, c := range cols {
		va, vb := *c.ref(a), *c.ref(b)
		if (va == nil) != (vb == nil) || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !eq(va[i], vb[i]) {
				return false
			}
		}
	}
	return true
}
