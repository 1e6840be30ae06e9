package emitter

import (
	"fmt"
	"math"
)

// Field names as used by persistence and Fields.Get/Set.
const (
	FieldXYZ     = "xyz"
	FieldPhot    = "phot"
	FieldFrameIx = "frame_ix"
	FieldID      = "id"
	FieldProb    = "prob"
	FieldBg      = "bg"
	FieldColor   = "color"
	FieldXYZSig  = "xyz_sig"
	FieldPhotSig = "phot_sig"
	FieldBgSig   = "bg_sig"
	FieldXYZCr   = "xyz_cr"
	FieldPhotCr  = "phot_cr"
	FieldBgCr    = "bg_cr"
)

// FieldNames lists every field in canonical order. The first four are
// always present on a Set.
var FieldNames = []string{
	FieldXYZ, FieldPhot, FieldFrameIx, FieldID,
	FieldProb, FieldBg, FieldColor,
	FieldXYZSig, FieldPhotSig, FieldBgSig,
	FieldXYZCr, FieldPhotCr, FieldBgCr,
}

// Fields is the constructor input for New and the plain-data view returned
// by Set.Fields. A nil slice means the field is absent. Vector fields hold
// rows of length 2 or 3; 2D rows are padded with z=0.
type Fields struct {
	XYZ     [][]float64
	Phot    []float64
	FrameIx []int64
	ID      []int64

	Prob  []float64
	Bg    []float64
	Color []int64

	XYZSig  [][]float64
	PhotSig []float64
	BgSig   []float64

	XYZCr  [][]float64
	PhotCr []float64
	BgCr   []float64
}

// Get returns the named field and whether it is present.
func (f *Fields) Get(name string) (any, bool) {
	switch name {
	case FieldXYZ:
		return f.XYZ, f.XYZ != nil
	case FieldPhot:
		return f.Phot, f.Phot != nil
	case FieldFrameIx:
		return f.FrameIx, f.FrameIx != nil
	case FieldID:
		return f.ID, f.ID != nil
	case FieldProb:
		return f.Prob, f.Prob != nil
	case FieldBg:
		return f.Bg, f.Bg != nil
	case FieldColor:
		return f.Color, f.Color != nil
	case FieldXYZSig:
		return f.XYZSig, f.XYZSig != nil
	case FieldPhotSig:
		return f.PhotSig, f.PhotSig != nil
	case FieldBgSig:
		return f.BgSig, f.BgSig != nil
	case FieldXYZCr:
		return f.XYZCr, f.XYZCr != nil
	case FieldPhotCr:
		return f.PhotCr, f.PhotCr != nil
	case FieldBgCr:
		return f.BgCr, f.BgCr != nil
	}
	return nil, false
}

// Set assigns the named field. Unknown names return ErrNotSupported and a
// value of the wrong type returns ErrValidation.
func (f *Fields) Set(name string, value any) error {
	var ok bool
	switch name {
	case FieldXYZ:
		f.XYZ, ok = value.([][]float64)
	case FieldXYZSig:
		f.XYZSig, ok = value.([][]float64)
	case FieldXYZCr:
		f.XYZCr, ok = value.([][]float64)
	case FieldFrameIx:
		f.FrameIx, ok = value.([]int64)
	case FieldID:
		f.ID, ok = value.([]int64)
	case FieldColor:
		f.Color, ok = value.([]int64)
	case FieldPhot:
		f.Phot, ok = value.([]float64)
	case FieldProb:
		f.Prob, ok = value.([]float64)
	case FieldBg:
		f.Bg, ok = value.([]float64)
	case FieldPhotSig:
		f.PhotSig, ok = value.([]float64)
	case FieldBgSig:
		f.BgSig, ok = value.([]float64)
	case FieldPhotCr:
		f.PhotCr, ok = value.([]float64)
	case FieldBgCr:
		f.BgCr, ok = value.([]float64)
	default:
		return fmt.Errorf("%w: unknown emitter field %q", ErrNotSupported, name)
	}
	if !ok {
		return fmt.Errorf("%w: field %s has unexpected type %T", ErrValidation, name, value)
	}
	return nil
}

// inferLen returns the emitter count implied by the first present field in
// canonical order, or -1 when no field is present.
func (f *Fields) inferLen() int {
	for _, name := range FieldNames {
		v, ok := f.Get(name)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case []float64:
			return len(t)
		case []int64:
			return len(t)
		case [][]float64:
			return len(t)
		}
	}
	return -1
}

// FrameIxFromFloat converts float frame indices to integers, failing on any
// value that is not integral.
func FrameIxFromFloat(v []float64) ([]int64, error) {
	if v == nil {
		return nil, nil
	}
	out := make([]int64, len(v))
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: frame_ix[%d]=%v is not integral", ErrValidation, i, f)
		}
		out[i] = int64(f)
	}
	return out, nil
}
