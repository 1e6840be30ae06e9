package emitter

import (
	"fmt"
	"math"

	"github.com/banshee-data/decode/internal/units"
	"gonum.org/v1/gonum/stat"
)

func (s *Set) convert(v []Vec3, name string, tar units.Unit, power float64) ([]Vec3, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrFieldAbsent, name)
	}
	out, err := units.Convert(v, s.pxSize, s.xyUnit, tar, power)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s: %w", ErrUnit, name, tar, err)
	}
	return out, nil
}

// XYZPx returns the coordinates in pixels.
func (s *Set) XYZPx() ([]Vec3, error) { return s.convert(s.xyz, FieldXYZ, units.Px, 1) }

// XYZNm returns the coordinates in nanometres.
func (s *Set) XYZNm() ([]Vec3, error) { return s.convert(s.xyz, FieldXYZ, units.Nm, 1) }

// XYZSigPx returns the coordinate sigmas in pixels.
func (s *Set) XYZSigPx() ([]Vec3, error) { return s.convert(s.xyzSig, FieldXYZSig, units.Px, 1) }

// XYZSigNm returns the coordinate sigmas in nanometres.
func (s *Set) XYZSigNm() ([]Vec3, error) { return s.convert(s.xyzSig, FieldXYZSig, units.Nm, 1) }

// XYZCrPx returns the Cramér-Rao bounds in squared pixels.
func (s *Set) XYZCrPx() ([]Vec3, error) { return s.convert(s.xyzCr, FieldXYZCr, units.Px, 2) }

// XYZCrNm returns the Cramér-Rao bounds in squared nanometres.
func (s *Set) XYZCrNm() ([]Vec3, error) { return s.convert(s.xyzCr, FieldXYZCr, units.Nm, 2) }

func sqrtVec(v []Vec3) []Vec3 {
	out := make([]Vec3, len(v))
	for i := range v {
		for j := range v[i] {
			out[i][j] = math.Sqrt(v[i][j])
		}
	}
	return out
}

// XYZScr returns the square root of the Cramér-Rao bounds in the native unit.
func (s *Set) XYZScr() ([]Vec3, error) {
	if s.xyzCr == nil {
		return nil, fmt.Errorf("%w: %s", ErrFieldAbsent, FieldXYZCr)
	}
	return sqrtVec(s.xyzCr), nil
}

// XYZScrPx returns the square root of the Cramér-Rao bounds in pixels.
func (s *Set) XYZScrPx() ([]Vec3, error) {
	cr, err := s.XYZCrPx()
	if err != nil {
		return nil, err
	}
	return sqrtVec(cr), nil
}

// XYZScrNm returns the square root of the Cramér-Rao bounds in nanometres.
func (s *Set) XYZScrNm() ([]Vec3, error) {
	cr, err := s.XYZCrNm()
	if err != nil {
		return nil, err
	}
	return sqrtVec(cr), nil
}

// XYZSigTotNm returns the euclidean norm of each emitter's sigma in nm.
func (s *Set) XYZSigTotNm() ([]float64, error) {
	sig, err := s.XYZSigNm()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(sig))
	for i, v := range sig {
		out[i] = math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	}
	return out, nil
}

// XYZSigWeightedTotNm returns the weighted total sigma in nm, see
// weightedSigmaTotal.
func (s *Set) XYZSigWeightedTotNm() ([]float64, error) {
	sig, err := s.XYZSigNm()
	if err != nil {
		return nil, err
	}
	return weightedSigmaTotal(sig, s.Dim() == 3), nil
}

// weightedSigmaTotal combines per-axis sigmas after rescaling y (and z) so
// that every axis has the spread of x:
//
//	sqrt(sx² + (sqrt(var(sx)/var(sy))·sy)² [+ (sqrt(var(sx)/var(sz))·sz)²])
//
// An axis with zero variance is left unscaled.
func weightedSigmaTotal(sig []Vec3, use3D bool) []float64 {
	axis := func(k int) []float64 {
		v := make([]float64, len(sig))
		for i := range sig {
			v[i] = sig[i][k]
		}
		return v
	}
	scale := func(varX, varK float64) float64 {
		if varK == 0 || math.IsNaN(varK) || math.IsNaN(varX) {
			return 1
		}
		return math.Sqrt(varX / varK)
	}

	sx, sy, sz := axis(0), axis(1), axis(2)
	var varX, varY, varZ float64
	if len(sig) > 1 {
		varX = stat.Variance(sx, nil)
		varY = stat.Variance(sy, nil)
		varZ = stat.Variance(sz, nil)
	}
	ky := scale(varX, varY)
	kz := scale(varX, varZ)

	out := make([]float64, len(sig))
	for i := range sig {
		tot := sx[i]*sx[i] + (ky*sy[i])*(ky*sy[i])
		if use3D {
			tot += (kz * sz[i]) * (kz * sz[i])
		}
		out[i] = math.Sqrt(tot)
	}
	return out
}
