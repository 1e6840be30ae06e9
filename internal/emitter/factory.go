package emitter

import (
	"fmt"
	"math/rand/v2"
)

// FactoryExtent is the lateral extent, in the native unit, of random
// coordinates generated by Factory.
const FactoryExtent = 32.0

// Factory builds a random set of n emitters. Fields given in override replace
// the random columns. With n < 0 the count is inferred from the first
// present override field; an override with no fields and n < 0 is a
// validation error.
func Factory(n int, override Fields, opts ...Option) (*Set, error) {
	if inferred := override.inferLen(); n < 0 {
		if inferred < 0 {
			return nil, fmt.Errorf("%w: factory needs n or a field to infer the length from", ErrValidation)
		}
		n = inferred
	}

	f := Fields{
		XYZ:     make([][]float64, n),
		Phot:    make([]float64, n),
		FrameIx: make([]int64, n),
		ID:      make([]int64, n),
		Prob:    make([]float64, n),
		XYZSig:  make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		f.XYZ[i] = []float64{rand.Float64() * FactoryExtent, rand.Float64() * FactoryExtent, 0}
		f.Phot[i] = rand.Float64() * 5000
		f.ID[i] = int64(i)
		f.Prob[i] = rand.Float64()
		f.XYZSig[i] = []float64{rand.Float64(), rand.Float64(), rand.Float64()}
	}

	for _, name := range FieldNames {
		if v, ok := override.Get(name); ok {
			if err := f.Set(name, v); err != nil {
				return nil, err
			}
		}
	}
	return New(f, opts...)
}

// FactoryMap is Factory with overrides keyed by field name, as produced by
// generic loaders. Unknown names return ErrNotSupported.
func FactoryMap(n int, override map[string]any, opts ...Option) (*Set, error) {
	var f Fields
	for name, v := range override {
		if err := f.Set(name, v); err != nil {
			return nil, err
		}
	}
	return Factory(n, f, opts...)
}
