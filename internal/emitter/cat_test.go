package emitter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/decode/internal/units"
)

func TestCat(t *testing.T) {
	t.Parallel()

	a := framesSet(t, []int64{0, 1})
	b := framesSet(t, []int64{0, 0, 2})
	shift := int64(10)

	tests := []struct {
		name     string
		shifts   []int64
		constant *int64
		want     []int64
	}{
		{"no shift", nil, nil, []int64{0, 1, 0, 0, 2}},
		{"shift vector", []int64{5, -1}, nil, []int64{5, 6, -1, -1, 1}},
		{"shift constant", nil, &shift, []int64{0, 1, 10, 10, 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Cat([]*Set{a, b}, tt.shifts, tt.constant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.FrameIx())
			assert.Equal(t, 5, out.Len())
		})
	}

	// inputs are not modified
	assert.Equal(t, []int64{0, 1}, a.FrameIx())
}

func TestCatErrors(t *testing.T) {
	t.Parallel()

	a := framesSet(t, []int64{0})
	shift := int64(1)

	_, err := Cat([]*Set{a, a}, []int64{1, 2}, &shift)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Cat([]*Set{a, a}, []int64{1}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	nm := MustNew(Fields{}, WithXYUnit(units.Nm))
	_, err = Cat([]*Set{a, nm}, nil, nil)
	assert.ErrorIs(t, err, ErrValidation)

	p1 := MustNew(Fields{}, WithPxSize(100, 100))
	p2 := MustNew(Fields{}, WithPxSize(100, 200))
	_, err = Cat([]*Set{p1, p2}, nil, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCatMetadata(t *testing.T) {
	t.Parallel()

	withMeta, err := Factory(50, Fields{}, WithXYUnit(units.Px), WithPxSize(100, 200))
	require.NoError(t, err)
	plain, err := Factory(20, Fields{})
	require.NoError(t, err)

	out, err := Cat([]*Set{withMeta, plain}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, units.Px, out.XYUnit())
	require.NotNil(t, out.PxSize())
	assert.Equal(t, units.PxSize{100, 200}, *out.PxSize())
}

func TestCatFillsMissingOptional(t *testing.T) {
	t.Parallel()

	a := MustNew(Fields{XYZ: [][]float64{{0, 0}}, Phot: []float64{1}, FrameIx: []int64{0}, Bg: []float64{3}})
	b := MustNew(Fields{XYZ: [][]float64{{1, 1}}, Phot: []float64{1}, FrameIx: []int64{0}, Color: []int64{4}})

	out, err := Cat([]*Set{a, b}, nil, nil)
	require.NoError(t, err)
	bg := out.Bg()
	require.Len(t, bg, 2)
	assert.Equal(t, 3.0, bg[0])
	assert.True(t, math.IsNaN(bg[1]))
	assert.Equal(t, []int64{-1, 4}, out.Color())
	assert.Nil(t, out.Prob())
}

func TestCatEmpty(t *testing.T) {
	t.Parallel()

	out, err := Cat(nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestAddAppend(t *testing.T) {
	t.Parallel()

	a := framesSet(t, []int64{0, 1})
	b := framesSet(t, []int64{3})

	sum, err := Add(a, b)
	require.NoError(t, err)
	cat, err := Cat([]*Set{a, b}, nil, nil)
	require.NoError(t, err)
	assert.True(t, sum.Equal(cat))
	assert.Equal(t, 2, a.Len())

	require.NoError(t, a.Append(b))
	assert.True(t, a.Equal(cat))

	c := framesSet(t, []int64{9})
	a.ReplaceWith(c)
	assert.True(t, a.Equal(c))
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := threeEmitters(t, WithXYUnit(units.Px))
	b := threeEmitters(t, WithXYUnit(units.Px))
	assert.True(t, a.Equal(b))

	// identical numbers in a different unit are never equal
	c := threeEmitters(t, WithXYUnit(units.Nm))
	assert.False(t, a.Equal(c))

	d := threeEmitters(t, WithXYUnit(units.Px), WithPxSize(1, 1))
	assert.False(t, a.Equal(d))

	e, err := a.WithProb([]float64{1, 1, 1})
	require.NoError(t, err)
	assert.False(t, a.Equal(e))

	f, err := a.WithID([]int64{-1, -1, 0})
	require.NoError(t, err)
	assert.False(t, a.Equal(f))
}
