package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/decode/internal/units"
)

func TestLooseSetValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields LooseFields
		msg    string
	}{
		{
			"wrong xyz dimension",
			LooseFields{XYZ: [][]float64{{1}}, Intensity: []float64{1}, Ontime: []float64{1}, T0: []float64{0}},
			"wrong xyz dimension",
		},
		{
			"non unique ids",
			LooseFields{XYZ: [][]float64{{1, 1}, {2, 2}}, Intensity: []float64{1, 1}, Ontime: []float64{1, 1}, T0: []float64{0, 0}, ID: []int64{3, 3}},
			"ids are not unique",
		},
		{
			"negative intensity",
			LooseFields{XYZ: [][]float64{{1, 1}}, Intensity: []float64{-1}, Ontime: []float64{1}, T0: []float64{0}},
			"negative intensity values encountered",
		},
		{
			"negative ontime",
			LooseFields{XYZ: [][]float64{{1, 1}}, Intensity: []float64{1}, Ontime: []float64{-1}, T0: []float64{0}},
			"negative ontime encountered",
		},
		{
			"length mismatch",
			LooseFields{XYZ: [][]float64{{1, 1}}, Intensity: []float64{1, 2}, Ontime: []float64{1}, T0: []float64{0}},
			"intensity has 2 entries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLooseSet(tt.fields)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestDistribute(t *testing.T) {
	t.Parallel()

	l, err := NewLooseSet(LooseFields{
		XYZ:       [][]float64{{1, 2, 3}, {4, 5, 6}},
		Intensity: []float64{1, 2},
		Ontime:    []float64{0.4, 2},
		T0:        []float64{-0.5, 3.2},
	}, WithXYUnit(units.Px))
	require.NoError(t, err)

	s, err := l.Distribute()
	require.NoError(t, err)
	require.Equal(t, 4, s.Len())
	assert.Equal(t, units.Px, s.XYUnit())

	assert.Equal(t, []int64{-1, 3, 4, 5}, s.FrameIx())
	assert.Equal(t, []int64{0, 1, 1, 1}, s.ID())
	phot := s.Phot()
	assert.InDelta(t, 0.4, phot[0], 1e-9)
	assert.InDelta(t, 1.6, phot[1], 1e-9)
	assert.InDelta(t, 2.0, phot[2], 1e-9)
	assert.InDelta(t, 0.4, phot[3], 1e-9)
	for _, v := range s.XYZ()[1:] {
		assert.Equal(t, Vec3{4, 5, 6}, v)
	}
}

func TestDistributeConservesPhotons(t *testing.T) {
	t.Parallel()

	n := 200
	xyz := make([][]float64, n)
	intensity := make([]float64, n)
	ontime := make([]float64, n)
	t0 := make([]float64, n)
	for i := 0; i < n; i++ {
		xyz[i] = []float64{0, 0, 0}
		intensity[i] = 100 + float64(i)
		ontime[i] = 0.1 + float64(i%17)*0.37
		t0[i] = -3 + float64(i)*0.113
	}
	l, err := NewLooseSet(LooseFields{XYZ: xyz, Intensity: intensity, Ontime: ontime, T0: t0})
	require.NoError(t, err)

	s, err := l.Distribute()
	require.NoError(t, err)

	sum := make(map[int64]float64)
	for i, id := range s.ID() {
		sum[id] += s.Phot()[i]
	}
	for i := 0; i < n; i++ {
		assert.InDelta(t, intensity[i]*ontime[i], sum[int64(i)], 1e-6)
	}
}

func TestDistributeZeroOntime(t *testing.T) {
	t.Parallel()

	l, err := NewLooseSet(LooseFields{
		XYZ: [][]float64{{0, 0}}, Intensity: []float64{5}, Ontime: []float64{0}, T0: []float64{1.5},
	})
	require.NoError(t, err)
	s, err := l.Distribute()
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestDistributeFrames(t *testing.T) {
	t.Parallel()

	l, err := NewLooseSet(LooseFields{
		XYZ: [][]float64{{0, 0}}, Intensity: []float64{1}, Ontime: []float64{10}, T0: []float64{0},
	})
	require.NoError(t, err)
	s, err := l.DistributeFrames(2, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, s.FrameIx())

	_, err = l.DistributeFrames(5, 2)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []float64{10}, l.TEnd())
}
