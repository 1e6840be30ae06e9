package emitter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterBySigma(t *testing.T) {
	t.Parallel()

	s, err := Factory(1000, Fields{})
	require.NoError(t, err)

	for _, frac := range []float64{0, 0.1, 0.333, 0.5, 0.999, 1} {
		out, err := s.FilterBySigma(frac)
		require.NoError(t, err)
		assert.Equal(t, int(math.Round(frac*1000)), out.Len(), "fraction %v", frac)
	}

	all, err := s.FilterBySigma(1)
	require.NoError(t, err)
	assert.True(t, s.Equal(all))
}

func TestFilterBySigmaKeepsLowest(t *testing.T) {
	t.Parallel()

	s, err := Factory(200, Fields{})
	require.NoError(t, err)
	out, err := s.FilterBySigma(0.3)
	require.NoError(t, err)

	score := weightedSigmaTotal(s.XYZSig(), s.Dim() == 3)
	kept := map[int64]bool{}
	for _, id := range out.ID() {
		kept[id] = true
	}
	maxKept, minDropped := math.Inf(-1), math.Inf(1)
	for i, id := range s.ID() {
		if kept[id] {
			maxKept = math.Max(maxKept, score[i])
		} else {
			minDropped = math.Min(minDropped, score[i])
		}
	}
	assert.LessOrEqual(t, maxKept, minDropped)

	// original order is preserved
	ids := out.ID()
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}

func TestFilterBySigmaErrors(t *testing.T) {
	t.Parallel()

	s, err := Factory(10, Fields{})
	require.NoError(t, err)
	_, err = s.FilterBySigma(1.5)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.FilterBySigma(-0.1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = threeEmitters(t).FilterBySigma(0.5)
	assert.ErrorIs(t, err, ErrFieldAbsent)
}

func TestHistDetection(t *testing.T) {
	t.Parallel()

	s, err := Factory(10000, Fields{})
	require.NoError(t, err)
	before := s.Clone()

	out := s.HistDetection(20)
	assert.Len(t, out, 4)
	for _, key := range []string{"prob", "sigma_x", "sigma_y", "sigma_z"} {
		sum, ok := out[key]
		require.True(t, ok, key)
		assert.Equal(t, 10000, sum.Count)
		assert.Len(t, sum.Edges, 21)
		assert.Len(t, sum.Counts, 20)
		total := 0.0
		for _, c := range sum.Counts {
			total += c
		}
		assert.Equal(t, 10000.0, total)
		assert.InDelta(t, 0.5, sum.Mean, 0.05)
	}
	assert.True(t, s.Equal(before))
}

func TestHistDetectionAbsentAndConstant(t *testing.T) {
	t.Parallel()

	out := threeEmitters(t).HistDetection(0)
	assert.Equal(t, 0, out["prob"].Count)
	assert.True(t, math.IsNaN(out["sigma_x"].Mean))

	s, err := threeEmitters(t).WithProb([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	p := s.HistDetection(4)["prob"]
	assert.Equal(t, 3, p.Count)
	assert.Equal(t, 3.0, p.Counts[0])
}
