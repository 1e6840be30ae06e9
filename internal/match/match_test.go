package match

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/decode/internal/config"
	"github.com/banshee-data/decode/internal/emitter"
)

func ptr(v float64) *float64 { return &v }

// points builds a set from (x, y, z) rows; frames defaults to all zero.
func points(t *testing.T, xyz [][3]float64, frames ...int64) *emitter.Set {
	t.Helper()
	f := emitter.Fields{
		XYZ:     make([][]float64, len(xyz)),
		Phot:    make([]float64, len(xyz)),
		FrameIx: make([]int64, len(xyz)),
	}
	for i, v := range xyz {
		f.XYZ[i] = []float64{v[0], v[1], v[2]}
		f.Phot[i] = 1000
	}
	if frames != nil {
		require.Len(t, frames, len(xyz))
		copy(f.FrameIx, frames)
	}
	s, err := emitter.New(f)
	require.NoError(t, err)
	return s
}

func counts(r *Result) [3]int {
	return [3]int{r.TP.Len(), r.FP.Len(), r.FN.Len()}
}

func greedy(t *testing.T, cfg GreedyConfig) *Greedy {
	t.Helper()
	g, err := NewGreedy(cfg)
	require.NoError(t, err)
	return g
}

func TestGreedyDistinctPoints(t *testing.T) {
	out := points(t, [][3]float64{{0, 0, 0}, {0, 2, 0}})
	tar := points(t, [][3]float64{{0, 0, 0}, {0, 2, 0}})

	res, err := greedy(t, GreedyConfig{DistLat: ptr(0.5)}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 0, 0}, counts(res))
	assert.Equal(t, []int64{0, 1}, res.TPMatch.ID())
	assert.Equal(t, res.TPMatch.ID(), res.TP.ID())
	assert.Equal(t, tar.XYZ(), res.TPMatch.XYZ())
}

func TestGreedyPicksGlobalMinimum(t *testing.T) {
	out := points(t, [][3]float64{{0, 0, 0}, {0.25, 0, 0}})
	tar := points(t, [][3]float64{{0.2, 0, 0}})

	res, err := greedy(t, GreedyConfig{DistLat: ptr(0.5)}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 1, 0}, counts(res))
	assert.Equal(t, []emitter.Vec3{{0.25, 0, 0}}, res.TP.XYZ())
	assert.Equal(t, []emitter.Vec3{{0, 0, 0}}, res.FP.XYZ())
}

func TestGreedyTieBreaksRowMajor(t *testing.T) {
	out := points(t, [][3]float64{{0, 0, 0}})
	tar := points(t, [][3]float64{{0.1, 0, 0}, {-0.1, 0, 0}})

	res, err := greedy(t, GreedyConfig{DistLat: ptr(0.5)}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, []emitter.Vec3{{0.1, 0, 0}}, res.TPMatch.XYZ())
	assert.Equal(t, []emitter.Vec3{{-0.1, 0, 0}}, res.FN.XYZ())
}

func TestGreedyThresholdIsStrict(t *testing.T) {
	out := points(t, [][3]float64{{0, 0, 0}})
	tar := points(t, [][3]float64{{0, 0.5, 0}})

	res, err := greedy(t, GreedyConfig{DistLat: ptr(0.5)}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 1, 1}, counts(res))
}

func TestGreedyIsPerFrame(t *testing.T) {
	out := points(t, [][3]float64{{0, 0, 0}, {1, 1, 0}, {3, 3, 0}}, 1, 0, 5)
	tar := points(t, [][3]float64{{0, 0, 0}, {1, 1, 0}}, 0, 1)

	res, err := greedy(t, GreedyConfig{DistLat: ptr(0.5)}).Match(out, tar)
	require.NoError(t, err)
	// Frame 5 lies outside the target range and is ignored.
	assert.Equal(t, [3]int{0, 2, 2}, counts(res))
	assert.Equal(t, []int64{0, 1}, res.FP.FrameIx())
	assert.Equal(t, []int64{0, 1}, res.FN.FrameIx())
}

func TestGreedyConcatenatesFrames(t *testing.T) {
	out := points(t, [][3]float64{{5, 5, 0}, {0, 0, 0}, {9, 9, 0}}, 2, 0, 2)
	tar := points(t, [][3]float64{{9.1, 9, 0}, {0, 0.1, 0}, {5, 5.1, 0}}, 2, 0, 2)

	res, err := greedy(t, GreedyConfig{DistLat: ptr(0.5)}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{3, 0, 0}, counts(res))
	assert.Equal(t, []int64{0, 2, 2}, res.TP.FrameIx())
	assert.Equal(t, []emitter.Vec3{{0, 0.1, 0}, {5, 5.1, 0}, {9.1, 9, 0}}, res.TPMatch.XYZ())
	assert.Equal(t, []int64{0, 1, 2}, res.TP.ID())
}

func TestGreedyCommitOrder(t *testing.T) {
	out := points(t, [][3]float64{{0, 0, 0}, {5, 5, 0}})
	tar := points(t, [][3]float64{{0.3, 0, 0}, {5, 5.1, 0}})

	res, err := greedy(t, GreedyConfig{DistLat: ptr(0.5)}).Match(out, tar)
	require.NoError(t, err)
	// The closer pair is committed first.
	assert.Equal(t, []emitter.Vec3{{5, 5, 0}, {0, 0, 0}}, res.TP.XYZ())
	assert.Equal(t, []emitter.Vec3{{5, 5.1, 0}, {0.3, 0, 0}}, res.TPMatch.XYZ())
	assert.Equal(t, []int64{0, 1}, res.TP.ID())
}

func TestGreedySparseFrames(t *testing.T) {
	out := points(t, [][3]float64{{0, 0, 0}, {1, 1, 0}, {2, 2, 0}, {3, 3, 0}}, 1e12, 0, 5e11, 2e12)
	tar := points(t, [][3]float64{{0, 0, 0}, {1, 1, 0}}, 1e12, 0)

	res, err := greedy(t, GreedyConfig{DistLat: ptr(0.5)}).Match(out, tar)
	require.NoError(t, err)
	// Frame 5e11 has no targets; frame 2e12 lies past the target range.
	assert.Equal(t, [3]int{2, 1, 0}, counts(res))
	assert.Equal(t, []int64{0, 1e12}, res.TP.FrameIx())
	assert.Equal(t, []int64{5e11}, res.FP.FrameIx())
	assert.Equal(t, []emitter.Vec3{{2, 2, 0}}, res.FP.XYZ())
}

func TestGreedyKeepsTargetIDs(t *testing.T) {
	out := points(t, [][3]float64{{0, 0, 0}, {4, 4, 0}})
	tar, err := points(t, [][3]float64{{4, 4, 0}, {0, 0, 0}}).WithID([]int64{7, 9})
	require.NoError(t, err)

	res, err := greedy(t, GreedyConfig{DistLat: ptr(0.5)}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 7}, res.TP.ID())
	assert.Equal(t, []int64{9, 7}, res.TPMatch.ID())
}

func TestGreedyEmpty(t *testing.T) {
	some := points(t, [][3]float64{{0, 0, 0}, {1, 1, 0}})
	empty := points(t, nil)
	g := greedy(t, GreedyConfig{DistLat: ptr(0.5)})

	res, err := g.Match(empty, some)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 0, 2}, counts(res))
	assert.Equal(t, 0, res.TPMatch.Len())

	res, err = g.Match(some, empty)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 2, 0}, counts(res))

	res, err = g.Match(empty, empty)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 0, 0}, counts(res))
}

func TestGreedyVolumetric(t *testing.T) {
	out := points(t, [][3]float64{{0, 0, 0}})
	tar := points(t, [][3]float64{{0, 0, 40}})

	res, err := greedy(t, GreedyConfig{DistLat: ptr(30)}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 0, 0}, counts(res), "lateral ignores z")

	g := greedy(t, GreedyConfig{DistVol: ptr(30)})
	assert.Equal(t, 3, g.Dims())
	res, err = g.Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 1, 1}, counts(res))
}

func TestGreedyConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  GreedyConfig
	}{
		{"neither", GreedyConfig{}},
		{"both", GreedyConfig{DistLat: ptr(1), DistVol: ptr(1)}},
		{"zero", GreedyConfig{DistLat: ptr(0)}},
		{"negative", GreedyConfig{DistVol: ptr(-1)}},
		{"nan", GreedyConfig{DistLat: ptr(math.NaN())}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGreedy(tt.cfg)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func nearest(t *testing.T, cfg NNConfig) *NearestNeighbor {
	t.Helper()
	m, err := NewNearestNeighbor(cfg)
	require.NoError(t, err)
	return m
}

func TestNearestNeighborManyToOne(t *testing.T) {
	out := points(t, [][3]float64{{0, 0, 0}, {0.1, 0, 0}})
	tar := points(t, [][3]float64{{0, 0, 0}, {5, 5, 0}})

	res, err := nearest(t, NNConfig{DistLat: ptr(0.5), MatchDims: 2}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 0, 1}, counts(res))
	assert.Equal(t, []int64{0, 0}, res.TPMatch.ID())
	assert.Equal(t, []int64{0, 0}, res.TP.ID())
	assert.Equal(t, []emitter.Vec3{{5, 5, 0}}, res.FN.XYZ())

	// Greedy assigns each target at most once on the same input.
	res, err = greedy(t, GreedyConfig{DistLat: ptr(0.5)}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 1, 1}, counts(res))
}

func TestNearestNeighborIgnoresFrames(t *testing.T) {
	out := points(t, [][3]float64{{1, 1, 0}}, 3)
	tar := points(t, [][3]float64{{1, 1, 0}}, 0)

	res, err := nearest(t, NNConfig{DistLat: ptr(0.5), MatchDims: 2}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 0, 0}, counts(res))
}

func TestNearestNeighborThresholds(t *testing.T) {
	out := points(t, [][3]float64{{0, 0.5, 0}, {10, 0, 0}, {20, 0, 0}})
	tar := points(t, [][3]float64{{0, 0, 0}, {10, 0, 60}, {20, 0, 40}})

	res, err := nearest(t, NNConfig{DistLat: ptr(0.5), MatchDims: 2}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{3, 0, 0}, counts(res), "lateral threshold is inclusive")

	res, err = nearest(t, NNConfig{DistLat: ptr(0.5), DistAx: ptr(50), MatchDims: 3}).Match(out, tar)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 1, 1}, counts(res))
	assert.Equal(t, []emitter.Vec3{{10, 0, 0}}, res.FP.XYZ())
	assert.Equal(t, []emitter.Vec3{{10, 0, 60}}, res.FN.XYZ())
}

func TestNearestNeighborFindsNearest(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	random := func(n int) [][3]float64 {
		v := make([][3]float64, n)
		for i := range v {
			v[i] = [3]float64{100 * r.Float64(), 100 * r.Float64(), 0}
		}
		return v
	}
	outXYZ, tarXYZ := random(200), random(150)
	out, tar := points(t, outXYZ), points(t, tarXYZ)

	res, err := nearest(t, NNConfig{DistLat: ptr(1000), MatchDims: 2}).Match(out, tar)
	require.NoError(t, err)
	require.Equal(t, out.Len(), res.TP.Len())

	got := res.TPMatch.XYZ()
	for i, o := range outXYZ {
		best := math.Inf(1)
		for _, q := range tarXYZ {
			best = math.Min(best, math.Hypot(o[0]-q[0], o[1]-q[1]))
		}
		assert.InDelta(t, best, math.Hypot(o[0]-got[i][0], o[1]-got[i][1]), 1e-12, "output %d", i)
	}
}

func TestNearestNeighborEmpty(t *testing.T) {
	some := points(t, [][3]float64{{0, 0, 0}})
	empty := points(t, nil)
	m := nearest(t, NNConfig{DistLat: ptr(0.5), MatchDims: 2})

	res, err := m.Match(empty, some)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 0, 1}, counts(res))

	res, err = m.Match(some, empty)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 1, 0}, counts(res))
}

func TestNearestNeighborConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  NNConfig
	}{
		{"no dims", NNConfig{DistLat: ptr(1)}},
		{"no lateral", NNConfig{MatchDims: 2}},
		{"3D without axial", NNConfig{DistLat: ptr(1), MatchDims: 3}},
		{"2D with axial", NNConfig{DistLat: ptr(1), DistAx: ptr(1), MatchDims: 2}},
		{"negative axial", NNConfig{DistLat: ptr(1), DistAx: ptr(-1), MatchDims: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNearestNeighbor(tt.cfg)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestFromTuning(t *testing.T) {
	cfg := config.MustLoadDefaultConfig()
	m, err := FromTuning(cfg)
	require.NoError(t, err)
	g, ok := m.(*Greedy)
	require.True(t, ok)
	assert.Equal(t, 2, g.Dims())

	vol := 300.0
	cfg.MatchDistVol = &vol
	g, err = GreedyFromTuning(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Dims())

	method, dims := config.MatchMethodNearestNeighbor, 3
	cfg.MatchMethod = &method
	cfg.MatchDims = &dims
	m, err = FromTuning(cfg)
	require.NoError(t, err)
	nn, ok := m.(*NearestNeighbor)
	require.True(t, ok)
	assert.Equal(t, 500.0, *nn.cfg.DistAx)

	bad := "hungarian"
	cfg.MatchMethod = &bad
	_, err = FromTuning(cfg)
	assert.ErrorIs(t, err, ErrConfig)
}
