package match

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/banshee-data/decode/internal/emitter"
)

// NNConfig configures NearestNeighbor. DistLat is always required and
// DistAx is required exactly when MatchDims is 3.
type NNConfig struct {
	DistLat   *float64
	DistAx    *float64
	MatchDims int
}

// Validate checks the dimensionality against the thresholds given.
func (c NNConfig) Validate() error {
	if c.MatchDims != 2 && c.MatchDims != 3 {
		return fmt.Errorf("%w: match_dims must be 2 or 3, got %d", ErrConfig, c.MatchDims)
	}
	if c.DistLat == nil {
		return fmt.Errorf("%w: dist_lat is required", ErrConfig)
	}
	if c.MatchDims == 3 && c.DistAx == nil {
		return fmt.Errorf("%w: dist_ax is required for 3D matching", ErrConfig)
	}
	if c.MatchDims == 2 && c.DistAx != nil {
		return fmt.Errorf("%w: dist_ax given for 2D matching", ErrConfig)
	}
	if err := checkPositive("dist_lat", c.DistLat); err != nil {
		return err
	}
	return checkPositive("dist_ax", c.DistAx)
}

// NearestNeighbor assigns every output to its nearest target over the whole
// set, ignoring frames. Several outputs may claim the same target, unlike
// Greedy; a target is a false negative only if nobody claims it.
type NearestNeighbor struct {
	cfg NNConfig
}

// NewNearestNeighbor validates cfg and returns the matcher.
func NewNearestNeighbor(cfg NNConfig) (*NearestNeighbor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &NearestNeighbor{cfg: cfg}, nil
}

// Match queries a kd-tree of target coordinates with every output. An
// output is a true positive when its nearest target lies within DistLat
// laterally and, in 3D, within DistAx axially.
func (m *NearestNeighbor) Match(out, tar *emitter.Set) (*Result, error) {
	if out.Len() == 0 || tar.Len() == 0 {
		return &Result{TP: none(out), FP: out.Clone(), FN: tar.Clone(), TPMatch: none(tar)}, nil
	}

	tarXYZ := tar.XYZ()
	pts := make(indexedPoints, len(tarXYZ))
	for j, v := range tarXYZ {
		pts[j] = indexedPoint{xyz: v, dims: m.cfg.MatchDims, index: j}
	}
	tree := kdtree.New(pts, false)

	claimed := roaring.New()
	var outIx, tarIx []int
	fpMask := make([]bool, out.Len())
	for i, v := range out.XYZ() {
		near, _ := tree.Nearest(indexedPoint{xyz: v, dims: m.cfg.MatchDims, index: -1})
		j := near.(indexedPoint).index
		t := tarXYZ[j]
		lat := math.Hypot(v[0]-t[0], v[1]-t[1])
		ok := lat <= *m.cfg.DistLat
		if m.cfg.MatchDims == 3 {
			ok = ok && math.Abs(v[2]-t[2]) <= *m.cfg.DistAx
		}
		if !ok {
			fpMask[i] = true
			continue
		}
		outIx = append(outIx, i)
		tarIx = append(tarIx, j)
		claimed.Add(uint32(j))
	}

	unclaimed := roaring.Flip(claimed, 0, uint64(tar.Len()))
	fnIx := make([]int, 0, unclaimed.GetCardinality())
	for _, j := range unclaimed.ToArray() {
		fnIx = append(fnIx, int(j))
	}
	if outIx == nil {
		outIx, tarIx = []int{}, []int{}
	}

	res := &Result{
		TP:      out.Subset(outIx),
		FP:      out.SubsetMask(fpMask),
		FN:      tar.Subset(fnIx),
		TPMatch: tar.Subset(tarIx),
	}
	fallback := make([]int64, len(tarIx))
	for k, j := range tarIx {
		fallback[k] = int64(j)
	}
	var err error
	if res.TP, res.TPMatch, err = shareIDs(res.TP, res.TPMatch, fallback); err != nil {
		return nil, err
	}
	return res, nil
}

// indexedPoint is a kd-tree point that remembers its position in the
// target set; the tree reorders its backing slice.
type indexedPoint struct {
	xyz   emitter.Vec3
	dims  int
	index int
}

// Compare implements kdtree.Comparable.
func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	return p.xyz[d] - q.xyz[d]
}

// Dims implements kdtree.Comparable.
func (p indexedPoint) Dims() int { return p.dims }

// Distance returns the squared Euclidean distance over the first Dims
// coordinates.
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	var sum float64
	for d := 0; d < p.dims; d++ {
		diff := p.xyz[d] - q.xyz[d]
		sum += diff * diff
	}
	return sum
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p indexedPoints) Len() int                              { return len(p) }
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot partitions along d around the median of medians, which keeps tree
// construction deterministic.
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	plane := pointPlane{indexedPoints: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfMedians(plane))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer.
type pointPlane struct {
	indexedPoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	return p.indexedPoints[i].xyz[p.Dim] < p.indexedPoints[j].xyz[p.Dim]
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{indexedPoints: p.indexedPoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}
