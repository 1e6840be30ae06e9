package match

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/decode/internal/emitter"
)

// GreedyConfig selects the distance used by Greedy. Exactly one of DistLat
// (x and y) and DistVol (x, y and z) must be set.
type GreedyConfig struct {
	DistLat *float64
	DistVol *float64
}

// Validate checks that exactly one positive threshold is set.
func (c GreedyConfig) Validate() error {
	if (c.DistLat == nil) == (c.DistVol == nil) {
		return fmt.Errorf("%w: exactly one of dist_lat and dist_vol must be set", ErrConfig)
	}
	if err := checkPositive("dist_lat", c.DistLat); err != nil {
		return err
	}
	return checkPositive("dist_vol", c.DistVol)
}

// Greedy matches frame by frame, repeatedly committing the globally closest
// remaining pair while its distance is below the threshold. Each output and
// each target is used at most once.
type Greedy struct {
	dims   int
	thresh float64
}

// NewGreedy validates cfg and returns the matcher.
func NewGreedy(cfg GreedyConfig) (*Greedy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DistLat != nil {
		return &Greedy{dims: 2, thresh: *cfg.DistLat}, nil
	}
	return &Greedy{dims: 3, thresh: *cfg.DistVol}, nil
}

// Dims returns 2 for lateral and 3 for volumetric matching.
func (g *Greedy) Dims() int { return g.dims }

// Match runs over the frames spanned by tar. Output emitters outside that
// range are ignored, and those in a frame of the range without targets are
// false positives. An empty target turns every output into a false
// positive. Frames are visited in increasing order.
func (g *Greedy) Match(out, tar *emitter.Set) (*Result, error) {
	lo, hi, ok := tar.FrameBounds()
	if !ok {
		return &Result{TP: none(out), FP: out.Clone(), FN: tar.Clone(), TPMatch: none(tar)}, nil
	}

	tarByFrame := groupByFrame(tar.FrameIx(), lo, hi)
	outByFrame := groupByFrame(out.FrameIx(), lo, hi)
	frames := make([]int64, 0, len(tarByFrame)+len(outByFrame))
	for f := range tarByFrame {
		frames = append(frames, f)
	}
	for f := range outByFrame {
		if _, seen := tarByFrame[f]; !seen {
			frames = append(frames, f)
		}
	}
	sort.Slice(frames, func(a, b int) bool { return frames[a] < frames[b] })

	n := len(frames)
	tps, fps, fns, matches := make([]*emitter.Set, n), make([]*emitter.Set, n), make([]*emitter.Set, n), make([]*emitter.Set, n)
	for k, f := range frames {
		tps[k], fps[k], fns[k], matches[k] = g.matchFrame(out.Subset(outByFrame[f]), tar.Subset(tarByFrame[f]))
	}

	res := &Result{}
	var err error
	for _, c := range []struct {
		dst  **emitter.Set
		sets []*emitter.Set
	}{{&res.TP, tps}, {&res.FP, fps}, {&res.FN, fns}, {&res.TPMatch, matches}} {
		if *c.dst, err = emitter.Cat(c.sets, nil, nil); err != nil {
			return nil, err
		}
	}

	fallback := make([]int64, res.TPMatch.Len())
	for i := range fallback {
		fallback[i] = int64(i)
	}
	if res.TP, res.TPMatch, err = shareIDs(res.TP, res.TPMatch, fallback); err != nil {
		return nil, err
	}
	return res, nil
}

// groupByFrame returns the positions of every frame index in [lo, hi],
// keyed by frame. Only frames that occur get an entry.
func groupByFrame(frameIx []int64, lo, hi int64) map[int64][]int {
	groups := make(map[int64][]int)
	for i, f := range frameIx {
		if f >= lo && f <= hi {
			groups[f] = append(groups[f], i)
		}
	}
	return groups
}

func (g *Greedy) coords(s *emitter.Set) [][]float64 {
	xyz := s.XYZ()
	pts := make([][]float64, len(xyz))
	for i := range xyz {
		pts[i] = xyz[i][:g.dims]
	}
	return pts
}

// matchFrame matches the emitters of a single frame. TP lists outputs in the
// order their pairs were committed, that is by increasing distance, and
// TPMatch follows it.
func (g *Greedy) matchFrame(out, tar *emitter.Set) (tp, fp, fn, tpMatch *emitter.Set) {
	switch {
	case out.Len() == 0:
		return none(out), none(out), tar, none(tar)
	case tar.Len() == 0:
		return none(out), out, none(tar), none(tar)
	}

	op, tq := g.coords(out), g.coords(tar)
	dist := mat.NewDense(len(op), len(tq), nil)
	for i, a := range op {
		for j, b := range tq {
			dist.Set(i, j, floats.Distance(a, b, 2))
		}
	}

	outIx, tarIx := []int{}, []int{}
	fpMask := make([]bool, len(op))
	fnMask := make([]bool, len(tq))
	for i := range fpMask {
		fpMask[i] = true
	}
	for j := range fnMask {
		fnMask[j] = true
	}
	for {
		bi, bj, best := -1, -1, math.Inf(1)
		for i := range op {
			for j := range tq {
				if d := dist.At(i, j); d < best {
					bi, bj, best = i, j, d
				}
			}
		}
		if bi < 0 || !(best < g.thresh) {
			break
		}
		outIx = append(outIx, bi)
		tarIx = append(tarIx, bj)
		fpMask[bi], fnMask[bj] = false, false
		for j := range tq {
			dist.Set(bi, j, math.Inf(1))
		}
		for i := range op {
			dist.Set(i, bj, math.Inf(1))
		}
	}
	return out.Subset(outIx), out.SubsetMask(fpMask), tar.SubsetMask(fnMask), tar.Subset(tarIx)
}
