package postprocess

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/decode/internal/monitoring"
)

// ConsistencyConfig configures the merging processor.
type ConsistencyConfig struct {
	// RawTh is the probability at or above which a pixel is active.
	RawTh float64
	// EmTh is the merged probability below which a cluster is dropped.
	EmTh float64
	// LatTh bounds the distance between the x/y offset channels of linked
	// neighbours.
	LatTh float64
	// AxTh bounds the z channel difference of linked neighbours in 3D.
	AxTh float64
	// MatchDims is 2 (lateral only) or 3 (lateral and axial).
	MatchDims int
	// SkipTh is the batch maximum probability below which Forward returns
	// early. It must not exceed RawTh.
	SkipTh float64
	// NumWorkers is the number of goroutines; 0 runs inline.
	NumWorkers int
	// Grid maps pixels to coordinates; nil uses DefaultGrid.
	Grid *Grid
	Output
}

// Validate checks the configuration.
func (c ConsistencyConfig) Validate() error {
	for _, th := range []struct {
		name string
		v    float64
	}{{"raw_th", c.RawTh}, {"em_th", c.EmTh}, {"skip_th", c.SkipTh}} {
		if th.v < 0 || th.v > 1 || math.IsNaN(th.v) {
			return fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrConfig, th.name, th.v)
		}
	}
	if c.SkipTh > c.RawTh {
		return fmt.Errorf("%w: skip_th (%v) must not exceed raw_th (%v)", ErrConfig, c.SkipTh, c.RawTh)
	}
	if !(c.LatTh > 0) {
		return fmt.Errorf("%w: lat_th must be positive, got %v", ErrConfig, c.LatTh)
	}
	switch c.MatchDims {
	case 2:
	case 3:
		if !(c.AxTh > 0) {
			return fmt.Errorf("%w: ax_th must be positive in 3D, got %v", ErrConfig, c.AxTh)
		}
	default:
		return fmt.Errorf("%w: match_dims must be 2 or 3, got %d", ErrConfig, c.MatchDims)
	}
	if c.NumWorkers < 0 {
		return fmt.Errorf("%w: num_workers must be non-negative, got %d", ErrConfig, c.NumWorkers)
	}
	if c.Grid != nil {
		if err := c.Grid.validate(); err != nil {
			return err
		}
	}
	return c.Output.validate()
}

// Consistency merges active pixels that belong to the same emitter.
//
// Active pixels of a frame are linked when they are 8-neighbours and their
// x/y offset channels differ by less than LatTh (and z by less than AxTh in
// 3D). Each connected component becomes one emitter whose probability is the
// clamped sum of its members and whose other features are
// probability-weighted means. Components below EmTh are dropped.
//
// Components never cross frames, so frames are distributed over workers in
// contiguous blocks and the output does not depend on NumWorkers.
type Consistency struct {
	cfg ConsistencyConfig
}

// NewConsistency validates cfg and returns the processor.
func NewConsistency(cfg ConsistencyConfig) (*Consistency, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Consistency{cfg: cfg}, nil
}

// Config returns the processor configuration.
func (p *Consistency) Config() ConsistencyConfig { return p.cfg }

// SkipIf reports whether the batch maximum probability is below SkipTh.
func (p *Consistency) SkipIf(t *Tensor) bool {
	return t.MaxProb() < p.cfg.SkipTh
}

// Forward merges the detections of every frame of t.
func (p *Consistency) Forward(t *Tensor) (*Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	g, err := resolveGrid(p.cfg.Grid, t)
	if err != nil {
		return nil, err
	}
	if p.SkipIf(t) {
		monitoring.Logf("postprocess: skipping batch of %d frames, max probability %.3f below skip_th %.3f",
			t.Batch, t.MaxProb(), p.cfg.SkipTh)
		return p.cfg.Output.build(nil, t.Batch, t.HasBg())
	}

	blocks := partitionFrames(t.Batch, p.cfg.NumWorkers)
	merged := make([][]detection, len(blocks))
	if p.cfg.NumWorkers == 0 {
		for k, b := range blocks {
			merged[k] = p.mergeFrames(t, g, b[0], b[1])
		}
	} else {
		var eg errgroup.Group
		eg.SetLimit(p.cfg.NumWorkers)
		for k, b := range blocks {
			eg.Go(func() error {
				merged[k] = p.mergeFrames(t, g, b[0], b[1])
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	var dets []detection
	for _, m := range merged {
		dets = append(dets, m...)
	}
	return p.cfg.Output.build(dets, t.Batch, t.HasBg())
}

// partitionFrames splits [0, n) into at most workers contiguous blocks of
// near-equal size. Zero workers yields a single block.
func partitionFrames(n, workers int) [][2]int {
	if n == 0 {
		return nil
	}
	workers = min(max(workers, 1), n)
	size := (n + workers - 1) / workers
	var blocks [][2]int
	for lo := 0; lo < n; lo += size {
		blocks = append(blocks, [2]int{lo, min(lo+size, n)})
	}
	return blocks
}

func (p *Consistency) mergeFrames(t *Tensor, g Grid, lo, hi int) []detection {
	var out []detection
	for f := lo; f < hi; f++ {
		dets := lookUp(t, g, p.cfg.RawTh, f, f+1)
		if len(dets) == 0 {
			continue
		}
		edges := adjacentEdges(dets, t.Height, t.Width, p.near)
		labels := Cluster(len(dets), edges)
		for _, d := range mergeClusters(dets, labels) {
			if d.P >= p.cfg.EmTh {
				out = append(out, d)
			}
		}
	}
	return out
}

// near compares the predicted offset and z channels of two neighbouring
// pixels. Both pixels predicting the same emitter point at the same
// sub-pixel position, so their absolute coordinates differ by the pixel
// pitch while their features agree.
func (p *Consistency) near(a, b detection) bool {
	if math.Hypot(a.DX-b.DX, a.DY-b.DY) >= p.cfg.LatTh {
		return false
	}
	if p.cfg.MatchDims == 3 && math.Abs(a.Z-b.Z) >= p.cfg.AxTh {
		return false
	}
	return true
}

// mergeClusters reduces each labelled cluster to one detection, in label
// order. The representative keeps the frame and pixel of the member with
// the highest probability.
func mergeClusters(dets []detection, labels []int) []detection {
	n := 0
	for _, l := range labels {
		n = max(n, l+1)
	}
	members := make([][]int, n)
	for k, l := range labels {
		members[l] = append(members[l], k)
	}

	out := make([]detection, n)
	for l, idx := range members {
		var sumP float64
		best := idx[0]
		for _, k := range idx {
			sumP += dets[k].P
			if dets[k].P > dets[best].P {
				best = k
			}
		}
		weight := func(k int) float64 {
			if sumP == 0 {
				return 1 / float64(len(idx))
			}
			return dets[k].P / sumP
		}
		m := detection{
			Frame: dets[best].Frame,
			Row:   dets[best].Row,
			Col:   dets[best].Col,
			P:     math.Min(1, sumP),
		}
		for _, k := range idx {
			w := weight(k)
			m.Phot += w * dets[k].Phot
			m.X += w * dets[k].X
			m.Y += w * dets[k].Y
			m.Z += w * dets[k].Z
			m.Bg += w * dets[k].Bg
		}
		out[l] = m
	}
	return out
}
