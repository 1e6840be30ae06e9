package postprocess

import (
	"fmt"
	"math"
)

// CoordScanConfig configures a CoordScan processor.
type CoordScanConfig struct {
	// RawTh is the probability at or above which a pixel takes part.
	RawTh float64
	// Eps is the neighbourhood radius in output coordinates.
	Eps float64
	// PhotTh is the photon count a neighbourhood (the point included) must
	// reach for its centre to be a core point.
	PhotTh float64
	// ClusterDims is 2 (x, y) or 3 (x, y, z).
	ClusterDims int
	// Grid maps pixels to coordinates; nil uses DefaultGrid.
	Grid *Grid
	Output
}

// Validate checks the configuration.
func (c CoordScanConfig) Validate() error {
	if c.RawTh < 0 || c.RawTh > 1 || math.IsNaN(c.RawTh) {
		return fmt.Errorf("%w: raw_th must be in [0, 1], got %v", ErrConfig, c.RawTh)
	}
	if !(c.Eps > 0) {
		return fmt.Errorf("%w: eps must be positive, got %v", ErrConfig, c.Eps)
	}
	if !(c.PhotTh >= 0) {
		return fmt.Errorf("%w: phot_th must be non-negative, got %v", ErrConfig, c.PhotTh)
	}
	if c.ClusterDims != 2 && c.ClusterDims != 3 {
		return fmt.Errorf("%w: cluster_dims must be 2 or 3, got %d", ErrConfig, c.ClusterDims)
	}
	if c.Grid != nil {
		if err := c.Grid.validate(); err != nil {
			return err
		}
	}
	return c.Output.validate()
}

// CoordScan clusters the localisations of active pixels with a
// photon-weighted DBSCAN.
//
// Each frame is clustered on its own. Points closer than Eps are
// neighbours, and a point whose neighbourhood gathers PhotTh photons is a
// core point. Noise is dropped. A cluster becomes one emitter at the
// photon-weighted mean position, carrying the summed photons and the
// clamped summed probability of its members.
type CoordScan struct {
	cfg CoordScanConfig
}

// NewCoordScan validates cfg and returns the processor.
func NewCoordScan(cfg CoordScanConfig) (*CoordScan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CoordScan{cfg: cfg}, nil
}

// SkipIf reports whether no pixel reaches RawTh.
func (p *CoordScan) SkipIf(t *Tensor) bool {
	return t.MaxProb() < p.cfg.RawTh
}

// Forward clusters every frame of t. Clusters of a frame are emitted in the
// order DBSCAN discovers them, which follows the raster order of their
// first core point.
func (p *CoordScan) Forward(t *Tensor) (*Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	g, err := resolveGrid(p.cfg.Grid, t)
	if err != nil {
		return nil, err
	}
	var out []detection
	for b := 0; b < t.Batch; b++ {
		dets := lookUp(t, g, p.cfg.RawTh, b, b+1)
		if len(dets) == 0 {
			continue
		}
		labels, n := p.scan(dets)
		out = append(out, photonClusters(dets, labels, n)...)
	}
	return p.cfg.Output.build(out, t.Batch, t.HasBg())
}

func (p *CoordScan) coords(d detection) []float64 {
	if p.cfg.ClusterDims == 3 {
		return []float64{d.X, d.Y, d.Z}
	}
	return []float64{d.X, d.Y}
}

// scan labels dets with cluster ids 0..n-1, or -1 for noise.
func (p *CoordScan) scan(dets []detection) (labels []int, n int) {
	const unvisited, noise = -2, -1

	points := make([][]float64, len(dets))
	for k, d := range dets {
		points[k] = p.coords(d)
	}
	index := newCellIndex(points, p.cfg.Eps)

	labels = make([]int, len(dets))
	for k := range labels {
		labels[k] = unvisited
	}
	isCore := func(neighbors []int) bool {
		var w float64
		for _, k := range neighbors {
			w += dets[k].Phot
		}
		return w >= p.cfg.PhotTh
	}

	for k := range dets {
		if labels[k] != unvisited {
			continue
		}
		neighbors := index.regionQuery(k)
		if !isCore(neighbors) {
			labels[k] = noise
			continue
		}

		id := n
		n++
		labels[k] = id
		for q := 0; q < len(neighbors); q++ {
			m := neighbors[q]
			if labels[m] == noise {
				labels[m] = id
			}
			if labels[m] != unvisited {
				continue
			}
			labels[m] = id
			if next := index.regionQuery(m); isCore(next) {
				neighbors = append(neighbors, next...)
			}
		}
	}
	return labels, n
}

// photonClusters reduces each of the n labelled clusters to one detection.
// The representative keeps the frame and pixel of its brightest member.
func photonClusters(dets []detection, labels []int, n int) []detection {
	members := make([][]int, n)
	for k, l := range labels {
		if l >= 0 {
			members[l] = append(members[l], k)
		}
	}

	out := make([]detection, 0, n)
	for _, idx := range members {
		var sumPhot, sumP float64
		best := idx[0]
		for _, k := range idx {
			sumPhot += dets[k].Phot
			sumP += dets[k].P
			if dets[k].Phot > dets[best].Phot {
				best = k
			}
		}
		c := detection{
			Frame: dets[best].Frame,
			Row:   dets[best].Row,
			Col:   dets[best].Col,
			P:     math.Min(1, sumP),
			Phot:  sumPhot,
		}
		for _, k := range idx {
			w := 1 / float64(len(idx))
			if sumPhot != 0 {
				w = dets[k].Phot / sumPhot
			}
			c.X += w * dets[k].X
			c.Y += w * dets[k].Y
			c.Z += w * dets[k].Z
			c.Bg += w * dets[k].Bg
		}
		out = append(out, c)
	}
	return out
}

// cellIndex buckets points into square cells of side eps over x and y, so a
// region query only visits the 3x3 block of cells around the query point.
type cellIndex struct {
	points [][]float64
	eps    float64
	cells  map[[2]int64][]int
}

func newCellIndex(points [][]float64, eps float64) *cellIndex {
	ci := &cellIndex{points: points, eps: eps, cells: make(map[[2]int64][]int)}
	for k, pt := range points {
		key := ci.cell(pt)
		ci.cells[key] = append(ci.cells[key], k)
	}
	return ci
}

func (ci *cellIndex) cell(pt []float64) [2]int64 {
	return [2]int64{int64(math.Floor(pt[0] / ci.eps)), int64(math.Floor(pt[1] / ci.eps))}
}

// regionQuery returns the indices of all points within eps of point k, k
// included, in ascending order of cell then insertion.
func (ci *cellIndex) regionQuery(k int) []int {
	p := ci.points[k]
	base := ci.cell(p)
	eps2 := ci.eps * ci.eps

	var neighbors []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, m := range ci.cells[[2]int64{base[0] + dx, base[1] + dy}] {
				var d2 float64
				for d := range p {
					diff := ci.points[m][d] - p[d]
					d2 += diff * diff
				}
				if d2 <= eps2 {
					neighbors = append(neighbors, m)
				}
			}
		}
	}
	return neighbors
}
