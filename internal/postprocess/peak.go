package postprocess

import (
	"fmt"
	"math"
	"sort"
)

// PeakFinderConfig configures a PeakFinder processor.
type PeakFinderConfig struct {
	// Threshold is the probability a peak must exceed.
	Threshold float64
	// MinDistance is the Chebyshev pixel radius a peak must dominate. Two
	// peaks of a frame are always more than MinDistance pixels apart.
	MinDistance int
	// Grid maps pixels to coordinates; nil uses DefaultGrid.
	Grid *Grid
	Output
}

// Validate checks the configuration.
func (c PeakFinderConfig) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 || math.IsNaN(c.Threshold) {
		return fmt.Errorf("%w: threshold must be in [0, 1], got %v", ErrConfig, c.Threshold)
	}
	if c.MinDistance < 1 {
		return fmt.Errorf("%w: min_distance must be at least 1, got %d", ErrConfig, c.MinDistance)
	}
	if c.Grid != nil {
		if err := c.Grid.validate(); err != nil {
			return err
		}
	}
	return c.Output.validate()
}

// PeakFinder keeps the local maxima of the probability channel.
//
// A pixel is a candidate when its probability exceeds Threshold and no
// pixel within MinDistance is larger. Candidates are then accepted from the
// most to the least probable, dropping any that lies within MinDistance of
// an accepted peak; equal probabilities are taken in raster order. Each
// peak is emitted with the features of its pixel.
type PeakFinder struct {
	cfg PeakFinderConfig
}

// NewPeakFinder validates cfg and returns the processor.
func NewPeakFinder(cfg PeakFinderConfig) (*PeakFinder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PeakFinder{cfg: cfg}, nil
}

// SkipIf reports whether no pixel exceeds Threshold.
func (p *PeakFinder) SkipIf(t *Tensor) bool {
	return !(t.MaxProb() > p.cfg.Threshold)
}

// Forward emits the peaks of every frame of t, in frame then raster order.
func (p *PeakFinder) Forward(t *Tensor) (*Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	g, err := resolveGrid(p.cfg.Grid, t)
	if err != nil {
		return nil, err
	}
	var dets []detection
	for b := 0; b < t.Batch; b++ {
		for _, px := range p.peaks(t, b) {
			dets = append(dets, readPixel(t, g, b, px[0], px[1]))
		}
	}
	return p.cfg.Output.build(dets, t.Batch, t.HasBg())
}

// peaks returns the (row, col) of the accepted peaks of frame b.
func (p *PeakFinder) peaks(t *Tensor, b int) [][2]int {
	r := p.cfg.MinDistance
	prob := func(i, j int) float64 { return float64(t.At(b, ChannelProb, i, j)) }

	var candidates [][2]int
	for i := 0; i < t.Height; i++ {
		for j := 0; j < t.Width; j++ {
			v := prob(i, j)
			if !(v > p.cfg.Threshold) {
				continue
			}
			if windowMax(prob, i, j, r, t.Height, t.Width) > v {
				continue
			}
			candidates = append(candidates, [2]int{i, j})
		}
	}
	sort.SliceStable(candidates, func(a, c int) bool {
		return prob(candidates[a][0], candidates[a][1]) > prob(candidates[c][0], candidates[c][1])
	})

	var accepted [][2]int
	for _, c := range candidates {
		ok := true
		for _, a := range accepted {
			if max(abs(a[0]-c[0]), abs(a[1]-c[1])) <= r {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c)
		}
	}
	sort.Slice(accepted, func(a, c int) bool {
		if accepted[a][0] != accepted[c][0] {
			return accepted[a][0] < accepted[c][0]
		}
		return accepted[a][1] < accepted[c][1]
	})
	return accepted
}

// windowMax returns the largest value within Chebyshev radius r of (i, j),
// clipped to the frame.
func windowMax(prob func(i, j int) float64, i, j, r, height, width int) float64 {
	best := math.Inf(-1)
	for u := max(i-r, 0); u <= min(i+r, height-1); u++ {
		for v := max(j-r, 0); v <= min(j+r, width-1); v++ {
			best = math.Max(best, prob(u, v))
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
