package postprocess

import (
	"fmt"

	"github.com/banshee-data/decode/internal/emitter"
	"github.com/banshee-data/decode/internal/units"
)

// ReturnFormat selects the shape of a Result.
type ReturnFormat string

const (
	// FormatBatchSet returns one set for the whole batch.
	FormatBatchSet ReturnFormat = "batch-set"
	// FormatFrameSet returns one set per input frame.
	FormatFrameSet ReturnFormat = "frame-set"
	// FormatEmitterList returns one record per emitter.
	FormatEmitterList ReturnFormat = "emitter-list"
)

// Validate rejects unknown formats. The empty format means batch-set.
func (f ReturnFormat) Validate() error {
	switch f {
	case "", FormatBatchSet, FormatFrameSet, FormatEmitterList:
		return nil
	}
	return fmt.Errorf("%w: unknown return format %q, expected %s, %s or %s",
		ErrConfig, string(f), FormatBatchSet, FormatFrameSet, FormatEmitterList)
}

func (f ReturnFormat) orDefault() ReturnFormat {
	if f == "" {
		return FormatBatchSet
	}
	return f
}

// Result holds processor output. Exactly one of Set, Frames or Emitters is
// populated, according to Format.
type Result struct {
	Format   ReturnFormat
	Set      *emitter.Set
	Frames   []*emitter.Set
	Emitters []emitter.Record
}

// Len returns the number of emitters in the result.
func (r *Result) Len() int {
	switch r.Format {
	case FormatFrameSet:
		n := 0
		for _, s := range r.Frames {
			n += s.Len()
		}
		return n
	case FormatEmitterList:
		return len(r.Emitters)
	}
	return r.Set.Len()
}

// Output carries the settings shared by every processor: unit metadata of
// the produced sets, the result shape and the frame index of batch item 0.
type Output struct {
	XYUnit       units.Unit
	PxSize       *units.PxSize
	ReturnFormat ReturnFormat
	FrameOffset  int64
}

func (o Output) validate() error {
	if err := o.ReturnFormat.Validate(); err != nil {
		return err
	}
	if o.XYUnit != units.None && !units.IsValid(o.XYUnit) {
		return fmt.Errorf("%w: %w %q", ErrConfig, units.ErrUnknownUnit, o.XYUnit)
	}
	if o.PxSize != nil && (o.PxSize[0] <= 0 || o.PxSize[1] <= 0) {
		return fmt.Errorf("%w: px size must be positive, got %v", ErrConfig, *o.PxSize)
	}
	return nil
}

func (o Output) options() []emitter.Option {
	return []emitter.Option{emitter.WithMeta(emitter.Meta{XYUnit: o.XYUnit, PxSize: o.PxSize})}
}

// detection is one emitter candidate read from the tensor. Frame is the
// batch index, Row and Col the pixel it came from. X and Y are absolute;
// DX and DY keep the raw offset channels, which neighbour linking compares.
type detection struct {
	Frame    int
	Row, Col int
	P        float64
	Phot     float64
	X, Y, Z  float64
	DX, DY   float64
	Bg       float64
}

// build assembles detections of a batch of n frames into a Result.
func (o Output) build(dets []detection, n int, withBg bool) (*Result, error) {
	f := emitter.Fields{
		XYZ:     make([][]float64, len(dets)),
		Phot:    make([]float64, len(dets)),
		FrameIx: make([]int64, len(dets)),
		Prob:    make([]float64, len(dets)),
	}
	if withBg {
		f.Bg = make([]float64, len(dets))
	}
	for i, d := range dets {
		f.XYZ[i] = []float64{d.X, d.Y, d.Z}
		f.Phot[i] = d.Phot
		f.FrameIx[i] = int64(d.Frame) + o.FrameOffset
		f.Prob[i] = d.P
		if withBg {
			f.Bg[i] = d.Bg
		}
	}
	s, err := emitter.New(f, o.options()...)
	if err != nil {
		return nil, err
	}

	res := &Result{Format: o.ReturnFormat.orDefault()}
	switch res.Format {
	case FormatFrameSet:
		frames, err := s.SplitInFrames(o.FrameOffset, o.FrameOffset+int64(n))
		if err != nil {
			return nil, err
		}
		res.Frames = frames
	case FormatEmitterList:
		res.Emitters = s.Records()
	default:
		res.Set = s
	}
	return res, nil
}

// lookUp gathers every pixel of frames [lo, hi) with probability at least
// rawTh, in frame then raster order.
func lookUp(t *Tensor, g Grid, rawTh float64, lo, hi int) []detection {
	var dets []detection
	for b := lo; b < hi; b++ {
		for i := 0; i < t.Height; i++ {
			for j := 0; j < t.Width; j++ {
				p := float64(t.At(b, ChannelProb, i, j))
				if p < rawTh {
					continue
				}
				dets = append(dets, readPixel(t, g, b, i, j))
			}
		}
	}
	return dets
}

// readPixel reads the features of pixel (i, j) of frame b. X and Y add the
// offset channels to the pixel centre.
func readPixel(t *Tensor, g Grid, b, i, j int) detection {
	cx, cy := g.Center(i, j)
	dx := float64(t.At(b, ChannelX, i, j))
	dy := float64(t.At(b, ChannelY, i, j))
	d := detection{
		Frame: b,
		Row:   i,
		Col:   j,
		P:     float64(t.At(b, ChannelProb, i, j)),
		Phot:  float64(t.At(b, ChannelPhot, i, j)),
		X:     cx + dx,
		Y:     cy + dy,
		Z:     float64(t.At(b, ChannelZ, i, j)),
		DX:    dx,
		DY:    dy,
	}
	if t.HasBg() {
		d.Bg = float64(t.At(b, ChannelBg, i, j))
	}
	return d
}
