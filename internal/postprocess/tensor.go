// Package postprocess turns dense per-pixel network output into sparse
// emitter sets.
package postprocess

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrConfig reports an invalid processor configuration.
	ErrConfig = errors.New("invalid post-processing configuration")
	// ErrInput reports a tensor that violates the channel contract.
	ErrInput = errors.New("invalid post-processing input")
)

// Channel layout of the network output.
const (
	ChannelProb = 0
	ChannelPhot = 1
	ChannelX    = 2
	ChannelY    = 3
	ChannelZ    = 4
	ChannelBg   = 5
)

// Tensor is a dense row-major (batch, channels, height, width) array.
type Tensor struct {
	Batch    int
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(batch, channels, height, width int) *Tensor {
	return &Tensor{
		Batch:    batch,
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float32, batch*channels*height*width),
	}
}

func (t *Tensor) index(b, c, i, j int) int {
	return ((b*t.Channels+c)*t.Height+i)*t.Width + j
}

// At returns the value at batch b, channel c, row i, column j.
func (t *Tensor) At(b, c, i, j int) float32 { return t.Data[t.index(b, c, i, j)] }

// Set stores v at batch b, channel c, row i, column j.
func (t *Tensor) Set(b, c, i, j int, v float32) { t.Data[t.index(b, c, i, j)] = v }

// HasBg reports whether the tensor carries a background channel.
func (t *Tensor) HasBg() bool { return t.Channels > ChannelBg }

// Validate checks the shape against the channel contract: probability,
// photons, x and y offsets, z and an optional background.
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil tensor", ErrInput)
	}
	if t.Batch < 0 || t.Height < 0 || t.Width < 0 {
		return fmt.Errorf("%w: negative shape (%d, %d, %d, %d)", ErrInput, t.Batch, t.Channels, t.Height, t.Width)
	}
	if t.Channels != 5 && t.Channels != 6 {
		return fmt.Errorf("%w: expected 5 or 6 channels, got %d", ErrInput, t.Channels)
	}
	if want := t.Batch * t.Channels * t.Height * t.Width; len(t.Data) != want {
		return fmt.Errorf("%w: data length %d does not match shape (%d, %d, %d, %d)",
			ErrInput, len(t.Data), t.Batch, t.Channels, t.Height, t.Width)
	}
	return nil
}

// MaxProb returns the largest detection probability in the batch, or -Inf
// for a tensor without pixels.
func (t *Tensor) MaxProb() float64 {
	best := math.Inf(-1)
	plane := t.Height * t.Width
	for b := 0; b < t.Batch; b++ {
		start := t.index(b, ChannelProb, 0, 0)
		for _, p := range t.Data[start : start+plane] {
			if float64(p) > best {
				best = float64(p)
			}
		}
	}
	return best
}
