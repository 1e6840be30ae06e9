package postprocess

import "fmt"

// Processor converts a network output tensor into emitters.
type Processor interface {
	// Forward runs the full pipeline on t.
	Forward(t *Tensor) (*Result, error)
	// SkipIf reports whether Forward would produce no emitters for t
	// without running it.
	SkipIf(t *Tensor) bool
}

// NoOp returns an empty result for any input.
type NoOp struct {
	Output Output
}

// NewNoOp returns a NoOp processor after validating out.
func NewNoOp(out Output) (*NoOp, error) {
	if err := out.validate(); err != nil {
		return nil, err
	}
	return &NoOp{Output: out}, nil
}

// Forward returns an empty result in the configured format.
func (p *NoOp) Forward(t *Tensor) (*Result, error) {
	n := 0
	if t != nil {
		n = t.Batch
	}
	return p.Output.build(nil, n, false)
}

// SkipIf always reports true.
func (p *NoOp) SkipIf(*Tensor) bool { return true }

// LookUpConfig configures a LookUp processor.
type LookUpConfig struct {
	// RawTh is the probability at or above which a pixel is kept.
	RawTh float64
	// Grid maps pixels to coordinates; nil uses DefaultGrid.
	Grid *Grid
	Output
}

// Validate checks the configuration.
func (c LookUpConfig) Validate() error {
	if c.RawTh < 0 || c.RawTh > 1 {
		return fmt.Errorf("%w: raw_th must be in [0, 1], got %v", ErrConfig, c.RawTh)
	}
	if c.Grid != nil {
		if err := c.Grid.validate(); err != nil {
			return err
		}
	}
	return c.Output.validate()
}

// LookUp emits every pixel whose probability reaches RawTh, without merging
// neighbours.
type LookUp struct {
	cfg LookUpConfig
}

// NewLookUp validates cfg and returns the processor.
func NewLookUp(cfg LookUpConfig) (*LookUp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LookUp{cfg: cfg}, nil
}

// Forward returns one emitter per active pixel.
func (p *LookUp) Forward(t *Tensor) (*Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	g, err := resolveGrid(p.cfg.Grid, t)
	if err != nil {
		return nil, err
	}
	return p.cfg.Output.build(lookUp(t, g, p.cfg.RawTh, 0, t.Batch), t.Batch, t.HasBg())
}

// SkipIf reports whether no pixel reaches RawTh.
func (p *LookUp) SkipIf(t *Tensor) bool {
	return t.MaxProb() < p.cfg.RawTh
}
