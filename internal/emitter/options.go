package emitter

import (
	"fmt"

	"github.com/banshee-data/decode/internal/units"
)

// Option configures collection-level metadata.
type Option func(*meta) error

type meta struct {
	xyUnit units.Unit
	pxSize *units.PxSize
}

// WithXYUnit sets the lateral unit. The empty unit leaves it unset.
func WithXYUnit(u units.Unit) Option {
	return func(m *meta) error {
		if u != units.None && !units.IsValid(u) {
			return fmt.Errorf("%w: %w %q", ErrValidation, units.ErrUnknownUnit, u)
		}
		m.xyUnit = u
		return nil
	}
}

// WithPxSize sets the pixel size in nm along x and y.
func WithPxSize(x, y float64) Option {
	return func(m *meta) error {
		if x <= 0 || y <= 0 {
			return fmt.Errorf("%w: px size must be positive, got (%v, %v)", ErrValidation, x, y)
		}
		m.pxSize = &units.PxSize{x, y}
		return nil
	}
}

// WithMeta copies xy_unit and px_size from an existing collection.
func WithMeta(m Meta) Option {
	return func(dst *meta) error {
		dst.xyUnit = m.XYUnit
		if m.PxSize != nil {
			px := *m.PxSize
			dst.pxSize = &px
		} else {
			dst.pxSize = nil
		}
		return nil
	}
}

// Meta is the collection-level metadata shared by all records.
type Meta struct {
	XYUnit units.Unit    `json:"xy_unit"`
	PxSize *units.PxSize `json:"px_size"`
}

func applyOptions(opts []Option) (meta, error) {
	var m meta
	for _, opt := range opts {
		if err := opt(&m); err != nil {
			return meta{}, err
		}
	}
	return m, nil
}
