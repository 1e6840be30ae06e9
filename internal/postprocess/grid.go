package postprocess

import "fmt"

// Grid maps pixel indices to absolute coordinates. X runs along the height
// axis and Y along the width axis.
type Grid struct {
	XExtent [2]float64
	YExtent [2]float64
	Height  int
	Width   int
}

// DefaultGrid returns the grid whose pixel centres equal the pixel indices.
func DefaultGrid(height, width int) Grid {
	return Grid{
		XExtent: [2]float64{-0.5, float64(height) - 0.5},
		YExtent: [2]float64{-0.5, float64(width) - 0.5},
		Height:  height,
		Width:   width,
	}
}

// Center returns the coordinates of the centre of pixel (i, j).
func (g Grid) Center(i, j int) (x, y float64) {
	x = g.XExtent[0] + (float64(i)+0.5)*(g.XExtent[1]-g.XExtent[0])/float64(g.Height)
	y = g.YExtent[0] + (float64(j)+0.5)*(g.YExtent[1]-g.YExtent[0])/float64(g.Width)
	return x, y
}

func (g Grid) validate() error {
	if g.Height <= 0 || g.Width <= 0 {
		return fmt.Errorf("%w: grid shape must be positive, got %dx%d", ErrConfig, g.Height, g.Width)
	}
	if g.XExtent[1] <= g.XExtent[0] || g.YExtent[1] <= g.YExtent[0] {
		return fmt.Errorf("%w: grid extents must be increasing, got x %v y %v", ErrConfig, g.XExtent, g.YExtent)
	}
	return nil
}

// resolveGrid returns g, or the default grid for t when g is nil, after
// checking it fits the tensor.
func resolveGrid(g *Grid, t *Tensor) (Grid, error) {
	if g == nil {
		return DefaultGrid(t.Height, t.Width), nil
	}
	if g.Height != t.Height || g.Width != t.Width {
		return Grid{}, fmt.Errorf("%w: grid is %dx%d but tensor frames are %dx%d",
			ErrInput, g.Height, g.Width, t.Height, t.Width)
	}
	return *g, nil
}
