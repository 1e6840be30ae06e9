// Package units provides the lateral length units used by emitter coordinates
// and the shared px/nm conversion routine.
package units

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Unit is the lateral (x, y) unit of an emitter collection. The axial
// coordinate is always carried in nanometres and is never converted.
type Unit string

// Unit constants
const (
	None Unit = ""
	Px   Unit = "px"
	Nm   Unit = "nm"
)

// ValidUnits contains all settable unit values
var ValidUnits = []Unit{Px, Nm}

var (
	// ErrUndefinedUnit is returned when the source or target unit is unset.
	ErrUndefinedUnit = errors.New("xy unit is not defined")
	// ErrMissingPxSize is returned when a px<->nm conversion has no pixel size.
	ErrMissingPxSize = errors.New("px size is not defined")
	// ErrUnknownUnit is returned for unit strings outside ValidUnits.
	ErrUnknownUnit = errors.New("unknown xy unit")
)

// PxSize is the pixel size in nm along x and y.
type PxSize [2]float64

// IsValid reports whether u is a settable unit. The unset unit is not valid.
func IsValid(u Unit) bool {
	for _, valid := range ValidUnits {
		if u == valid {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	names := make([]string, len(ValidUnits))
	for i, u := range ValidUnits {
		names[i] = string(u)
	}
	return strings.Join(names, ", ")
}

// Parse converts s to a Unit. The empty string maps to None.
func Parse(s string) (Unit, error) {
	u := Unit(s)
	if u == None || IsValid(u) {
		return u, nil
	}
	return None, fmt.Errorf("%w %q, expected one of %s", ErrUnknownUnit, s, GetValidUnitsString())
}

// Convert returns a copy of vals expressed in tar. Only x and y are scaled;
// power selects the exponent applied to the pixel size (1 for positions and
// standard deviations, 2 for variance-like quantities).
func Convert(vals [][3]float64, pxSize *PxSize, in, tar Unit, power float64) ([][3]float64, error) {
	if in == None {
		return nil, fmt.Errorf("%w: cannot convert to %q", ErrUndefinedUnit, tar)
	}
	if tar == None {
		return nil, fmt.Errorf("%w: target unit is unset", ErrUndefinedUnit)
	}
	if !IsValid(in) || !IsValid(tar) {
		return nil, fmt.Errorf("%w: %q -> %q", ErrUnknownUnit, in, tar)
	}

	out := make([][3]float64, len(vals))
	copy(out, vals)
	if in == tar {
		return out, nil
	}
	if pxSize == nil {
		return nil, fmt.Errorf("%w: cannot convert %s -> %s", ErrMissingPxSize, in, tar)
	}

	sx := math.Pow(pxSize[0], power)
	sy := math.Pow(pxSize[1], power)
	if in == Nm {
		// nm -> px
		sx, sy = 1/sx, 1/sy
	}
	for i := range out {
		out[i][0] *= sx
		out[i][1] *= sy
	}
	return out, nil
}
