package emitter

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultHistBins is the bin count used when HistDetection is given bins <= 0.
const DefaultHistBins = 50

// Summary describes the distribution of one detection field. Edges has one
// more entry than Counts. NaN values are excluded.
type Summary struct {
	Count  int       `json:"count"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Edges  []float64 `json:"edges"`
	Counts []float64 `json:"counts"`
	Values []float64 `json:"-"`
}

// HistDetection summarises the detection diagnostics prob, sigma_x, sigma_y
// and sigma_z. Absent fields yield an empty Summary under the same key.
func (s *Set) HistDetection(bins int) map[string]Summary {
	if bins <= 0 {
		bins = DefaultHistBins
	}
	axis := func(k int) []float64 {
		if s.xyzSig == nil {
			return nil
		}
		v := make([]float64, len(s.xyzSig))
		for i := range s.xyzSig {
			v[i] = s.xyzSig[i][k]
		}
		return v
	}
	return map[string]Summary{
		"prob":    summarize(s.prob, bins),
		"sigma_x": summarize(axis(0), bins),
		"sigma_y": summarize(axis(1), bins),
		"sigma_z": summarize(axis(2), bins),
	}
}

func summarize(v []float64, bins int) Summary {
	x := make([]float64, 0, len(v))
	for _, f := range v {
		if !math.IsNaN(f) {
			x = append(x, f)
		}
	}
	if len(x) == 0 {
		return Summary{Mean: math.NaN(), Std: math.NaN(), Min: math.NaN(), Max: math.NaN()}
	}
	sort.Float64s(x)

	mean, std := stat.MeanStdDev(x, nil)
	lo, hi := x[0], x[len(x)-1]
	// stat.Histogram needs the last divider strictly above the maximum.
	top := math.Nextafter(hi, math.Inf(1))
	if top-lo < 1e-12 {
		top = lo + 1
	}
	edges := floats.Span(make([]float64, bins+1), lo, top)
	return Summary{
		Count:  len(x),
		Mean:   mean,
		Std:    std,
		Min:    lo,
		Max:    hi,
		Edges:  edges,
		Counts: stat.Histogram(nil, edges, x, nil),
		Values: x,
	}
}
