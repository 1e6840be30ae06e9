package emitter

import (
	"fmt"
	"math"
	"sort"
)

// FilterBySigma keeps the round(fraction*Len) emitters with the lowest
// weighted total positional sigma (x and y, plus z for 3D sets). Ties are
// broken by original position and the result keeps the original order, so
// every kept emitter's score is <= every dropped emitter's score.
func (s *Set) FilterBySigma(fraction float64) (*Set, error) {
	if fraction < 0 || fraction > 1 || math.IsNaN(fraction) {
		return nil, fmt.Errorf("%w: sigma fraction must be in [0, 1], got %v", ErrValidation, fraction)
	}
	if s.xyzSig == nil {
		return nil, fmt.Errorf("%w: %s", ErrFieldAbsent, FieldXYZSig)
	}

	n := s.Len()
	k := int(math.Round(fraction * float64(n)))
	score := weightedSigmaTotal(s.xyzSig, s.Dim() == 3)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := score[order[a]], score[order[b]]
		// NaN sigmas sort last.
		if math.IsNaN(sb) {
			return !math.IsNaN(sa)
		}
		return sa < sb
	})

	keep := make([]bool, n)
	for _, i := range order[:k] {
		keep[i] = true
	}
	return s.SubsetMask(keep), nil
}
