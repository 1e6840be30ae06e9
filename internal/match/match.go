// Package match pairs predicted emitters with ground truth.
package match

import (
	"errors"
	"fmt"

	"github.com/banshee-data/decode/internal/emitter"
)

// ErrConfig reports an invalid matcher configuration.
var ErrConfig = errors.New("invalid matching configuration")

// Result holds the outcome of matching output against target. TP and
// TPMatch are aligned: TP[i] was matched to TPMatch[i] and both carry the
// same id.
type Result struct {
	TP      *emitter.Set
	FP      *emitter.Set
	FN      *emitter.Set
	TPMatch *emitter.Set
}

// Matcher assigns output emitters to target emitters.
type Matcher interface {
	Match(out, tar *emitter.Set) (*Result, error)
}

// String summarises the counts.
func (r *Result) String() string {
	return fmt.Sprintf("match.Result{TP: %d, FP: %d, FN: %d}", r.TP.Len(), r.FP.Len(), r.FN.Len())
}

func none(s *emitter.Set) *emitter.Set { return s.Subset([]int{}) }

// shareIDs gives the matched targets sequential ids when none of them has
// one, then copies the target ids onto the true positives.
func shareIDs(tp, tpMatch *emitter.Set, fallback []int64) (*emitter.Set, *emitter.Set, error) {
	ids := tpMatch.ID()
	unset := true
	for _, id := range ids {
		if id != -1 {
			unset = false
			break
		}
	}
	if unset && len(ids) > 0 {
		var err error
		if tpMatch, err = tpMatch.WithID(fallback); err != nil {
			return nil, nil, err
		}
		ids = fallback
	}
	tp, err := tp.WithID(ids)
	if err != nil {
		return nil, nil, err
	}
	return tp, tpMatch, nil
}

func checkPositive(name string, v *float64) error {
	if v != nil && !(*v > 0) {
		return fmt.Errorf("%w: %s must be positive, got %v", ErrConfig, name, *v)
	}
	return nil
}
