package match

import (
	"fmt"

	"github.com/banshee-data/decode/internal/config"
)

// GreedyFromTuning builds a Greedy matcher. A set match_dist_vol selects
// volumetric matching, otherwise match_dist_lat is used.
func GreedyFromTuning(cfg *config.TuningConfig) (*Greedy, error) {
	if vol := cfg.GetMatchDistVol(); vol != nil {
		return NewGreedy(GreedyConfig{DistVol: vol})
	}
	lat := cfg.GetMatchDistLat()
	return NewGreedy(GreedyConfig{DistLat: &lat})
}

// NearestNeighborFromTuning builds a NearestNeighbor matcher using
// match_dims, match_dist_lat and, in 3D, match_dist_ax.
func NearestNeighborFromTuning(cfg *config.TuningConfig) (*NearestNeighbor, error) {
	lat := cfg.GetMatchDistLat()
	nn := NNConfig{DistLat: &lat, MatchDims: cfg.GetMatchDims()}
	if nn.MatchDims == 3 {
		ax := cfg.GetMatchDistAx()
		nn.DistAx = &ax
	}
	return NewNearestNeighbor(nn)
}

// FromTuning builds the matcher named by match_method.
func FromTuning(cfg *config.TuningConfig) (Matcher, error) {
	switch m := cfg.GetMatchMethod(); m {
	case config.MatchMethodGreedy:
		g, err := GreedyFromTuning(cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.MatchMethodNearestNeighbor:
		nn, err := NearestNeighborFromTuning(cfg)
		if err != nil {
			return nil, err
		}
		return nn, nil
	default:
		return nil, fmt.Errorf("%w: unknown match method %q", ErrConfig, m)
	}
}
