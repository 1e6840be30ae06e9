package postprocess

import (
	"github.com/banshee-data/decode/internal/config"
	"github.com/banshee-data/decode/internal/units"
)

// OutputFromTuning reads the output settings from cfg.
func OutputFromTuning(cfg *config.TuningConfig) Output {
	out := Output{
		XYUnit:       units.Unit(cfg.GetXYUnit()),
		ReturnFormat: ReturnFormat(cfg.GetReturnFormat()),
	}
	if px := cfg.GetPxSize(); px != nil {
		p := units.PxSize(*px)
		out.PxSize = &p
	}
	return out
}

// ConsistencyFromTuning builds a Consistency processor from cfg, using the
// default grid of each input tensor.
func ConsistencyFromTuning(cfg *config.TuningConfig) (*Consistency, error) {
	return NewConsistency(ConsistencyConfig{
		RawTh:      cfg.GetRawThreshold(),
		EmTh:       cfg.GetEmThreshold(),
		LatTh:      cfg.GetLatThreshold(),
		AxTh:       cfg.GetAxThreshold(),
		MatchDims:  cfg.GetMatchDims(),
		SkipTh:     cfg.GetSkipThreshold(),
		NumWorkers: cfg.GetNumWorkers(),
		Output:     OutputFromTuning(cfg),
	})
}
