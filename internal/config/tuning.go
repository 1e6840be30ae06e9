package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/decode.defaults.json"

// Accepted values for the enumerated options.
const (
	MatchMethodGreedy          = "greedy"
	MatchMethodNearestNeighbor = "nn"

	ReturnFormatBatchSet    = "batch-set"
	ReturnFormatFrameSet    = "frame-set"
	ReturnFormatEmitterList = "emitter-list"
)

// TuningConfig holds the post-processing, matching and persistence
// parameters. Every field is optional; the Get* methods supply defaults,
// so partial files are safe.
type TuningConfig struct {
	// Post-processing
	RawThreshold  *float64 `json:"raw_threshold,omitempty" yaml:"raw_threshold,omitempty"`
	EmThreshold   *float64 `json:"em_threshold,omitempty" yaml:"em_threshold,omitempty"`
	LatThreshold  *float64 `json:"lat_threshold,omitempty" yaml:"lat_threshold,omitempty"`
	AxThreshold   *float64 `json:"ax_threshold,omitempty" yaml:"ax_threshold,omitempty"`
	MatchDims     *int     `json:"match_dims,omitempty" yaml:"match_dims,omitempty"`
	SkipThreshold *float64 `json:"skip_threshold,omitempty" yaml:"skip_threshold,omitempty"`
	NumWorkers    *int     `json:"num_workers,omitempty" yaml:"num_workers,omitempty"`
	ReturnFormat  *string  `json:"return_format,omitempty" yaml:"return_format,omitempty"`

	// Units attached to post-processed emitters
	XYUnit *string     `json:"xy_unit,omitempty" yaml:"xy_unit,omitempty"`
	PxSize *[2]float64 `json:"px_size,omitempty" yaml:"px_size,omitempty"`

	// Matching
	MatchMethod  *string  `json:"match_method,omitempty" yaml:"match_method,omitempty"`
	MatchDistLat *float64 `json:"match_dist_lat,omitempty" yaml:"match_dist_lat,omitempty"`
	MatchDistAx  *float64 `json:"match_dist_ax,omitempty" yaml:"match_dist_ax,omitempty"`
	MatchDistVol *float64 `json:"match_dist_vol,omitempty" yaml:"match_dist_vol,omitempty"`

	// Persistence and reporting
	Compression *string `json:"compression,omitempty" yaml:"compression,omitempty"`
	HistBins    *int    `json:"hist_bins,omitempty" yaml:"hist_bins,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON or YAML file, chosen
// by extension (.json, .yaml, .yml). Files over 1MB are rejected.
// Fields omitted from the file keep their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,          // from cmd/
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/emitter/store/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func checkUnit(name string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
	}
	return nil
}

func checkPositive(name string, v *float64) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, *v)
	}
	return nil
}

// Validate checks that the set values are in range. Cross-field rules
// involving defaults are enforced again by the component builders.
func (c *TuningConfig) Validate() error {
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"raw_threshold", c.RawThreshold},
		{"em_threshold", c.EmThreshold},
		{"skip_threshold", c.SkipThreshold},
	} {
		if err := checkUnit(f.name, f.v); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"lat_threshold", c.LatThreshold},
		{"ax_threshold", c.AxThreshold},
		{"match_dist_lat", c.MatchDistLat},
		{"match_dist_ax", c.MatchDistAx},
		{"match_dist_vol", c.MatchDistVol},
	} {
		if err := checkPositive(f.name, f.v); err != nil {
			return err
		}
	}

	if c.GetSkipThreshold() > c.GetRawThreshold() {
		return fmt.Errorf("skip_threshold (%f) must not exceed raw_threshold (%f)", c.GetSkipThreshold(), c.GetRawThreshold())
	}
	if d := c.GetMatchDims(); d != 2 && d != 3 {
		return fmt.Errorf("match_dims must be 2 or 3, got %d", d)
	}
	if c.NumWorkers != nil && *c.NumWorkers < 0 {
		return fmt.Errorf("num_workers must be non-negative, got %d", *c.NumWorkers)
	}
	if c.HistBins != nil && *c.HistBins <= 0 {
		return fmt.Errorf("hist_bins must be positive, got %d", *c.HistBins)
	}

	switch f := c.GetReturnFormat(); f {
	case ReturnFormatBatchSet, ReturnFormatFrameSet, ReturnFormatEmitterList:
	default:
		return fmt.Errorf("invalid return_format '%s'", f)
	}
	switch m := c.GetMatchMethod(); m {
	case MatchMethodGreedy, MatchMethodNearestNeighbor:
	default:
		return fmt.Errorf("invalid match_method '%s'", m)
	}
	switch u := c.GetXYUnit(); u {
	case "", "px", "nm":
	default:
		return fmt.Errorf("invalid xy_unit '%s'", u)
	}
	switch comp := c.GetCompression(); comp {
	case "none", "lz4", "zstd":
	default:
		return fmt.Errorf("invalid compression '%s'", comp)
	}
	if c.PxSize != nil && (c.PxSize[0] <= 0 || c.PxSize[1] <= 0) {
		return fmt.Errorf("px_size must be positive, got %v", *c.PxSize)
	}
	return nil
}

// GetRawThreshold returns the raw_threshold value or the default.
func (c *TuningConfig) GetRawThreshold() float64 {
	if c.RawThreshold == nil {
		return 0.1
	}
	return *c.RawThreshold
}

// GetEmThreshold returns the em_threshold value or the default.
func (c *TuningConfig) GetEmThreshold() float64 {
	if c.EmThreshold == nil {
		return 0.6
	}
	return *c.EmThreshold
}

// GetLatThreshold returns the lat_threshold value or the default.
func (c *TuningConfig) GetLatThreshold() float64 {
	if c.LatThreshold == nil {
		return 0.6
	}
	return *c.LatThreshold
}

// GetAxThreshold returns the ax_threshold value or the default.
func (c *TuningConfig) GetAxThreshold() float64 {
	if c.AxThreshold == nil {
		return 200
	}
	return *c.AxThreshold
}

// GetMatchDims returns the match_dims value or the default.
func (c *TuningConfig) GetMatchDims() int {
	if c.MatchDims == nil {
		return 2
	}
	return *c.MatchDims
}

// GetSkipThreshold returns the skip_threshold value, defaulting to the raw threshold.
func (c *TuningConfig) GetSkipThreshold() float64 {
	if c.SkipThreshold == nil {
		return c.GetRawThreshold()
	}
	return *c.SkipThreshold
}

// GetNumWorkers returns the num_workers value or the default (0, inline).
func (c *TuningConfig) GetNumWorkers() int {
	if c.NumWorkers == nil {
		return 0
	}
	return *c.NumWorkers
}

// GetReturnFormat returns the return_format value or the default.
func (c *TuningConfig) GetReturnFormat() string {
	if c.ReturnFormat == nil {
		return ReturnFormatBatchSet
	}
	return *c.ReturnFormat
}

// GetXYUnit returns the xy_unit value or the default (px).
func (c *TuningConfig) GetXYUnit() string {
	if c.XYUnit == nil {
		return "px"
	}
	return *c.XYUnit
}

// GetPxSize returns the px_size value, nil when unset.
func (c *TuningConfig) GetPxSize() *[2]float64 {
	if c.PxSize == nil {
		return nil
	}
	px := *c.PxSize
	return &px
}

// GetMatchMethod returns the match_method value or the default.
func (c *TuningConfig) GetMatchMethod() string {
	if c.MatchMethod == nil {
		return MatchMethodGreedy
	}
	return *c.MatchMethod
}

// GetMatchDistLat returns the match_dist_lat value or the default.
func (c *TuningConfig) GetMatchDistLat() float64 {
	if c.MatchDistLat == nil {
		return 250
	}
	return *c.MatchDistLat
}

// GetMatchDistAx returns the match_dist_ax value or the default.
func (c *TuningConfig) GetMatchDistAx() float64 {
	if c.MatchDistAx == nil {
		return 500
	}
	return *c.MatchDistAx
}

// GetMatchDistVol returns match_dist_vol, nil when unset. A set value
// switches greedy matching to volumetric distances.
func (c *TuningConfig) GetMatchDistVol() *float64 {
	if c.MatchDistVol == nil {
		return nil
	}
	v := *c.MatchDistVol
	return &v
}

// GetCompression returns the compression value or the default.
func (c *TuningConfig) GetCompression() string {
	if c.Compression == nil {
		return "zstd"
	}
	return *c.Compression
}

// GetHistBins returns the hist_bins value or the default.
func (c *TuningConfig) GetHistBins() int {
	if c.HistBins == nil {
		return 50
	}
	return *c.HistBins
}
