package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.RawThreshold == nil || *cfg.RawThreshold != 0.1 {
		t.Errorf("Expected RawThreshold 0.1, got %v", cfg.RawThreshold)
	}
	if cfg.ReturnFormat == nil || *cfg.ReturnFormat != ReturnFormatBatchSet {
		t.Errorf("Expected ReturnFormat batch-set, got %v", cfg.ReturnFormat)
	}
	if cfg.MatchDistVol != nil {
		t.Errorf("Expected MatchDistVol unset, got %v", *cfg.MatchDistVol)
	}

	// The defaults file must agree with the Get* fallbacks.
	empty := EmptyTuningConfig()
	if cfg.GetRawThreshold() != empty.GetRawThreshold() {
		t.Errorf("raw_threshold: file %f, fallback %f", cfg.GetRawThreshold(), empty.GetRawThreshold())
	}
	if cfg.GetEmThreshold() != empty.GetEmThreshold() {
		t.Errorf("em_threshold: file %f, fallback %f", cfg.GetEmThreshold(), empty.GetEmThreshold())
	}
	if cfg.GetLatThreshold() != empty.GetLatThreshold() {
		t.Errorf("lat_threshold: file %f, fallback %f", cfg.GetLatThreshold(), empty.GetLatThreshold())
	}
	if cfg.GetMatchDistLat() != empty.GetMatchDistLat() {
		t.Errorf("match_dist_lat: file %f, fallback %f", cfg.GetMatchDistLat(), empty.GetMatchDistLat())
	}
	if cfg.GetCompression() != empty.GetCompression() {
		t.Errorf("compression: file %s, fallback %s", cfg.GetCompression(), empty.GetCompression())
	}
	if cfg.GetHistBins() != empty.GetHistBins() {
		t.Errorf("hist_bins: file %d, fallback %d", cfg.GetHistBins(), empty.GetHistBins())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "raw_threshold": 0.2,
  "skip_threshold": 0.05,
  "match_dims": 3,
  "num_workers": 4,
  "return_format": "frame-set",
  "px_size": [100, 110],
  "match_method": "nn"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetRawThreshold() != 0.2 {
		t.Errorf("GetRawThreshold() = %f, want 0.2", cfg.GetRawThreshold())
	}
	if cfg.GetSkipThreshold() != 0.05 {
		t.Errorf("GetSkipThreshold() = %f, want 0.05", cfg.GetSkipThreshold())
	}
	if cfg.GetMatchDims() != 3 {
		t.Errorf("GetMatchDims() = %d, want 3", cfg.GetMatchDims())
	}
	if cfg.GetNumWorkers() != 4 {
		t.Errorf("GetNumWorkers() = %d, want 4", cfg.GetNumWorkers())
	}
	if cfg.GetReturnFormat() != ReturnFormatFrameSet {
		t.Errorf("GetReturnFormat() = %s, want frame-set", cfg.GetReturnFormat())
	}
	if px := cfg.GetPxSize(); px == nil || *px != [2]float64{100, 110} {
		t.Errorf("GetPxSize() = %v, want [100 110]", px)
	}
	if cfg.GetMatchMethod() != MatchMethodNearestNeighbor {
		t.Errorf("GetMatchMethod() = %s, want nn", cfg.GetMatchMethod())
	}
	// Omitted fields fall back to defaults.
	if cfg.GetEmThreshold() != 0.6 {
		t.Errorf("GetEmThreshold() = %f, want 0.6", cfg.GetEmThreshold())
	}
}

func TestLoadTuningConfigYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	testYAML := `raw_threshold: 0.3
lat_threshold: 0.8
match_dist_vol: 350
compression: lz4
`
	if err := os.WriteFile(configPath, []byte(testYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetRawThreshold() != 0.3 {
		t.Errorf("GetRawThreshold() = %f, want 0.3", cfg.GetRawThreshold())
	}
	if cfg.GetSkipThreshold() != 0.3 {
		t.Errorf("GetSkipThreshold() = %f, want raw threshold 0.3", cfg.GetSkipThreshold())
	}
	if cfg.GetLatThreshold() != 0.8 {
		t.Errorf("GetLatThreshold() = %f, want 0.8", cfg.GetLatThreshold())
	}
	if v := cfg.GetMatchDistVol(); v == nil || *v != 350 {
		t.Errorf("GetMatchDistVol() = %v, want 350", v)
	}
	if cfg.GetCompression() != "lz4" {
		t.Errorf("GetCompression() = %s, want lz4", cfg.GetCompression())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigBadExtension(t *testing.T) {
	_, err := LoadTuningConfig("config.toml")
	if err == nil || !strings.Contains(err.Error(), "extension") {
		t.Errorf("Expected extension error, got %v", err)
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "raw_threshold": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadTuningConfigTooLarge(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")
	data := make([]byte, 1024*1024+1)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected size error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name:    "raw threshold above one",
			cfg:     &TuningConfig{RawThreshold: ptrFloat64(1.5)},
			wantErr: true,
		},
		{
			name:    "negative em threshold",
			cfg:     &TuningConfig{EmThreshold: ptrFloat64(-0.1)},
			wantErr: true,
		},
		{
			name:    "skip threshold above raw threshold",
			cfg:     &TuningConfig{RawThreshold: ptrFloat64(0.1), SkipThreshold: ptrFloat64(0.2)},
			wantErr: true,
		},
		{
			name:    "skip threshold below raw threshold",
			cfg:     &TuningConfig{RawThreshold: ptrFloat64(0.3), SkipThreshold: ptrFloat64(0.2)},
			wantErr: false,
		},
		{
			name:    "zero lateral threshold",
			cfg:     &TuningConfig{LatThreshold: ptrFloat64(0)},
			wantErr: true,
		},
		{
			name:    "match dims 4",
			cfg:     &TuningConfig{MatchDims: ptrInt(4)},
			wantErr: true,
		},
		{
			name:    "negative workers",
			cfg:     &TuningConfig{NumWorkers: ptrInt(-1)},
			wantErr: true,
		},
		{
			name:    "unknown return format",
			cfg:     &TuningConfig{ReturnFormat: ptrString("tensor")},
			wantErr: true,
		},
		{
			name:    "unknown match method",
			cfg:     &TuningConfig{MatchMethod: ptrString("hungarian")},
			wantErr: true,
		},
		{
			name:    "unknown unit",
			cfg:     &TuningConfig{XYUnit: ptrString("um")},
			wantErr: true,
		},
		{
			name:    "empty unit",
			cfg:     &TuningConfig{XYUnit: ptrString("")},
			wantErr: false,
		},
		{
			name:    "unknown compression",
			cfg:     &TuningConfig{Compression: ptrString("gzip")},
			wantErr: true,
		},
		{
			name:    "negative pixel size",
			cfg:     &TuningConfig{PxSize: &[2]float64{100, -1}},
			wantErr: true,
		},
		{
			name:    "zero histogram bins",
			cfg:     &TuningConfig{HistBins: ptrInt(0)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetPxSizeReturnsCopy(t *testing.T) {
	cfg := &TuningConfig{PxSize: &[2]float64{100, 100}}
	px := cfg.GetPxSize()
	px[0] = 1
	if (*cfg.PxSize)[0] != 100 {
		t.Errorf("GetPxSize() aliased the config value")
	}
}
