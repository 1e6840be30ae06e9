// Package store persists emitter sets. Three formats are supported and
// selected by file extension:
//
//	.emb          binary tensor container, optionally compressed
//	.sqlite, .db  tabular SQLite file with partial frame reads
//	.csv          delimited text, for inspection and interchange
package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/decode/internal/emitter"
)

// ErrFormat is returned for corrupt or unrecognised files.
var ErrFormat = errors.New("invalid emitter file")

// Format identifies a persistence format.
type Format string

const (
	FormatBinary  Format = "binary"
	FormatTabular Format = "tabular"
	FormatCSV     Format = "csv"
)

// FormatFromPath picks the format for path by its extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".emb":
		return FormatBinary, nil
	case ".sqlite", ".db":
		return FormatTabular, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: no emitter format for extension %q", emitter.ErrNotSupported, filepath.Ext(path))
}

type saveOptions struct {
	compression Compression
}

// SaveOption configures Save.
type SaveOption func(*saveOptions)

// WithCompression selects the block compression of the binary format. It
// is ignored by the other formats.
func WithCompression(c Compression) SaveOption {
	return func(o *saveOptions) { o.compression = c }
}

// Save writes s to path, replacing any existing file.
func Save(path string, s *emitter.Set, opts ...SaveOption) error {
	o := saveOptions{compression: CompressionNone}
	for _, opt := range opts {
		opt(&o)
	}
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatBinary:
		return SaveBinary(path, s, o.compression)
	case FormatTabular:
		return SaveTabular(path, s)
	default:
		return SaveCSV(path, s)
	}
}

// Load reads the set stored at path.
func Load(path string) (*emitter.Set, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatBinary:
		return LoadBinary(path)
	case FormatTabular:
		return LoadTabular(path)
	default:
		return LoadCSV(path)
	}
}
