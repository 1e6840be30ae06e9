package store

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/decode/internal/emitter"
	"github.com/banshee-data/decode/internal/monitoring"
)

const csvMagic = "# decode-emitters v1"

// csvColumns maps each field to its delimited-text columns.
var csvColumns = map[string][]string{
	emitter.FieldXYZ:     {"x", "y", "z"},
	emitter.FieldPhot:    {"phot"},
	emitter.FieldFrameIx: {"frame_ix"},
	emitter.FieldID:      {"id"},
	emitter.FieldProb:    {"prob"},
	emitter.FieldBg:      {"bg"},
	emitter.FieldColor:   {"color"},
	emitter.FieldXYZSig:  {"sig_x", "sig_y", "sig_z"},
	emitter.FieldPhotSig: {"phot_sig"},
	emitter.FieldBgSig:   {"bg_sig"},
	emitter.FieldXYZCr:   {"cr_x", "cr_y", "cr_z"},
	emitter.FieldPhotCr:  {"phot_cr"},
	emitter.FieldBgCr:    {"bg_cr"},
}

// SaveCSV writes s as delimited text with metadata in leading comments.
func SaveCSV(path string, s *emitter.Set) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadCSV reads delimited text written by SaveCSV. Values round trip
// exactly, but the unit metadata lives in free-text comments, so loading
// logs a warning.
func LoadCSV(path string) (*emitter.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	monitoring.Warnf("loading emitters from delimited text %s; xy_unit and px_size are read from header comments", path)
	return ReadCSV(f)
}

func formatReal(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WriteCSV encodes s to w.
func WriteCSV(w io.Writer, s *emitter.Set) error {
	bw := bufio.NewWriter(w)
	m := s.Meta()
	fmt.Fprintln(bw, csvMagic)
	fmt.Fprintf(bw, "# xy_unit: %s\n", m.XYUnit)
	if m.PxSize != nil {
		fmt.Fprintf(bw, "# px_size: %s\n", formatPxSize(m.PxSize))
	}

	used := s.UsedFields()
	var header []string
	for _, name := range used {
		header = append(header, csvColumns[name]...)
	}
	cw := csv.NewWriter(bw)
	if err := cw.Write(header); err != nil {
		return err
	}

	f := s.Fields()
	row := make([]string, 0, len(header))
	for i := 0; i < s.Len(); i++ {
		row = row[:0]
		for _, name := range used {
			v, _ := f.Get(name)
			switch t := v.(type) {
			case []float64:
				row = append(row, formatReal(t[i]))
			case []int64:
				row = append(row, strconv.FormatInt(t[i], 10))
			case [][]float64:
				for _, x := range t[i] {
					row = append(row, formatReal(x))
				}
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadCSV decodes delimited text. A missing z column yields 2D
// coordinates; a missing id column yields -1 ids.
func ReadCSV(r io.Reader) (*emitter.Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var xyUnit, pxSize string
	for bytes.HasPrefix(data, []byte("#")) {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			data = nil
		}
		text := strings.TrimSpace(strings.TrimPrefix(string(line), "#"))
		if k, v, ok := strings.Cut(text, ":"); ok {
			switch strings.TrimSpace(k) {
			case "xy_unit":
				xyUnit = strings.TrimSpace(v)
			case "px_size":
				pxSize = "[" + strings.TrimSpace(v) + "]"
			}
		}
	}
	opts, err := metaOptions(xyUnit, pxSize)
	if err != nil {
		return nil, err
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrFormat)
	}
	col := map[string]int{}
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	rows := records[1:]

	var f emitter.Fields
	for _, name := range emitter.FieldNames {
		cols := csvColumns[name]
		if _, ok := col[cols[0]]; !ok {
			continue
		}
		v, err := parseCSVField(name, cols, col, rows)
		if err != nil {
			return nil, err
		}
		if err := f.Set(name, v); err != nil {
			return nil, err
		}
	}
	return emitter.New(f, opts...)
}

func parseCSVField(name string, cols []string, col map[string]int, rows [][]string) (any, error) {
	cell := func(row []string, c string) (string, error) {
		i, ok := col[c]
		if !ok || i >= len(row) {
			return "", fmt.Errorf("%w: missing column %s", ErrFormat, c)
		}
		return strings.TrimSpace(row[i]), nil
	}
	parseReal := func(row []string, c string) (float64, error) {
		s, err := cell(row, c)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: column %s: %w", ErrFormat, c, err)
		}
		return v, nil
	}

	switch name {
	case emitter.FieldXYZ, emitter.FieldXYZSig, emitter.FieldXYZCr:
		out := make([][]float64, len(rows))
		for i, row := range rows {
			vec := make([]float64, 0, 3)
			for k, c := range cols {
				if _, ok := col[c]; !ok && k == 2 {
					break
				}
				v, err := parseReal(row, c)
				if err != nil {
					return nil, err
				}
				vec = append(vec, v)
			}
			out[i] = vec
		}
		return out, nil

	case emitter.FieldFrameIx, emitter.FieldID, emitter.FieldColor:
		out := make([]int64, len(rows))
		for i, row := range rows {
			s, err := cell(row, cols[0])
			if err != nil {
				return nil, err
			}
			if v, err := strconv.ParseInt(s, 10, 64); err == nil {
				out[i] = v
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: column %s: %w", ErrFormat, cols[0], err)
			}
			iv, err := emitter.FrameIxFromFloat([]float64{f})
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", cols[0], i, err)
			}
			out[i] = iv[0]
		}
		return out, nil

	default:
		out := make([]float64, len(rows))
		for i, row := range rows {
			v, err := parseReal(row, cols[0])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}
