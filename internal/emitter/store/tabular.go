package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/decode/internal/emitter"
	"github.com/banshee-data/decode/internal/units"
)

// schema.sql defines the emitter and metadata tables of the tabular format.
//
//go:embed schema.sql
var schemaSQL string

const tabularVersion = "1"

const emitterColumns = `frame_ix, id, x, y, z, phot, prob, bg, color,
	sig_x, sig_y, sig_z, phot_sig, bg_sig, cr_x, cr_y, cr_z, phot_cr, bg_cr`

func openTabular(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return db, nil
}

// SaveTabular writes s to a new SQLite file at path.
func SaveTabular(path string, s *emitter.Set) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	db, err := openTabular(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m := s.Meta()
	meta := map[string]string{
		"version": tabularVersion,
		"xy_unit": string(m.XYUnit),
		"fields":  strings.Join(s.UsedFields(), ","),
	}
	if m.PxSize != nil {
		b, err := json.Marshal(m.PxSize)
		if err != nil {
			return err
		}
		meta["px_size"] = string(b)
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO emitter_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO emitters (row_ix, ` + emitterColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range s.Records() {
		sig := vecArgs(r.XYZSig)
		cr := vecArgs(r.XYZCr)
		_, err := stmt.Exec(
			i, r.FrameIx, r.ID,
			realArg(r.XYZ[0]), realArg(r.XYZ[1]), realArg(r.XYZ[2]),
			realArg(r.Phot), realPtrArg(r.Prob), realPtrArg(r.Bg), intPtrArg(r.Color),
			sig[0], sig[1], sig[2], realPtrArg(r.PhotSig), realPtrArg(r.BgSig),
			cr[0], cr[1], cr[2], realPtrArg(r.PhotCr), realPtrArg(r.BgCr),
		)
		if err != nil {
			return fmt.Errorf("insert emitter %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func realArg(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func realPtrArg(v *float64) any {
	if v == nil {
		return nil
	}
	return realArg(*v)
}

func intPtrArg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func vecArgs(v *emitter.Vec3) [3]any {
	if v == nil {
		return [3]any{}
	}
	return [3]any{realArg(v[0]), realArg(v[1]), realArg(v[2])}
}

// LoadTabular reads every emitter from a SQLite file.
func LoadTabular(path string) (*emitter.Set, error) {
	return loadTabular(path, "", nil)
}

// LoadFrames reads only the emitters with lo <= frame_ix < hi, using the
// frame index of the tabular file. The result equals
// LoadTabular(path).SubsetFrame(lo, hi).
func LoadFrames(path string, lo, hi int64) (*emitter.Set, error) {
	return loadTabular(path, "WHERE frame_ix >= ? AND frame_ix < ?", []any{lo, hi})
}

func loadTabular(path, where string, args []any) (*emitter.Set, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db, err := openTabular(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	meta, err := readMeta(db)
	if err != nil {
		return nil, err
	}
	if meta["version"] != tabularVersion {
		return nil, fmt.Errorf("%w: unsupported tabular version %q", ErrFormat, meta["version"])
	}
	opts, err := metaOptions(meta["xy_unit"], meta["px_size"])
	if err != nil {
		return nil, err
	}
	present := map[string]bool{}
	for _, name := range strings.Split(meta["fields"], ",") {
		if name != "" {
			present[name] = true
		}
	}

	rows, err := db.Query(`SELECT `+emitterColumns+` FROM emitters `+where+` ORDER BY row_ix`, args...)
	if err != nil {
		return nil, fmt.Errorf("query emitters: %w", err)
	}
	defer rows.Close()

	acc := newFieldAccumulator(present)
	for rows.Next() {
		var (
			frameIx, id                  int64
			color                        sql.NullInt64
			xyz, sig, cr                 [3]sql.NullFloat64
			phot, prob, bg               sql.NullFloat64
			photSig, bgSig, photCr, bgCr sql.NullFloat64
		)
		if err := rows.Scan(
			&frameIx, &id, &xyz[0], &xyz[1], &xyz[2],
			&phot, &prob, &bg, &color,
			&sig[0], &sig[1], &sig[2], &photSig, &bgSig,
			&cr[0], &cr[1], &cr[2], &photCr, &bgCr,
		); err != nil {
			return nil, fmt.Errorf("scan emitter row: %w", err)
		}
		acc.appendRow(frameIx, id, xyz, phot, prob, bg, color, sig, photSig, bgSig, cr, photCr, bgCr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return emitter.New(acc.fields(), opts...)
}

func readMeta(db *sql.DB) (map[string]string, error) {
	rows, err := db.Query(`SELECT key, value FROM emitter_meta`)
	if err != nil {
		return nil, fmt.Errorf("%w: read meta: %w", ErrFormat, err)
	}
	defer rows.Close()
	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// metaOptions converts stored xy_unit and px_size strings into options.
// pxSize is either a JSON array or empty.
func metaOptions(xyUnit, pxSize string) ([]emitter.Option, error) {
	u, err := units.Parse(xyUnit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	opts := []emitter.Option{emitter.WithXYUnit(u)}
	if pxSize != "" {
		var px [2]float64
		if err := json.Unmarshal([]byte(pxSize), &px); err != nil {
			return nil, fmt.Errorf("%w: px_size %q: %w", ErrFormat, pxSize, err)
		}
		opts = append(opts, emitter.WithPxSize(px[0], px[1]))
	}
	return opts, nil
}

// fieldAccumulator collects scanned rows into emitter.Fields, keeping only
// the fields recorded as present.
type fieldAccumulator struct {
	f emitter.Fields
}

func newFieldAccumulator(present map[string]bool) *fieldAccumulator {
	a := &fieldAccumulator{}
	a.f.XYZ = [][]float64{}
	a.f.Phot = []float64{}
	a.f.FrameIx = []int64{}
	a.f.ID = []int64{}
	if present[emitter.FieldProb] {
		a.f.Prob = []float64{}
	}
	if present[emitter.FieldBg] {
		a.f.Bg = []float64{}
	}
	if present[emitter.FieldColor] {
		a.f.Color = []int64{}
	}
	if present[emitter.FieldXYZSig] {
		a.f.XYZSig = [][]float64{}
	}
	if present[emitter.FieldPhotSig] {
		a.f.PhotSig = []float64{}
	}
	if present[emitter.FieldBgSig] {
		a.f.BgSig = []float64{}
	}
	if present[emitter.FieldXYZCr] {
		a.f.XYZCr = [][]float64{}
	}
	if present[emitter.FieldPhotCr] {
		a.f.PhotCr = []float64{}
	}
	if present[emitter.FieldBgCr] {
		a.f.BgCr = []float64{}
	}
	return a
}

func nullReal(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullVec(v [3]sql.NullFloat64) []float64 {
	return []float64{nullReal(v[0]), nullReal(v[1]), nullReal(v[2])}
}

func appendIfPresent(dst []float64, v sql.NullFloat64) []float64 {
	if dst == nil {
		return nil
	}
	return append(dst, nullReal(v))
}

func (a *fieldAccumulator) appendRow(frameIx, id int64, xyz [3]sql.NullFloat64, phot, prob, bg sql.NullFloat64,
	color sql.NullInt64, sig [3]sql.NullFloat64, photSig, bgSig sql.NullFloat64,
	cr [3]sql.NullFloat64, photCr, bgCr sql.NullFloat64) {
	f := &a.f
	f.FrameIx = append(f.FrameIx, frameIx)
	f.ID = append(f.ID, id)
	f.XYZ = append(f.XYZ, nullVec(xyz))
	f.Phot = append(f.Phot, nullReal(phot))
	f.Prob = appendIfPresent(f.Prob, prob)
	f.Bg = appendIfPresent(f.Bg, bg)
	if f.Color != nil {
		c := int64(-1)
		if color.Valid {
			c = color.Int64
		}
		f.Color = append(f.Color, c)
	}
	if f.XYZSig != nil {
		f.XYZSig = append(f.XYZSig, nullVec(sig))
	}
	f.PhotSig = appendIfPresent(f.PhotSig, photSig)
	f.BgSig = appendIfPresent(f.BgSig, bgSig)
	if f.XYZCr != nil {
		f.XYZCr = append(f.XYZCr, nullVec(cr))
	}
	f.PhotCr = appendIfPresent(f.PhotCr, photCr)
	f.BgCr = appendIfPresent(f.BgCr, bgCr)
}

func (a *fieldAccumulator) fields() emitter.Fields { return a.f }

func formatPxSize(p *units.PxSize) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(p[0], 'g', -1, 64) + "," + strconv.FormatFloat(p[1], 'g', -1, 64)
}
