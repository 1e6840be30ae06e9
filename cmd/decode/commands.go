package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/decode/internal/config"
	"github.com/banshee-data/decode/internal/db"
	"github.com/banshee-data/decode/internal/emitter"
	"github.com/banshee-data/decode/internal/emitter/store"
	"github.com/banshee-data/decode/internal/evaluation"
	"github.com/banshee-data/decode/internal/match"
	"github.com/banshee-data/decode/internal/monitoring"
	"github.com/banshee-data/decode/internal/postprocess"
	"github.com/banshee-data/decode/internal/units"
)

// loadTuning reads path, or returns the built-in defaults when path is empty.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func saveOptions(cfg *config.TuningConfig, override string) ([]store.SaveOption, error) {
	name := cfg.GetCompression()
	if override != "" {
		name = override
	}
	c, err := store.ParseCompression(name)
	if err != nil {
		return nil, err
	}
	return []store.SaveOption{store.WithCompression(c)}, nil
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	in := fs.String("in", "", "Input emitter file (required)")
	out := fs.String("out", "", "Output emitter file (required)")
	compress := fs.String("compress", "", "Binary compression: none, lz4 or zstd")
	configPath := fs.String("config", "", "Tuning config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("--in and --out are required")
	}

	cfg, err := loadTuning(*configPath)
	if err != nil {
		return err
	}
	opts, err := saveOptions(cfg, *compress)
	if err != nil {
		return err
	}
	s, err := store.Load(*in)
	if err != nil {
		return fmt.Errorf("load %s: %w", *in, err)
	}
	if err := store.Save(*out, s, opts...); err != nil {
		return fmt.Errorf("save %s: %w", *out, err)
	}
	monitoring.Logf("converted %d emitters from %s to %s", s.Len(), *in, *out)
	return nil
}

// looseColumns are the recognised header names of a loose emitter CSV.
var looseColumns = []string{"x", "y", "z", "intensity", "ontime", "t0"}

// readLooseCSV parses a headed CSV with columns x, y, z, intensity, ontime,
// t0 and an optional id. Column order is free.
func readLooseCSV(r io.Reader) (emitter.LooseFields, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return emitter.LooseFields{}, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range looseColumns {
		if _, ok := col[name]; !ok {
			return emitter.LooseFields{}, fmt.Errorf("missing column %q", name)
		}
	}
	idCol, hasID := col["id"]

	var f emitter.LooseFields
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return emitter.LooseFields{}, err
		}
		v := make(map[string]float64, len(looseColumns))
		for _, name := range looseColumns {
			v[name], err = strconv.ParseFloat(strings.TrimSpace(rec[col[name]]), 64)
			if err != nil {
				return emitter.LooseFields{}, fmt.Errorf("line %d, column %s: %w", line, name, err)
			}
		}
		f.XYZ = append(f.XYZ, []float64{v["x"], v["y"], v["z"]})
		f.Intensity = append(f.Intensity, v["intensity"])
		f.Ontime = append(f.Ontime, v["ontime"])
		f.T0 = append(f.T0, v["t0"])
		if hasID {
			id, err := strconv.ParseInt(strings.TrimSpace(rec[idCol]), 10, 64)
			if err != nil {
				return emitter.LooseFields{}, fmt.Errorf("line %d, column id: %w", line, err)
			}
			f.ID = append(f.ID, id)
		}
	}
	if f.XYZ == nil {
		f.XYZ = [][]float64{}
	}
	return f, nil
}

// metaOptions turns the xy_unit and px_size settings into emitter options.
func metaOptions(cfg *config.TuningConfig) []emitter.Option {
	opts := []emitter.Option{emitter.WithXYUnit(units.Unit(cfg.GetXYUnit()))}
	if px := cfg.GetPxSize(); px != nil {
		opts = append(opts, emitter.WithPxSize(px[0], px[1]))
	}
	return opts
}

func runDistribute(args []string) error {
	fs := flag.NewFlagSet("distribute", flag.ContinueOnError)
	in := fs.String("in", "", "Loose emitter CSV (required)")
	out := fs.String("out", "", "Output emitter file (required)")
	first := fs.Int64("first", 0, "First frame to keep, with --last")
	last := fs.Int64("last", -1, "Frame after the last one to keep; negative keeps all frames")
	compress := fs.String("compress", "", "Binary compression: none, lz4 or zstd")
	configPath := fs.String("config", "", "Tuning config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("--in and --out are required")
	}

	cfg, err := loadTuning(*configPath)
	if err != nil {
		return err
	}
	opts, err := saveOptions(cfg, *compress)
	if err != nil {
		return err
	}

	file, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer file.Close()
	fields, err := readLooseCSV(file)
	if err != nil {
		return fmt.Errorf("parse %s: %w", *in, err)
	}
	loose, err := emitter.NewLooseSet(fields, metaOptions(cfg)...)
	if err != nil {
		return err
	}

	var s *emitter.Set
	if *last < 0 {
		s, err = loose.Distribute()
	} else {
		s, err = loose.DistributeFrames(*first, *last)
	}
	if err != nil {
		return err
	}
	if err := store.Save(*out, s, opts...); err != nil {
		return fmt.Errorf("save %s: %w", *out, err)
	}
	monitoring.Logf("distributed %d loose emitters into %d frame records", loose.Len(), s.Len())
	return nil
}

// readTensor decodes a JSON tensor of the form
// {"batch": B, "channels": C, "height": H, "width": W, "data": [...]}.
func readTensor(r io.Reader) (*postprocess.Tensor, error) {
	var t postprocess.Tensor
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode tensor: %w", err)
	}
	return &t, t.Validate()
}

func runPostprocess(args []string) error {
	fs := flag.NewFlagSet("postprocess", flag.ContinueOnError)
	in := fs.String("in", "", "Tensor JSON file (required)")
	out := fs.String("out", "", "Output emitter file (required)")
	workers := fs.Int("workers", -1, "Worker count; negative uses the config value")
	offset := fs.Int64("frame-offset", 0, "Added to the frame index of every emitter")
	compress := fs.String("compress", "", "Binary compression: none, lz4 or zstd")
	configPath := fs.String("config", "", "Tuning config file")
	method := fs.String("method", "consistency", "Processor: consistency, lookup, peaks or coordscan")
	minDistance := fs.Int("min-distance", 1, "Peak suppression radius in pixels (peaks)")
	eps := fs.Float64("eps", 1, "Cluster radius in output coordinates (coordscan)")
	photTh := fs.Float64("phot-th", 0, "Photons a core neighbourhood must gather (coordscan)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("--in and --out are required")
	}

	cfg, err := loadTuning(*configPath)
	if err != nil {
		return err
	}
	if *workers >= 0 {
		cfg.NumWorkers = workers
	}
	// Only a flat set can be written to a single file.
	batchSet := config.ReturnFormatBatchSet
	cfg.ReturnFormat = &batchSet
	if err := cfg.Validate(); err != nil {
		return err
	}
	opts, err := saveOptions(cfg, *compress)
	if err != nil {
		return err
	}

	file, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer file.Close()
	t, err := readTensor(file)
	if err != nil {
		return err
	}

	output := postprocess.OutputFromTuning(cfg)
	output.FrameOffset = *offset
	var pp postprocess.Processor
	switch *method {
	case "consistency":
		c, err := postprocess.ConsistencyFromTuning(cfg)
		if err != nil {
			return err
		}
		ppCfg := c.Config()
		ppCfg.Output = output
		pp, err = postprocess.NewConsistency(ppCfg)
		if err != nil {
			return err
		}
	case "lookup":
		pp, err = postprocess.NewLookUp(postprocess.LookUpConfig{RawTh: cfg.GetRawThreshold(), Output: output})
	case "peaks":
		pp, err = postprocess.NewPeakFinder(postprocess.PeakFinderConfig{
			Threshold:   cfg.GetRawThreshold(),
			MinDistance: *minDistance,
			Output:      output,
		})
	case "coordscan":
		pp, err = postprocess.NewCoordScan(postprocess.CoordScanConfig{
			RawTh:       cfg.GetRawThreshold(),
			Eps:         *eps,
			PhotTh:      *photTh,
			ClusterDims: cfg.GetMatchDims(),
			Output:      output,
		})
	default:
		return fmt.Errorf("unknown method %q, expected consistency, lookup, peaks or coordscan", *method)
	}
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := pp.Forward(t)
	if err != nil {
		return err
	}
	monitoring.Logf("post-processed %d frames into %d emitters in %s", t.Batch, res.Len(), time.Since(start))
	return store.Save(*out, res.Set, opts...)
}

func runMatch(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	outPath := fs.String("out", "", "Output (predicted) emitter file (required)")
	tarPath := fs.String("tar", "", "Target (ground truth) emitter file (required)")
	method := fs.String("method", "", "Matching method: greedy or nn; defaults to the config value")
	configPath := fs.String("config", "", "Tuning config file")
	dbPath := fs.String("db", "", "Store the evaluation in this database")
	name := fs.String("name", "", "Evaluation name, used with --db")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outPath == "" || *tarPath == "" {
		return errors.New("--out and --tar are required")
	}

	cfg, err := loadTuning(*configPath)
	if err != nil {
		return err
	}
	if *method != "" {
		cfg.MatchMethod = method
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	matcher, err := match.FromTuning(cfg)
	if err != nil {
		return err
	}

	out, err := store.Load(*outPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", *outPath, err)
	}
	tar, err := store.Load(*tarPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", *tarPath, err)
	}
	if out.XYUnit() != units.None && tar.XYUnit() != units.None && out.XYUnit() != tar.XYUnit() {
		return fmt.Errorf("xy units differ: output is %q, target is %q", out.XYUnit(), tar.XYUnit())
	}

	res, err := matcher.Match(out, tar)
	if err != nil {
		return err
	}
	metrics := evaluation.Evaluate(res)

	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			return err
		}
		defer database.Close()

		params, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		unit := tar.XYUnit()
		if unit == units.None {
			unit = out.XYUnit()
		}
		eval := &db.Evaluation{
			Name:       *name,
			OutputPath: *outPath,
			TargetPath: *tarPath,
			Method:     cfg.GetMatchMethod(),
			XYUnit:     string(unit),
			Metrics:    metrics,
			ParamsJSON: params,
		}
		if err := db.NewEvaluationStore(database.DB).Insert(eval); err != nil {
			return fmt.Errorf("store evaluation: %w", err)
		}
		monitoring.Logf("stored evaluation %s", eval.EvaluationID)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(metrics)
}

func runHist(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("hist", flag.ContinueOnError)
	in := fs.String("in", "", "Emitter file (required)")
	bins := fs.Int("bins", 0, "Histogram bins; defaults to the config value")
	plotDir := fs.String("plot-dir", "", "Write a PNG histogram per present field into this directory")
	configPath := fs.String("config", "", "Tuning config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("--in is required")
	}

	cfg, err := loadTuning(*configPath)
	if err != nil {
		return err
	}
	n := cfg.GetHistBins()
	if *bins > 0 {
		n = *bins
	}

	s, err := store.Load(*in)
	if err != nil {
		return fmt.Errorf("load %s: %w", *in, err)
	}
	summaries := s.HistDetection(n)

	keys := make([]string, 0, len(summaries))
	for k := range summaries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tCOUNT\tMEAN\tSTD\tMIN\tMAX")
	for _, k := range keys {
		sum := summaries[k]
		fmt.Fprintf(tw, "%s\t%d\t%.4g\t%.4g\t%.4g\t%.4g\n", k, sum.Count, sum.Mean, sum.Std, sum.Min, sum.Max)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if *plotDir == "" {
		return nil
	}
	return plotHistograms(*plotDir, keys, summaries, n)
}

// plotHistograms writes hist_<field>.png into dir for every non-empty field.
func plotHistograms(dir string, keys []string, summaries map[string]emitter.Summary, bins int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, k := range keys {
		sum := summaries[k]
		if sum.Count == 0 {
			continue
		}
		p := plot.New()
		p.Title.Text = k
		p.X.Label.Text = k
		p.Y.Label.Text = "count"
		h, err := plotter.NewHist(plotter.Values(sum.Values), bins)
		if err != nil {
			return fmt.Errorf("histogram %s: %w", k, err)
		}
		p.Add(h)

		file := filepath.Join(dir, fmt.Sprintf("hist_%s.png", k))
		if err := p.Save(8*vg.Inch, 4*vg.Inch, file); err != nil {
			return fmt.Errorf("save %s plot: %w", k, err)
		}
	}
	return nil
}

func runEvals(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("evals", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Evaluation database (required)")
	name := fs.String("name", "", "Only list evaluations with this name")
	del := fs.String("delete", "", "Delete the evaluation with this ID")
	asJSON := fs.Bool("json", false, "Print evaluations as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("--db is required")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	evals := db.NewEvaluationStore(database.DB)

	if *del != "" {
		if err := evals.Delete(*del); err != nil {
			return err
		}
		fmt.Fprintf(w, "deleted %s\n", *del)
		return nil
	}

	list, err := evals.List(*name)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMETHOD\tTP\tFP\tFN\tJACCARD\tRMSE_LAT\tCREATED")
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.4g\t%.4g\t%s\n",
			e.EvaluationID, e.Name, e.Method,
			e.Metrics.TP, e.Metrics.FP, e.Metrics.FN,
			e.Metrics.Jaccard, e.Metrics.RMSELat,
			time.Unix(0, e.CreatedAt).UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func runMigrate(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Evaluation database (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" || fs.NArg() != 1 {
		return errors.New("usage: decode migrate --db <file> up|down|version")
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	switch fs.Arg(0) {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", fs.Arg(0))
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema version %d", version)
	if dirty {
		fmt.Fprint(w, " (dirty)")
	}
	fmt.Fprintln(w)
	return nil
}
