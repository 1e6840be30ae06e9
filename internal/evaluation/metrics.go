// Package evaluation scores a match result with detection and localisation
// metrics.
package evaluation

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/decode/internal/match"
)

// Efficiency weights for the lateral and axial rmse.
const (
	AlphaLat = 1.0
	AlphaAx  = 0.5
)

// Metrics summarises a match. Ratios with a zero denominator and errors
// without true positives are NaN.
type Metrics struct {
	TP int
	FP int
	FN int

	Precision float64
	Recall    float64
	Jaccard   float64
	F1        float64

	RMSELat float64
	RMSEAx  float64
	RMSEVol float64
	MADLat  float64
	MADAx   float64
	MADVol  float64

	EffLat float64
	EffAx  float64
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// Evaluate computes the metrics of res. Distances are taken in the native
// unit of the sets.
func Evaluate(res *match.Result) Metrics {
	m := Metrics{TP: res.TP.Len(), FP: res.FP.Len(), FN: res.FN.Len()}
	tp, fp, fn := float64(m.TP), float64(m.FP), float64(m.FN)

	m.Precision = ratio(tp, tp+fp)
	m.Recall = ratio(tp, tp+fn)
	m.Jaccard = ratio(tp, tp+fp+fn)
	m.F1 = ratio(2*m.Precision*m.Recall, m.Precision+m.Recall)

	out, tar := res.TP.XYZ(), res.TPMatch.XYZ()
	n := min(len(out), len(tar))
	sqLat, sqAx, sqVol := make([]float64, n), make([]float64, n), make([]float64, n)
	absLat, absAx, absVol := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		lat := floats.Distance(out[i][:2], tar[i][:2], 2)
		ax := math.Abs(out[i][2] - tar[i][2])
		sqLat[i] = lat * lat
		sqAx[i] = ax * ax
		sqVol[i] = sqLat[i] + sqAx[i]
		absLat[i] = floats.Distance(out[i][:2], tar[i][:2], 1)
		absAx[i] = ax
		absVol[i] = absLat[i] + ax
	}
	if n == 0 {
		nan := math.NaN()
		m.RMSELat, m.RMSEAx, m.RMSEVol = nan, nan, nan
		m.MADLat, m.MADAx, m.MADVol = nan, nan, nan
	} else {
		m.RMSELat = math.Sqrt(stat.Mean(sqLat, nil))
		m.RMSEAx = math.Sqrt(stat.Mean(sqAx, nil))
		m.RMSEVol = math.Sqrt(stat.Mean(sqVol, nil))
		m.MADLat = stat.Mean(absLat, nil)
		m.MADAx = stat.Mean(absAx, nil)
		m.MADVol = stat.Mean(absVol, nil)
	}

	m.EffLat = Efficiency(m.Jaccard, m.RMSELat, AlphaLat)
	m.EffAx = Efficiency(m.Jaccard, m.RMSEAx, AlphaAx)
	return m
}

// Efficiency combines the Jaccard index (in [0, 1]) and an rmse into a
// single score, 1 being perfect.
func Efficiency(jaccard, rmse, alpha float64) float64 {
	return (100 - math.Sqrt(math.Pow(100*(1-jaccard), 2)+alpha*alpha*rmse*rmse)) / 100
}

// Values lists the metrics by their stable snake_case names.
func (m Metrics) Values() map[string]float64 {
	return map[string]float64{
		"tp":        float64(m.TP),
		"fp":        float64(m.FP),
		"fn":        float64(m.FN),
		"precision": m.Precision,
		"recall":    m.Recall,
		"jaccard":   m.Jaccard,
		"f1":        m.F1,
		"rmse_lat":  m.RMSELat,
		"rmse_ax":   m.RMSEAx,
		"rmse_vol":  m.RMSEVol,
		"mad_lat":   m.MADLat,
		"mad_ax":    m.MADAx,
		"mad_vol":   m.MADVol,
		"eff_lat":   m.EffLat,
		"eff_ax":    m.EffAx,
	}
}

// MarshalJSON encodes the metrics by name, with NaN as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)
	for k, v := range m.Values() {
		if math.IsNaN(v) {
			out[k] = nil
		} else {
			out[k] = v
		}
	}
	return json.Marshal(out)
}
