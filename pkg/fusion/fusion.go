// Package fusion turns pooled directional distances into metric-level,
// dimension-level and image-level scores.
package fusion

import (
	"log/slog"
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Proximity converts a distance into a proximity. NaN propagates.
func Proximity(d float64) float64 {
	return 1 - d
}

// PowerMean returns ((sum x_i^p) / n)^(1/p). It is NaN for empty input,
// non-positive p, or when any operand is NaN.
func PowerMean(p float64, xs ...float64) float64 {
	if len(xs) == 0 || p <= 0 {
		return math.NaN()
	}
	var s float64
	for _, x := range xs {
		s += math.Pow(x, p)
	}
	return math.Pow(s/float64(len(xs)), 1/p)
}

// FusionScore combines origin and comparison proximities with a power mean
// of exponent p. Either proximity being NaN yields NaN.
func FusionScore(p, pcn, pw float64) float64 {
	return PowerMean(p, pcn, pw)
}

// WeightTable is a key-indexed view of the static metric weights.
type WeightTable struct {
	byMetric map[string]MetricWeight
	order    []string
}

// NewWeightTable indexes weights by metric. Duplicate metrics, empty names
// and negative or non-finite weights are errors.
func NewWeightTable(list []MetricWeight) (*WeightTable, error) {
	t := &WeightTable{byMetric: make(map[string]MetricWeight, len(list))}
	for _, w := range list {
		if w.Metric == "" || w.Dimension == "" {
			return nil, errors.Errorf("weight row requires metric and dimension: %+v", w)
		}
		if w.Weight < 0 || math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) {
			return nil, errors.Errorf("invalid weight %v for metric %s", w.Weight, w.Metric)
		}
		if _, ok := t.byMetric[w.Metric]; ok {
			return nil, errors.Errorf("duplicate weight for metric %s", w.Metric)
		}
		t.byMetric[w.Metric] = w
		t.order = append(t.order, w.Metric)
	}
	return t, nil
}

// Lookup returns the weight row of metric.
func (t *WeightTable) Lookup(metric string) (MetricWeight, bool) {
	w, ok := t.byMetric[metric]
	return w, ok
}

// List returns the weight rows in input order.
func (t *WeightTable) List() []MetricWeight {
	out := make([]MetricWeight, 0, len(t.order))
	for _, m := range t.order {
		out = append(out, t.byMetric[m])
	}
	return out
}

// Total returns the sum of all weights.
func (t *WeightTable) Total() float64 {
	var s float64
	for _, w := range t.byMetric {
		s += w.Weight
	}
	return s
}

// Dimensions returns the distinct dimensions in sorted order.
func (t *WeightTable) Dimensions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range t.byMetric {
		if !seen[w.Dimension] {
			seen[w.Dimension] = true
			out = append(out, w.Dimension)
		}
	}
	sort.Strings(out)
	return out
}

// Score joins each distance row to its metric weight and computes the
// proximities and fusion score. Rows whose metric is not in the table keep
// Matched false, the Unmatched dimension and a NaN weight.
func Score(records []DistanceRecord, weights *WeightTable, p float64) []ScoredRecord {
	out := make([]ScoredRecord, len(records))
	for i, r := range records {
		s := ScoredRecord{
			DistanceRecord: r,
			Dimension:      Unmatched,
			Weight:         math.NaN(),
			PCN:            Proximity(r.DC),
			PW:             Proximity(r.DW),
		}
		if w, ok := weights.Lookup(r.Metric); ok {
			s.Dimension = w.Dimension
			s.Weight = w.Weight
			s.Matched = true
		}
		s.FS = FusionScore(p, s.PCN, s.PW)
		out[i] = s
	}
	return out
}

// UnmatchedMetrics lists the distinct metrics that found no weight row.
func UnmatchedMetrics(rows []ScoredRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if !r.Matched && !seen[r.Metric] {
			seen[r.Metric] = true
			out = append(out, r.Metric)
		}
	}
	sort.Strings(out)
	if len(out) > 0 {
		slog.Warn("metrics missing from weight table", "metrics", out)
	}
	return out
}
