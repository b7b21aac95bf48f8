package fusion

import (
	"math"

	"github.com/pkg/errors"
)

// Agreement compares one recomputed dimension score with the released one.
type Agreement struct {
	ImageUID  string  `json:"image_uid" yaml:"imageUID"`
	Dimension string  `json:"dimension" yaml:"dimension"`
	Calc      float64 `json:"dimfs_calc" yaml:"dimfsCalc"`
	Released  float64 `json:"dimfs" yaml:"dimfs"`
	AbsDiff   float64 `json:"abs_diff" yaml:"absDiff"`
	Matched   bool    `json:"matched" yaml:"matched"`
}

// AgreementSummary holds the regression statistics of a reconciliation.
type AgreementSummary struct {
	MeanAbsDiff float64 `json:"mean_abs_diff" yaml:"meanAbsDiff"`
	MaxAbsDiff  float64 `json:"max_abs_diff" yaml:"maxAbsDiff"`
	Matched     int     `json:"matched" yaml:"matched"`
	Unmatched   int     `json:"unmatched" yaml:"unmatched"`
}

// Reconcile looks up the released score of every computed (image,
// dimension) row. Rows without a released counterpart are kept with
// Matched false and NaN released and abs_diff values. Duplicate released
// keys are an error.
func Reconcile(calc, released []DimScore) ([]Agreement, error) {
	index := make(map[GroupKey]float64, len(released))
	for _, r := range released {
		k := GroupKey{ImageUID: r.ImageUID, Dimension: r.Dimension}
		if _, ok := index[k]; ok {
			return nil, errors.Errorf("duplicate released score for %s/%s", r.ImageUID, r.Dimension)
		}
		index[k] = r.Value
	}

	out := make([]Agreement, len(calc))
	for i, c := range calc {
		a := Agreement{
			ImageUID:  c.ImageUID,
			Dimension: c.Dimension,
			Calc:      c.Value,
			Released:  math.NaN(),
			AbsDiff:   math.NaN(),
		}
		if v, ok := index[GroupKey{ImageUID: c.ImageUID, Dimension: c.Dimension}]; ok {
			a.Released = v
			a.AbsDiff = math.Abs(c.Value - v)
			a.Matched = true
		}
		out[i] = a
	}
	return out, nil
}

// SummarizeAgreement reports mean and max abs_diff over defined rows.
func SummarizeAgreement(rows []Agreement) AgreementSummary {
	diffs := make([]float64, 0, len(rows))
	var s AgreementSummary
	for _, r := range rows {
		if r.Matched {
			s.Matched++
		} else {
			s.Unmatched++
		}
		diffs = append(diffs, r.AbsDiff)
	}
	s.MeanAbsDiff = MeanDefined(diffs)
	s.MaxAbsDiff = MaxDefined(diffs)
	return s
}
