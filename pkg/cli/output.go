package cli

import (
	"math"

	"github.com/mchmarny/sfi/pkg/fusion"
)

// num maps NaN to nil so results stay encodable as JSON.
func num(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

type keyView struct {
	Key   string   `json:"key" yaml:"key"`
	Value *float64 `json:"value" yaml:"value"`
}

func keyViews(keys []fusion.KeyNumber) []keyView {
	out := make([]keyView, len(keys))
	for i, k := range keys {
		out[i] = keyView{Key: k.Key, Value: num(k.Value)}
	}
	return out
}

type distanceView struct {
	ImageUID    string   `json:"image_uid" yaml:"imageUID"`
	StyleAbbrev string   `json:"style_abbrev" yaml:"styleAbbrev"`
	Metric      string   `json:"metric" yaml:"metric"`
	DC          *float64 `json:"dc" yaml:"dc"`
	DW          *float64 `json:"dw" yaml:"dw"`
}

func distanceViews(rows []fusion.DistanceRecord) []distanceView {
	out := make([]distanceView, len(rows))
	for i, r := range rows {
		out[i] = distanceView{
			ImageUID:    r.ImageUID,
			StyleAbbrev: r.StyleAbbrev,
			Metric:      r.Metric,
			DC:          num(r.DC),
			DW:          num(r.DW),
		}
	}
	return out
}

type agreementView struct {
	Matched     int      `json:"matched" yaml:"matched"`
	Unmatched   int      `json:"unmatched" yaml:"unmatched"`
	MeanAbsDiff *float64 `json:"mean_abs_diff" yaml:"meanAbsDiff"`
	MaxAbsDiff  *float64 `json:"max_abs_diff" yaml:"maxAbsDiff"`
}

func newAgreementView(s fusion.AgreementSummary) agreementView {
	return agreementView{
		Matched:     s.Matched,
		Unmatched:   s.Unmatched,
		MeanAbsDiff: num(s.MeanAbsDiff),
		MaxAbsDiff:  num(s.MaxAbsDiff),
	}
}
