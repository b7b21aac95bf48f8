package fusion

import (
	"math"
)

// DirectionSummary reports how often images were closer to the origin
// pool than to the comparison pool within one group.
type DirectionSummary struct {
	Metric        string  `json:"metric,omitempty" yaml:"metric,omitempty"`
	Dimension     string  `json:"dimension" yaml:"dimension"`
	N             int     `json:"n" yaml:"n"`
	Compared      int     `json:"n_compared" yaml:"nCompared"`
	PCloserCN     float64 `json:"p_closer_CN" yaml:"pCloserCN"`
	MeanDC        float64 `json:"mean_dc" yaml:"meanDC"`
	MeanDW        float64 `json:"mean_dw" yaml:"meanDW"`
	MeanDWMinusDC float64 `json:"mean_dw_minus_dc" yaml:"meanDWMinusDC"`
}

// CloserCN returns 1 when dc < dw, 0 otherwise, and false when either
// distance is undefined.
func CloserCN(dc, dw float64) (float64, bool) {
	if math.IsNaN(dc) || math.IsNaN(dw) {
		return 0, false
	}
	if dc < dw {
		return 1, true
	}
	return 0, true
}

func closerValues(rows []ScoredRecord) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		v, ok := CloserCN(r.DC, r.DW)
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

func summarizeDirection(rows []ScoredRecord) DirectionSummary {
	images := make(map[string]bool)
	dc := make([]float64, len(rows))
	dw := make([]float64, len(rows))
	for i, r := range rows {
		images[r.ImageUID] = true
		dc[i] = r.DC
		dw[i] = r.DW
	}
	closer := closerValues(rows)
	s := DirectionSummary{
		N:         len(images),
		Compared:  len(Defined(closer)),
		PCloserCN: MeanDefined(closer),
		MeanDC:    MeanDefined(dc),
		MeanDW:    MeanDefined(dw),
	}
	s.MeanDWMinusDC = s.MeanDW - s.MeanDC
	return s
}

// DirectionByMetric summarizes directional consistency per metric. Rows
// with an undefined dw are excluded from p_closer_CN.
func DirectionByMetric(rows []ScoredRecord) []DirectionSummary {
	g := Group(rows, ByMetric)
	out := make([]DirectionSummary, 0, len(g.Keys))
	for _, k := range g.Keys {
		members := g.Members[k]
		s := summarizeDirection(members)
		s.Metric = k.Metric
		s.Dimension = members[0].Dimension
		out = append(out, s)
	}
	return out
}

// DirectionByDimension summarizes directional consistency per dimension.
func DirectionByDimension(rows []ScoredRecord) []DirectionSummary {
	g := Group(rows, ByDimension)
	out := make([]DirectionSummary, 0, len(g.Keys))
	for _, k := range g.Keys {
		s := summarizeDirection(g.Members[k])
		s.Dimension = k.Dimension
		out = append(out, s)
	}
	return out
}

// DirectionOverall is p_closer_CN over every row with a defined dw.
func DirectionOverall(rows []ScoredRecord) float64 {
	return MeanDefined(closerValues(rows))
}
