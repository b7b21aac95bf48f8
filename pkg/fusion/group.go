package fusion

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// GroupKey identifies an aggregation group. Unused parts are empty.
type GroupKey struct {
	ImageUID  string
	Dimension string
	Metric    string
}

func (k GroupKey) less(o GroupKey) bool {
	if k.ImageUID != o.ImageUID {
		return k.ImageUID < o.ImageUID
	}
	if k.Dimension != o.Dimension {
		return k.Dimension < o.Dimension
	}
	return k.Metric < o.Metric
}

// KeyFunc derives the group key of a row.
type KeyFunc func(ScoredRecord) GroupKey

var (
	ByImageDimension KeyFunc = func(r ScoredRecord) GroupKey {
		return GroupKey{ImageUID: r.ImageUID, Dimension: r.Dimension}
	}
	ByImage KeyFunc = func(r ScoredRecord) GroupKey {
		return GroupKey{ImageUID: r.ImageUID}
	}
	ByMetric KeyFunc = func(r ScoredRecord) GroupKey {
		return GroupKey{Metric: r.Metric}
	}
	ByDimension KeyFunc = func(r ScoredRecord) GroupKey {
		return GroupKey{Dimension: r.Dimension}
	}
)

// Groups maps group keys to their member rows. Keys are sorted and
// members keep input order.
type Groups struct {
	Keys    []GroupKey
	Members map[GroupKey][]ScoredRecord
}

// Group partitions rows by key.
func Group(rows []ScoredRecord, key KeyFunc) *Groups {
	g := &Groups{Members: make(map[GroupKey][]ScoredRecord)}
	for _, r := range rows {
		k := key(r)
		if _, ok := g.Members[k]; !ok {
			g.Keys = append(g.Keys, k)
		}
		g.Members[k] = append(g.Members[k], r)
	}
	sort.Slice(g.Keys, func(i, j int) bool { return g.Keys[i].less(g.Keys[j]) })
	return g
}

// RenormalizeWeights divides each row's weight by the sum of weights in
// rows. A zero or undefined sum yields NaN weights.
func RenormalizeWeights(rows []ScoredRecord) []float64 {
	out := make([]float64, len(rows))
	var total float64
	for _, r := range rows {
		total += r.Weight
	}
	for i, r := range rows {
		if total == 0 || math.IsNaN(total) {
			out[i] = math.NaN()
			continue
		}
		out[i] = r.Weight / total
	}
	return out
}

// WeightedMean returns sum(w_i*x_i)/sum(w_i). It is NaN for empty input,
// mismatched lengths, a zero weight sum, or any NaN value or weight.
func WeightedMean(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return math.NaN()
	}
	var total float64
	for i := range values {
		if math.IsNaN(values[i]) || math.IsNaN(weights[i]) {
			return math.NaN()
		}
		total += weights[i]
	}
	if total == 0 {
		return math.NaN()
	}
	return stat.Mean(values, weights)
}

func fsValues(rows []ScoredRecord) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.FS
	}
	return out
}

func rawWeights(rows []ScoredRecord) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Weight
	}
	return out
}

// DimFS computes the dimension-level score of every (image, dimension)
// group using weights renormalized within the group.
func DimFS(rows []ScoredRecord) []DimScore {
	g := Group(rows, ByImageDimension)
	out := make([]DimScore, 0, len(g.Keys))
	for _, k := range g.Keys {
		members := g.Members[k]
		out = append(out, DimScore{
			ImageUID:    k.ImageUID,
			Dimension:   k.Dimension,
			StyleAbbrev: members[0].StyleAbbrev,
			Value:       WeightedMean(fsValues(members), RenormalizeWeights(members)),
		})
	}
	return out
}

// MFS computes the image-level score of every image using the global
// (not renormalized) weights.
func MFS(rows []ScoredRecord) []ImageScore {
	g := Group(rows, ByImage)
	out := make([]ImageScore, 0, len(g.Keys))
	for _, k := range g.Keys {
		members := g.Members[k]
		out = append(out, ImageScore{
			ImageUID:    k.ImageUID,
			StyleAbbrev: members[0].StyleAbbrev,
			MFS:         WeightedMean(fsValues(members), rawWeights(members)),
		})
	}
	return out
}
