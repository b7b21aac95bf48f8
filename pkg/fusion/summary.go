package fusion

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Key-number names, in report order.
const (
	KeyImages        = "n_images"
	KeyMetrics       = "n_metrics"
	KeyDimensions    = "n_dimensions"
	KeyPowerMeanP    = "power_mean_p"
	KeyMFSMean       = "mfs_mean"
	KeyMFSMedian     = "mfs_median"
	KeyAbsDiffMean   = "dimfs_absdiff_mean"
	KeyAbsDiffMax    = "dimfs_absdiff_max"
	KeyCloserOverall = "direction_p_closer_CN_overall"
)

// KeyNames lists the fixed key set of the key-numbers summary.
var KeyNames = []string{
	KeyImages, KeyMetrics, KeyDimensions, KeyPowerMeanP, KeyMFSMean,
	KeyMFSMedian, KeyAbsDiffMean, KeyAbsDiffMax, KeyCloserOverall,
}

// Report is everything recomputed from a distance table.
type Report struct {
	PowerMeanP       float64            `json:"power_mean_p" yaml:"powerMeanP"`
	Scored           []ScoredRecord     `json:"-" yaml:"-"`
	DimFS            []DimScore         `json:"-" yaml:"-"`
	MFS              []ImageScore       `json:"-" yaml:"-"`
	Agreement        []Agreement        `json:"-" yaml:"-"`
	AgreementSummary AgreementSummary   `json:"agreement" yaml:"agreement"`
	ByMetric         []DirectionSummary `json:"direction_by_metric" yaml:"directionByMetric"`
	ByDimension      []DirectionSummary `json:"direction_by_dimension" yaml:"directionByDimension"`
	UnmatchedMetrics []string           `json:"unmatched_metrics,omitempty" yaml:"unmatchedMetrics,omitempty"`
	KeyNumbers       []KeyNumber        `json:"key_numbers" yaml:"keyNumbers"`
}

// Reproduce fuses the distance rows with power-mean exponent p and
// reconciles the dimension scores against the released table.
func Reproduce(records []DistanceRecord, weights *WeightTable, released []DimScore, p float64) (*Report, error) {
	if weights == nil {
		return nil, errors.New("weight table required")
	}
	if p <= 0 {
		return nil, errors.Errorf("power mean exponent must be positive, got %g", p)
	}

	r := &Report{PowerMeanP: p}
	r.Scored = Score(records, weights, p)
	r.UnmatchedMetrics = UnmatchedMetrics(r.Scored)
	r.DimFS = DimFS(r.Scored)
	r.MFS = MFS(r.Scored)

	var err error
	if r.Agreement, err = Reconcile(r.DimFS, released); err != nil {
		return nil, errors.Wrap(err, "reconciling dimension scores")
	}
	r.AgreementSummary = SummarizeAgreement(r.Agreement)
	r.ByMetric = DirectionByMetric(r.Scored)
	r.ByDimension = DirectionByDimension(r.Scored)

	dims := distinctDimensions(released)
	if dims == 0 {
		dims = len(weights.Dimensions())
	}
	r.KeyNumbers = r.keyNumbers(dims)
	return r, nil
}

func (r *Report) keyNumbers(dims int) []KeyNumber {
	images := make(map[string]bool)
	metrics := make(map[string]bool)
	for _, s := range r.Scored {
		images[s.ImageUID] = true
		metrics[s.Metric] = true
	}
	mfs := make([]float64, len(r.MFS))
	for i, m := range r.MFS {
		mfs[i] = m.MFS
	}
	return []KeyNumber{
		{Key: KeyImages, Value: float64(len(images))},
		{Key: KeyMetrics, Value: float64(len(metrics))},
		{Key: KeyDimensions, Value: float64(dims)},
		{Key: KeyPowerMeanP, Value: r.PowerMeanP},
		{Key: KeyMFSMean, Value: MeanDefined(mfs)},
		{Key: KeyMFSMedian, Value: MedianDefined(mfs)},
		{Key: KeyAbsDiffMean, Value: r.AgreementSummary.MeanAbsDiff},
		{Key: KeyAbsDiffMax, Value: r.AgreementSummary.MaxAbsDiff},
		{Key: KeyCloserOverall, Value: DirectionOverall(r.Scored)},
	}
}

// KeyNumber returns the value of key, or NaN when absent.
func (r *Report) KeyNumber(key string) float64 {
	for _, k := range r.KeyNumbers {
		if k.Key == key {
			return k.Value
		}
	}
	return math.NaN()
}

func distinctDimensions(scores []DimScore) int {
	seen := make(map[string]bool)
	for _, s := range scores {
		seen[s.Dimension] = true
	}
	return len(seen)
}

// StyleSummary aggregates scores of one style (and dimension).
type StyleSummary struct {
	StyleAbbrev string  `json:"style_abbrev" yaml:"styleAbbrev"`
	Dimension   string  `json:"dimension,omitempty" yaml:"dimension,omitempty"`
	N           int     `json:"n" yaml:"n"`
	Mean        float64 `json:"mean" yaml:"mean"`
	Median      float64 `json:"median" yaml:"median"`
}

// DimensionSummary describes the distribution of one dimension's scores.
type DimensionSummary struct {
	Dimension string  `json:"dimension" yaml:"dimension"`
	N         int     `json:"n" yaml:"n"`
	Mean      float64 `json:"mean" yaml:"mean"`
	Median    float64 `json:"median" yaml:"median"`
	Q25       float64 `json:"q25" yaml:"q25"`
	Q75       float64 `json:"q75" yaml:"q75"`
}

type bucket struct {
	images map[string]bool
	values []float64
}

func newBucket() *bucket {
	return &bucket{images: make(map[string]bool)}
}

func (b *bucket) add(image string, v float64) {
	b.images[image] = true
	b.values = append(b.values, v)
}

// MFSByStyle summarizes image scores per style, highest mean first.
func MFSByStyle(scores []ImageScore) []StyleSummary {
	buckets := make(map[string]*bucket)
	for _, s := range scores {
		b, ok := buckets[s.StyleAbbrev]
		if !ok {
			b = newBucket()
			buckets[s.StyleAbbrev] = b
		}
		b.add(s.ImageUID, s.MFS)
	}
	out := make([]StyleSummary, 0, len(buckets))
	for style, b := range buckets {
		out = append(out, StyleSummary{
			StyleAbbrev: style,
			N:           len(b.images),
			Mean:        MeanDefined(b.values),
			Median:      MedianDefined(b.values),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Mean, out[j].Mean
		switch {
		case math.IsNaN(a) != math.IsNaN(b):
			return !math.IsNaN(a)
		case a != b && !math.IsNaN(a):
			return a > b
		default:
			return out[i].StyleAbbrev < out[j].StyleAbbrev
		}
	})
	return out
}

// DimFSOverall summarizes dimension scores per dimension, sorted by name.
func DimFSOverall(scores []DimScore) []DimensionSummary {
	buckets := make(map[string]*bucket)
	for _, s := range scores {
		b, ok := buckets[s.Dimension]
		if !ok {
			b = newBucket()
			buckets[s.Dimension] = b
		}
		b.add(s.ImageUID, s.Value)
	}
	out := make([]DimensionSummary, 0, len(buckets))
	for dim, b := range buckets {
		out = append(out, DimensionSummary{
			Dimension: dim,
			N:         len(b.images),
			Mean:      MeanDefined(b.values),
			Median:    MedianDefined(b.values),
			Q25:       Quantile(b.values, 0.25),
			Q75:       Quantile(b.values, 0.75),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dimension < out[j].Dimension })
	return out
}

// DimFSByStyle summarizes dimension scores per (style, dimension).
func DimFSByStyle(scores []DimScore) []StyleSummary {
	type key struct{ style, dim string }
	buckets := make(map[key]*bucket)
	for _, s := range scores {
		k := key{s.StyleAbbrev, s.Dimension}
		b, ok := buckets[k]
		if !ok {
			b = newBucket()
			buckets[k] = b
		}
		b.add(s.ImageUID, s.Value)
	}
	out := make([]StyleSummary, 0, len(buckets))
	for k, b := range buckets {
		out = append(out, StyleSummary{
			StyleAbbrev: k.style,
			Dimension:   k.dim,
			N:           len(b.images),
			Mean:        MeanDefined(b.values),
			Median:      MedianDefined(b.values),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StyleAbbrev != out[j].StyleAbbrev {
			return out[i].StyleAbbrev < out[j].StyleAbbrev
		}
		return out[i].Dimension < out[j].Dimension
	})
	return out
}

// AttachStyles fills missing style abbreviations from the distance rows
// of the same image.
func AttachStyles(scores []DimScore, records []DistanceRecord) []DimScore {
	styles := make(map[string]string, len(records))
	for _, r := range records {
		if _, ok := styles[r.ImageUID]; !ok {
			styles[r.ImageUID] = r.StyleAbbrev
		}
	}
	out := make([]DimScore, len(scores))
	for i, s := range scores {
		if s.StyleAbbrev == "" {
			s.StyleAbbrev = styles[s.ImageUID]
		}
		out[i] = s
	}
	return out
}

// SortedWeights returns the weight rows ordered by weight, highest first.
func SortedWeights(t *WeightTable) []MetricWeight {
	list := t.List()
	sort.SliceStable(list, func(i, j int) bool { return list[i].Weight > list[j].Weight })
	return list
}
