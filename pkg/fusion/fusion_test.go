package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-12

func weightTable(t *testing.T, rows ...MetricWeight) *WeightTable {
	t.Helper()
	w, err := NewWeightTable(rows)
	require.NoError(t, err)
	return w
}

func TestProximity(t *testing.T) {
	assert.Equal(t, 0.8, Proximity(0.2))
	assert.True(t, math.IsNaN(Proximity(math.NaN())))
}

func TestPowerMean(t *testing.T) {
	assert.InDelta(t, 2.0, PowerMean(1, 1, 2, 3), tol)
	assert.True(t, math.IsNaN(PowerMean(0.55)))
	assert.True(t, math.IsNaN(PowerMean(0, 1, 1)))
	assert.True(t, math.IsNaN(PowerMean(0.55, 1, math.NaN())))
}

func TestFusionScore_Bounds(t *testing.T) {
	assert.Equal(t, 1.0, FusionScore(DefaultPowerMeanP, 1, 1))
	assert.Equal(t, 0.0, FusionScore(DefaultPowerMeanP, 0, 0))
	assert.True(t, math.IsNaN(FusionScore(DefaultPowerMeanP, 0.5, math.NaN())))
	assert.True(t, math.IsNaN(FusionScore(DefaultPowerMeanP, math.NaN(), 0.5)))
}

func TestFusionScore_Monotonic(t *testing.T) {
	steps := []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1}
	for _, p := range []float64{0.55, 1, 2} {
		for _, fixed := range steps {
			prevA, prevB := -1.0, -1.0
			for _, x := range steps {
				a := FusionScore(p, x, fixed)
				b := FusionScore(p, fixed, x)
				assert.GreaterOrEqual(t, a, prevA)
				assert.GreaterOrEqual(t, b, prevB)
				prevA, prevB = a, b
			}
		}
	}
}

func TestFusionScore_ArithmeticAtP1(t *testing.T) {
	assert.InDelta(t, 0.6, FusionScore(1, 0.8, 0.4), tol)
}

func TestNewWeightTable_Errors(t *testing.T) {
	tests := []struct {
		name string
		rows []MetricWeight
	}{
		{"duplicate", []MetricWeight{{"m1", "A", 0.5}, {"m1", "B", 0.5}}},
		{"empty metric", []MetricWeight{{"", "A", 1}}},
		{"empty dimension", []MetricWeight{{"m1", "", 1}}},
		{"negative", []MetricWeight{{"m1", "A", -1}}},
		{"nan", []MetricWeight{{"m1", "A", math.NaN()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWeightTable(tt.rows)
			assert.Error(t, err)
		})
	}
}

func TestWeightTable(t *testing.T) {
	w := weightTable(t,
		MetricWeight{"m2", "B", 0.2},
		MetricWeight{"m1", "A", 0.5},
		MetricWeight{"m3", "A", 0.3},
	)
	assert.InDelta(t, 1.0, w.Total(), tol)
	assert.Equal(t, []string{"A", "B"}, w.Dimensions())
	assert.Equal(t, "m2", w.List()[0].Metric)

	got, ok := w.Lookup("m3")
	assert.True(t, ok)
	assert.Equal(t, "A", got.Dimension)
	_, ok = w.Lookup("zz")
	assert.False(t, ok)

	sorted := SortedWeights(w)
	assert.Equal(t, []string{"m1", "m3", "m2"}, []string{sorted[0].Metric, sorted[1].Metric, sorted[2].Metric})
}

func TestScore_UnmatchedMetric(t *testing.T) {
	w := weightTable(t, MetricWeight{"m1", "A", 1})
	rows := Score([]DistanceRecord{
		{ImageUID: "i1", Metric: "m1", DC: 0.2, DW: 0.6},
		{ImageUID: "i1", Metric: "ghost", DC: 0.1, DW: 0.1},
	}, w, DefaultPowerMeanP)

	require.Len(t, rows, 2)
	assert.True(t, rows[0].Matched)
	assert.Equal(t, "A", rows[0].Dimension)
	assert.False(t, rows[1].Matched)
	assert.Equal(t, Unmatched, rows[1].Dimension)
	assert.True(t, math.IsNaN(rows[1].Weight))
	assert.Equal(t, []string{"ghost"}, UnmatchedMetrics(rows))

	// the unmatched metric makes the image score undefined instead of vanishing
	mfs := MFS(rows)
	require.Len(t, mfs, 1)
	assert.True(t, math.IsNaN(mfs[0].MFS))
}

func TestGroup(t *testing.T) {
	rows := []ScoredRecord{
		{DistanceRecord: DistanceRecord{ImageUID: "b", Metric: "m1"}, Dimension: "A"},
		{DistanceRecord: DistanceRecord{ImageUID: "a", Metric: "m2"}, Dimension: "B"},
		{DistanceRecord: DistanceRecord{ImageUID: "a", Metric: "m1"}, Dimension: "A"},
		{DistanceRecord: DistanceRecord{ImageUID: "a", Metric: "m3"}, Dimension: "A"},
	}

	g := Group(rows, ByImageDimension)
	assert.Equal(t, []GroupKey{
		{ImageUID: "a", Dimension: "A"},
		{ImageUID: "a", Dimension: "B"},
		{ImageUID: "b", Dimension: "A"},
	}, g.Keys)
	members := g.Members[GroupKey{ImageUID: "a", Dimension: "A"}]
	require.Len(t, members, 2)
	assert.Equal(t, "m1", members[0].Metric)
	assert.Equal(t, "m3", members[1].Metric)

	assert.Len(t, Group(rows, ByImage).Keys, 2)
	assert.Len(t, Group(rows, ByMetric).Keys, 3)
	assert.Len(t, Group(rows, ByDimension).Keys, 2)
}

func TestRenormalizeWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
	}{
		{"two", []float64{0.1, 0.3}},
		{"three", []float64{0.05, 0.2, 0.125}},
		{"single", []float64{0.4}},
		{"uneven", []float64{1e-6, 3, 0.7, 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]ScoredRecord, len(tt.weights))
			for i, w := range tt.weights {
				rows[i].Weight = w
			}
			got := RenormalizeWeights(rows)
			var sum float64
			for _, v := range got {
				sum += v
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func TestRenormalizeWeights_ZeroSum(t *testing.T) {
	got := RenormalizeWeights([]ScoredRecord{{Weight: 0}, {Weight: 0}})
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
}

func TestWeightedMean(t *testing.T) {
	assert.InDelta(t, 2.5, WeightedMean([]float64{1, 3}, []float64{1, 3}), tol)
	assert.InDelta(t, 2.5, WeightedMean([]float64{1, 3}, []float64{0.25, 0.75}), tol)
	assert.True(t, math.IsNaN(WeightedMean(nil, nil)))
	assert.True(t, math.IsNaN(WeightedMean([]float64{1}, []float64{1, 2})))
	assert.True(t, math.IsNaN(WeightedMean([]float64{1, 2}, []float64{0, 0})))
	assert.True(t, math.IsNaN(WeightedMean([]float64{1, math.NaN()}, []float64{1, 1})))
	assert.True(t, math.IsNaN(WeightedMean([]float64{1, 2}, []float64{1, math.NaN()})))
}

func twoImageFixture() []DistanceRecord {
	return []DistanceRecord{
		{ImageUID: "img1", StyleAbbrev: "Ch-AD", Metric: "m1", DC: 0.2, DW: 0.6},
		{ImageUID: "img1", StyleAbbrev: "Ch-AD", Metric: "m2", DC: 0.4, DW: 0.8},
		{ImageUID: "img2", StyleAbbrev: "Ch-BAR", Metric: "m1", DC: 0.1, DW: 0.3},
		{ImageUID: "img2", StyleAbbrev: "Ch-BAR", Metric: "m2", DC: 0.5, DW: 0.5},
	}
}

func TestEndToEnd_TwoImagesTwoDimensions(t *testing.T) {
	w := weightTable(t, MetricWeight{"m1", "dimA", 0.5}, MetricWeight{"m2", "dimB", 0.5})
	rows := Score(twoImageFixture(), w, DefaultPowerMeanP)

	fsImg1M1 := 0.5845668654307631
	fsImg1M2 := 0.3759171764505048
	assert.InDelta(t, fsImg1M1, rows[0].FS, tol)
	assert.InDelta(t, fsImg1M2, rows[1].FS, tol)
	assert.InDelta(t, 0.8, rows[0].PCN, tol)
	assert.InDelta(t, 0.4, rows[0].PW, tol)

	dims := DimFS(rows)
	require.Len(t, dims, 4)
	assert.Equal(t, DimScore{ImageUID: "img1", Dimension: "dimA", StyleAbbrev: "Ch-AD", Value: dims[0].Value}, dims[0])
	assert.InDelta(t, fsImg1M1, dims[0].Value, tol)
	assert.Equal(t, "dimB", dims[1].Dimension)
	assert.InDelta(t, fsImg1M2, dims[1].Value, tol)

	mfs := MFS(rows)
	require.Len(t, mfs, 2)
	assert.Equal(t, "img1", mfs[0].ImageUID)
	assert.InDelta(t, 0.48024202094063395, mfs[0].MFS, tol)
	assert.InDelta(t, 0.6485883155453687, mfs[1].MFS, tol)
}

func TestDimFS_RenormalizesWithinDimension(t *testing.T) {
	w := weightTable(t,
		MetricWeight{"m1", "A", 0.2},
		MetricWeight{"m2", "A", 0.6},
		MetricWeight{"m3", "B", 0.2},
	)
	rows := Score([]DistanceRecord{
		{ImageUID: "i", Metric: "m1", DC: 0.2, DW: 0.6},
		{ImageUID: "i", Metric: "m2", DC: 0.4, DW: 0.8},
		{ImageUID: "i", Metric: "m3", DC: 0.1, DW: 0.3},
	}, w, DefaultPowerMeanP)

	dims := DimFS(rows)
	require.Len(t, dims, 2)
	assert.InDelta(t, 0.4280795986955694, dims[0].Value, tol)
}

func TestDimFS_UndefinedComparisonPropagates(t *testing.T) {
	w := weightTable(t, MetricWeight{"m1", "A", 0.5}, MetricWeight{"m2", "A", 0.5})
	rows := Score([]DistanceRecord{
		{ImageUID: "i", Metric: "m1", DC: 0.2, DW: math.NaN()},
		{ImageUID: "i", Metric: "m2", DC: 0.4, DW: 0.8},
	}, w, DefaultPowerMeanP)

	assert.True(t, math.IsNaN(rows[0].FS))
	assert.False(t, math.IsNaN(rows[1].FS))
	assert.True(t, math.IsNaN(DimFS(rows)[0].Value))
	assert.True(t, math.IsNaN(MFS(rows)[0].MFS))
}

func TestDirection(t *testing.T) {
	w := weightTable(t, MetricWeight{"m1", "A", 0.5}, MetricWeight{"m2", "A", 0.5})
	var records []DistanceRecord
	for i := 0; i < 10; i++ {
		dc, dw := 0.5, 0.2
		if i < 7 {
			dc, dw = 0.2, 0.5
		}
		records = append(records, DistanceRecord{ImageUID: string(rune('a' + i)), Metric: "m1", DC: dc, DW: dw})
	}
	records = append(records,
		DistanceRecord{ImageUID: "a", Metric: "m2", DC: 0.1, DW: math.NaN()},
		DistanceRecord{ImageUID: "b", Metric: "m2", DC: 0.3, DW: 0.4},
	)
	rows := Score(records, w, DefaultPowerMeanP)

	byMetric := DirectionByMetric(rows)
	require.Len(t, byMetric, 2)
	m1 := byMetric[0]
	assert.Equal(t, "m1", m1.Metric)
	assert.Equal(t, "A", m1.Dimension)
	assert.Equal(t, 10, m1.N)
	assert.Equal(t, 10, m1.Compared)
	assert.InDelta(t, 0.7, m1.PCloserCN, tol)
	assert.InDelta(t, m1.MeanDW-m1.MeanDC, m1.MeanDWMinusDC, tol)

	m2 := byMetric[1]
	assert.Equal(t, 2, m2.N)
	assert.Equal(t, 1, m2.Compared)
	assert.InDelta(t, 1.0, m2.PCloserCN, tol)
	assert.InDelta(t, 0.2, m2.MeanDC, tol)
	assert.InDelta(t, 0.4, m2.MeanDW, tol)

	byDim := DirectionByDimension(rows)
	require.Len(t, byDim, 1)
	assert.Equal(t, 10, byDim[0].N)
	assert.Equal(t, 11, byDim[0].Compared)
	assert.InDelta(t, 8.0/11.0, byDim[0].PCloserCN, tol)
	assert.InDelta(t, 8.0/11.0, DirectionOverall(rows), tol)
}

func TestCloserCN(t *testing.T) {
	v, ok := CloserCN(0.1, 0.2)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = CloserCN(0.2, 0.2)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)

	_, ok = CloserCN(0.2, math.NaN())
	assert.False(t, ok)
}

func TestReconcile(t *testing.T) {
	calc := []DimScore{
		{ImageUID: "i1", Dimension: "A", Value: 0.5},
		{ImageUID: "i1", Dimension: "B", Value: 0.25},
		{ImageUID: "i2", Dimension: "A", Value: 0.75},
	}
	released := []DimScore{
		{ImageUID: "i1", Dimension: "A", Value: 0.5000004},
		{ImageUID: "i2", Dimension: "A", Value: 0.7},
	}

	rows, err := Reconcile(calc, released)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].Matched)
	assert.InDelta(t, 4e-7, rows[0].AbsDiff, 1e-12)
	assert.False(t, rows[1].Matched)
	assert.True(t, math.IsNaN(rows[1].AbsDiff))
	assert.InDelta(t, 0.05, rows[2].AbsDiff, 1e-12)

	s := SummarizeAgreement(rows)
	assert.Equal(t, 2, s.Matched)
	assert.Equal(t, 1, s.Unmatched)
	assert.InDelta(t, (4e-7+0.05)/2, s.MeanAbsDiff, 1e-12)
	assert.InDelta(t, 0.05, s.MaxAbsDiff, 1e-12)
}

func TestReconcile_DuplicateReleased(t *testing.T) {
	_, err := Reconcile(nil, []DimScore{
		{ImageUID: "i", Dimension: "A", Value: 1},
		{ImageUID: "i", Dimension: "A", Value: 2},
	})
	assert.Error(t, err)
}

func TestReproduce_MatchesReleasedFixture(t *testing.T) {
	w := weightTable(t, MetricWeight{"m1", "dimA", 0.5}, MetricWeight{"m2", "dimB", 0.5})
	released := []DimScore{
		{ImageUID: "img1", Dimension: "dimA", Value: 0.5845668654307631},
		{ImageUID: "img1", Dimension: "dimB", Value: 0.3759171764505048},
		{ImageUID: "img2", Dimension: "dimA", Value: 0.7971766310907374},
		{ImageUID: "img2", Dimension: "dimB", Value: 0.5},
	}

	r, err := Reproduce(twoImageFixture(), w, released, DefaultPowerMeanP)
	require.NoError(t, err)
	assert.Empty(t, r.UnmatchedMetrics)
	assert.Equal(t, 4, r.AgreementSummary.Matched)
	assert.Less(t, r.AgreementSummary.MaxAbsDiff, 1e-6)

	require.Len(t, r.KeyNumbers, len(KeyNames))
	for i, k := range r.KeyNumbers {
		assert.Equal(t, KeyNames[i], k.Key)
	}
	assert.Equal(t, 2.0, r.KeyNumber(KeyImages))
	assert.Equal(t, 2.0, r.KeyNumber(KeyMetrics))
	assert.Equal(t, 2.0, r.KeyNumber(KeyDimensions))
	assert.Equal(t, DefaultPowerMeanP, r.KeyNumber(KeyPowerMeanP))
	assert.InDelta(t, (0.48024202094063395+0.6485883155453687)/2, r.KeyNumber(KeyMFSMean), tol)
	assert.InDelta(t, (0.48024202094063395+0.6485883155453687)/2, r.KeyNumber(KeyMFSMedian), tol)
	assert.InDelta(t, 0.75, r.KeyNumber(KeyCloserOverall), tol)
	assert.True(t, math.IsNaN(r.KeyNumber("missing")))
}

func TestReproduce_Validation(t *testing.T) {
	_, err := Reproduce(nil, nil, nil, DefaultPowerMeanP)
	assert.Error(t, err)

	w := weightTable(t, MetricWeight{"m1", "A", 1})
	_, err = Reproduce(nil, w, nil, 0)
	assert.Error(t, err)

	r, err := Reproduce(nil, w, nil, DefaultPowerMeanP)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.KeyNumber(KeyDimensions))
	assert.True(t, math.IsNaN(r.KeyNumber(KeyMFSMean)))
}
