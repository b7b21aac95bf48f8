package fusion

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Defined returns the non-NaN values of xs.
func Defined(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// MeanDefined is the mean over non-NaN values, NaN when there are none.
func MeanDefined(xs []float64) float64 {
	d := Defined(xs)
	if len(d) == 0 {
		return math.NaN()
	}
	return stat.Mean(d, nil)
}

// MaxDefined is the maximum over non-NaN values, NaN when there are none.
func MaxDefined(xs []float64) float64 {
	d := Defined(xs)
	if len(d) == 0 {
		return math.NaN()
	}
	return floats.Max(d)
}

// Quantile returns the q-th quantile of the non-NaN values using linear
// interpolation between closest ranks, NaN when there are none.
func Quantile(xs []float64, q float64) float64 {
	d := Defined(xs)
	if len(d) == 0 || q < 0 || q > 1 {
		return math.NaN()
	}
	sort.Float64s(d)
	pos := q * float64(len(d)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return d[lo]
	}
	return d[lo] + (d[hi]-d[lo])*(pos-float64(lo))
}

// MedianDefined is the median over non-NaN values.
func MedianDefined(xs []float64) float64 {
	return Quantile(xs, 0.5)
}
