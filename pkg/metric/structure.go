package metric

import (
	"github.com/mchmarny/sfi/pkg/imaging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

const (
	// StructureSSIM compares grayscale structure with a global SSIM.
	StructureSSIM = "Str_SSIM-D"

	// SSIM stabilizers for a dynamic range of 1.
	SSIMC1 = 0.01 * 0.01
	SSIMC2 = 0.03 * 0.03
)

// Gray is a row-major grayscale intensity array in [0, 1] with its
// population mean and variance cached.
type Gray struct {
	pix      []float64
	mean     float64
	variance float64
}

// NewGray copies pix and caches its statistics.
func NewGray(pix []float64) *Gray {
	p := make([]float64, len(pix))
	copy(p, pix)
	g := &Gray{pix: p}
	if len(p) > 0 {
		g.mean = stat.Mean(p, nil)
		g.variance = centeredDot(p, g.mean, p, g.mean)
	}
	return g
}

func (g *Gray) Kind() Kind { return KindGray }
func (g *Gray) Len() int   { return len(g.pix) }

// Mean returns the cached population mean.
func (g *Gray) Mean() float64 { return g.mean }

// Variance returns the cached population variance.
func (g *Gray) Variance() float64 { return g.variance }

func (g *Gray) covariance(o *Gray) float64 {
	return centeredDot(g.pix, g.mean, o.pix, o.mean)
}

// centeredDot returns the population covariance of x and y given their
// means. Variance uses the same path so SSIM(x, x) is exactly 1.
func centeredDot(x []float64, mx float64, y []float64, my float64) float64 {
	var s float64
	for i := range x {
		s += (x[i] - mx) * (y[i] - my)
	}
	return s / float64(len(x))
}

// SSIM returns the global structural similarity of two gray arrays using
// whole-image statistics. A zero denominator yields 0.
func SSIM(x, y *Gray) (float64, error) {
	if x.Len() != y.Len() {
		return 0, errors.Wrapf(ErrShapeMismatch, "gray lengths %d and %d", x.Len(), y.Len())
	}
	if x.Len() == 0 {
		return 0, errors.Wrap(ErrShapeMismatch, "empty gray array")
	}
	num := (2*x.mean*y.mean + SSIMC1) * (2*x.covariance(y) + SSIMC2)
	den := (x.mean*x.mean + y.mean*y.mean + SSIMC1) * (x.variance + y.variance + SSIMC2)
	if den == 0 {
		return 0, nil
	}
	return num / den, nil
}

type structureMetric struct{}

// NewStructureMetric returns the 1 - SSIM grayscale metric.
func NewStructureMetric() Metric { return structureMetric{} }

func (structureMetric) Name() string { return StructureSSIM }
func (structureMetric) Kind() Kind   { return KindGray }

func (structureMetric) Extract(f *imaging.Frame) (Representation, error) {
	if f == nil || f.Gray == nil {
		return nil, errors.New("image required")
	}
	return NewGray(imaging.GrayFloat(f.Gray)), nil
}

func (structureMetric) Distance(a, b Representation) (float64, error) {
	ga, ok := a.(*Gray)
	if !ok {
		return 0, errors.Wrapf(ErrKindMismatch, "%s expects gray", StructureSSIM)
	}
	gb, ok := b.(*Gray)
	if !ok {
		return 0, errors.Wrapf(ErrKindMismatch, "%s expects gray", StructureSSIM)
	}
	s, err := SSIM(ga, gb)
	if err != nil {
		return 0, err
	}
	return 1 - s, nil
}
