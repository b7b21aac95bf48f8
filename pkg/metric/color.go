package metric

import (
	"image"
	"math"

	"github.com/mchmarny/sfi/pkg/imaging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

const (
	// ColorHSVBhattacharyya compares joint HSV histograms.
	ColorHSVBhattacharyya = "Col_HSV-B"

	HueBins        = 36
	SaturationBins = 10
	ValueBins      = 10
	HistogramLen   = HueBins * SaturationBins * ValueBins

	// BhattacharyyaEpsilon is the lower clamp of the coefficient.
	BhattacharyyaEpsilon = 1e-12
)

// Histogram is an L1-normalized joint (hue, saturation, value) histogram
// flattened in hue-major order.
type Histogram struct {
	bins []float64
}

// NewHistogram normalizes counts into a histogram. Counts with no mass
// produce an all-zero histogram.
func NewHistogram(counts []float64) *Histogram {
	bins := make([]float64, len(counts))
	copy(bins, counts)
	if total := floats.Sum(bins); total > 0 {
		floats.Scale(1/total, bins)
	}
	return &Histogram{bins: bins}
}

func (h *Histogram) Kind() Kind { return KindHistogram }
func (h *Histogram) Len() int   { return len(h.bins) }

// Values returns a copy of the bin probabilities.
func (h *Histogram) Values() []float64 {
	out := make([]float64, len(h.bins))
	copy(out, h.bins)
	return out
}

// HSV8 converts an 8-bit RGB pixel to 8-bit hue, saturation and value.
// Hue and saturation are computed in single precision, scaled by 255 and
// truncated; value is the largest channel. Gray pixels have hue and
// saturation 0.
func HSV8(r, g, b uint8) (h, s, v uint8) {
	maxc, minc := max(r, g, b), min(r, g, b)
	if maxc == minc {
		return 0, 0, maxc
	}

	cr := float32(maxc - minc)
	sf := cr / float32(maxc)
	rc := float32(maxc-r) / cr
	gc := float32(maxc-g) / cr
	bc := float32(maxc-b) / cr

	var hf float32
	switch maxc {
	case r:
		hf = bc - gc
	case g:
		hf = float32(2.0 + float64(rc) - float64(bc))
	default:
		hf = float32(4.0 + float64(gc) - float64(rc))
	}
	hf = float32(math.Mod(float64(hf)/6.0+1.0, 1.0))

	return clip8(float64(hf) * 255.0), clip8(float64(sf) * 255.0), maxc
}

func clip8(x float64) uint8 {
	i := int(x)
	if i < 0 {
		return 0
	}
	if i > 255 {
		return 255
	}
	return uint8(i)
}

// HSVBin returns the flattened histogram index for an 8-bit RGB pixel.
// Each 8-bit HSV channel is split into equal bins over [0, 256).
func HSVBin(r, g, b uint8) int {
	h, s, v := HSV8(r, g, b)
	return (binIndex(h, HueBins)*SaturationBins+binIndex(s, SaturationBins))*ValueBins + binIndex(v, ValueBins)
}

func binIndex(x uint8, n int) int {
	return int(x) * n / 256
}

// HSVHistogram builds the normalized joint HSV histogram of img.
func HSVHistogram(img *image.RGBA) *Histogram {
	counts := make([]float64, HistogramLen)
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			px := row[x*4 : x*4+3]
			counts[HSVBin(px[0], px[1], px[2])]++
		}
	}
	return NewHistogram(counts)
}

// Bhattacharyya returns -ln(BC) for two discrete distributions, with the
// coefficient clamped into [BhattacharyyaEpsilon, 1].
func Bhattacharyya(p, q []float64) (float64, error) {
	if len(p) != len(q) {
		return 0, errors.Wrapf(ErrShapeMismatch, "histogram lengths %d and %d", len(p), len(q))
	}
	var bc float64
	for i := range p {
		bc += math.Sqrt(clip01(p[i]) * clip01(q[i]))
	}
	bc = math.Min(math.Max(bc, BhattacharyyaEpsilon), 1)
	return -math.Log(bc), nil
}

func clip01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

type colorMetric struct{}

// NewColorMetric returns the HSV histogram / Bhattacharyya metric.
func NewColorMetric() Metric { return colorMetric{} }

func (colorMetric) Name() string { return ColorHSVBhattacharyya }
func (colorMetric) Kind() Kind   { return KindHistogram }

func (colorMetric) Extract(f *imaging.Frame) (Representation, error) {
	if f == nil || f.RGB == nil {
		return nil, errors.New("image required")
	}
	return HSVHistogram(f.RGB), nil
}

func (colorMetric) Distance(a, b Representation) (float64, error) {
	ha, ok := a.(*Histogram)
	if !ok {
		return 0, errors.Wrapf(ErrKindMismatch, "%s expects histogram", ColorHSVBhattacharyya)
	}
	hb, ok := b.(*Histogram)
	if !ok {
		return 0, errors.Wrapf(ErrKindMismatch, "%s expects histogram", ColorHSVBhattacharyya)
	}
	return Bhattacharyya(ha.bins, hb.bins)
}
