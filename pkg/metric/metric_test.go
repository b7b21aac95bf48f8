package metric

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/mchmarny/sfi/pkg/imaging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func noise(seed int64, w, h int) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.Intn(256))
	}
	return img
}

func fill(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestHSVBin(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    int
	}{
		{"black", 0, 0, 0, 0},
		{"white", 255, 255, 255, 9},
		{"red", 255, 0, 0, 99},
		{"gray 51", 51, 51, 51, 1},
		{"gray 102", 102, 102, 102, 3},
		{"orange red", 255, 43, 0, 99},
		{"hue edge", 255, 6, 0, 99},
		{"blue", 0, 0, 255, 2399},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HSVBin(tt.r, tt.g, tt.b))
		})
	}
}

func TestHSV8(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		h, s, v uint8
	}{
		{"black", 0, 0, 0, 0, 0, 0},
		{"gray", 128, 128, 128, 0, 0, 128},
		{"red", 255, 0, 0, 0, 255, 255},
		{"green", 0, 255, 0, 85, 255, 255},
		{"blue", 0, 0, 255, 170, 255, 255},
		{"yellow", 255, 255, 0, 42, 255, 255},
		{"magenta", 255, 0, 255, 212, 255, 255},
		{"orange red", 255, 43, 0, 7, 255, 255},
		{"half saturated", 200, 100, 100, 0, 127, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s, v := HSV8(tt.r, tt.g, tt.b)
			assert.Equal(t, tt.h, h, "hue")
			assert.Equal(t, tt.s, s, "saturation")
			assert.Equal(t, tt.v, v, "value")
		})
	}
}

func TestHSV8_TracksContinuousHSV(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		rgb := [3]uint8{uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256))}
		h, s, v := HSV8(rgb[0], rgb[1], rgb[2])

		c := colorful.Color{R: float64(rgb[0]) / 255, G: float64(rgb[1]) / 255, B: float64(rgb[2]) / 255}
		ch, cs, cv := c.Hsv()

		hue := ch / 360 * 255
		dh := math.Abs(float64(h) - hue)
		dh = math.Min(dh, 255-dh)
		assert.LessOrEqual(t, dh, 1.0, "hue %v", rgb)
		assert.InDelta(t, cs*255, float64(s), 1.0, "saturation %v", rgb)
		assert.InDelta(t, cv*255, float64(v), 1e-9, "value %v", rgb)
	}
}

func TestHSVHistogram_Normalized(t *testing.T) {
	h := HSVHistogram(noise(1, 32, 32))
	assert.Equal(t, HistogramLen, h.Len())
	assert.InDelta(t, 1.0, floats.Sum(h.Values()), 1e-9)
	for _, v := range h.Values() {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestHSVHistogram_SolidColor(t *testing.T) {
	h := HSVHistogram(fill(8, 8, color.RGBA{R: 255, A: 255}))
	vals := h.Values()
	assert.Equal(t, 1.0, vals[99])
}

func TestNewHistogram_NoMass(t *testing.T) {
	h := NewHistogram(make([]float64, 5))
	assert.Equal(t, make([]float64, 5), h.Values())
}

func TestNewHistogram_DoesNotAlias(t *testing.T) {
	counts := []float64{1, 3}
	h := NewHistogram(counts)
	counts[0] = 100
	assert.Equal(t, []float64{0.25, 0.75}, h.Values())
}

func TestBhattacharyya(t *testing.T) {
	p := HSVHistogram(noise(1, 32, 32)).Values()
	q := HSVHistogram(noise(2, 32, 32)).Values()

	self, err := Bhattacharyya(p, p)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, self, 1e-12)

	pq, err := Bhattacharyya(p, q)
	require.NoError(t, err)
	qp, err := Bhattacharyya(q, p)
	require.NoError(t, err)
	assert.Equal(t, pq, qp)
	assert.Greater(t, pq, 0.0)
}

func TestBhattacharyya_DisjointIsBounded(t *testing.T) {
	d, err := Bhattacharyya([]float64{1, 0}, []float64{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(BhattacharyyaEpsilon), d, 1e-9)
	assert.False(t, math.IsInf(d, 0))
}

func TestBhattacharyya_LengthMismatch(t *testing.T) {
	_, err := Bhattacharyya([]float64{1}, []float64{0.5, 0.5})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestSSIM_Self(t *testing.T) {
	g := NewGray([]float64{0, 0.2, 0.4, 0.9, 1})
	s, err := SSIM(g, g)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s)
}

func TestSSIM_ConstantImages(t *testing.T) {
	s, err := SSIM(NewGray([]float64{0, 0, 0}), NewGray([]float64{0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, s)
}

func TestSSIM_AntiCorrelated(t *testing.T) {
	x := NewGray([]float64{0, 1, 0, 1})
	y := NewGray([]float64{1, 0, 1, 0})
	s, err := SSIM(x, y)
	require.NoError(t, err)
	want := ((0.5 + SSIMC1) * (-0.5 + SSIMC2)) / ((0.5 + SSIMC1) * (0.5 + SSIMC2))
	assert.InDelta(t, want, s, 1e-12)
}

func TestSSIM_Errors(t *testing.T) {
	_, err := SSIM(NewGray([]float64{1}), NewGray([]float64{1, 2}))
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	_, err = SSIM(NewGray(nil), NewGray(nil))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestGray_Stats(t *testing.T) {
	g := NewGray([]float64{0, 1})
	assert.Equal(t, 0.5, g.Mean())
	assert.Equal(t, 0.25, g.Variance())
}

func TestMetrics_Properties(t *testing.T) {
	imgs := []*image.RGBA{noise(1, 24, 24), noise(2, 24, 24), fill(24, 24, color.RGBA{G: 90, A: 255})}

	for _, m := range []Metric{NewColorMetric(), NewStructureMetric()} {
		t.Run(m.Name(), func(t *testing.T) {
			reps := make([]Representation, len(imgs))
			for i, img := range imgs {
				r, err := m.Extract(imaging.NewFrame(img, 0))
				require.NoError(t, err)
				assert.Equal(t, m.Kind(), r.Kind())
				reps[i] = r
			}
			for i := range reps {
				self, err := m.Distance(reps[i], reps[i])
				require.NoError(t, err)
				assert.InDelta(t, 0.0, self, 1e-12)

				for j := range reps {
					dij, err := m.Distance(reps[i], reps[j])
					require.NoError(t, err)
					dji, err := m.Distance(reps[j], reps[i])
					require.NoError(t, err)
					assert.Equal(t, dij, dji)
					assert.GreaterOrEqual(t, dij, 0.0)
				}
			}
		})
	}
}

func TestStructureDistance_Range(t *testing.T) {
	m := NewStructureMetric()
	a, err := m.Extract(imaging.NewFrame(fill(4, 4, color.RGBA{A: 255}), 0))
	require.NoError(t, err)
	b, err := m.Extract(imaging.NewFrame(noise(3, 4, 4), 0))
	require.NoError(t, err)

	d, err := m.Distance(a, b)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d, 0.0)
	assert.LessOrEqual(t, d, 2.0)
}

func TestDistance_KindMismatch(t *testing.T) {
	img := imaging.NewFrame(noise(1, 8, 8), 0)
	h, err := NewColorMetric().Extract(img)
	require.NoError(t, err)
	g, err := NewStructureMetric().Extract(img)
	require.NoError(t, err)

	_, err = NewColorMetric().Distance(h, g)
	assert.True(t, errors.Is(err, ErrKindMismatch))
	_, err = NewStructureMetric().Distance(h, g)
	assert.True(t, errors.Is(err, ErrKindMismatch))
}

func TestExtract_NilImage(t *testing.T) {
	_, err := NewColorMetric().Extract(nil)
	assert.Error(t, err)
	_, err = NewStructureMetric().Extract(nil)
	assert.Error(t, err)
	_, err = NewStructureMetric().Extract(&imaging.Frame{})
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	all, err := Resolve(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ColorHSVBhattacharyya, all[0].Name())
	assert.Equal(t, StructureSSIM, all[1].Name())

	one, err := Resolve([]string{StructureSSIM, StructureSSIM})
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = Resolve([]string{"nope"})
	assert.True(t, errors.Is(err, ErrUnknownMetric))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "histogram", KindHistogram.String())
	assert.Equal(t, "gray", KindGray.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
