// Package imaging loads evaluation and prototype images into fixed-size
// pixel buffers the metric extractors can compare.
package imaging

import (
	"image"
	"image/color"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImage reports whether the path has one of the accepted image extensions.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Decode opens and decodes the image at path.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image: %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image: %s", path)
	}
	return img, nil
}

// Flatten copies img into an opaque RGBA buffer of its raw, not
// premultiplied, color channels. Alpha is dropped rather than composited,
// so fully transparent pixels keep their stored color.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()*4], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		for i := 3; i < len(dst.Pix); i += 4 {
			dst.Pix[i] = 0xff
		}
		return dst
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := dst.PixOffset(x, y)
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = c.R, c.G, c.B, 0xff
		}
	}
	return dst
}

// ToGray converts an opaque RGBA buffer to 8-bit luma at its own resolution.
func ToGray(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			px := row[x*4 : x*4+3]
			dst.Pix[y*dst.Stride+x] = Luma(px[0], px[1], px[2])
		}
	}
	return dst
}

// Resize scales img to size x size with bilinear interpolation.
// A non-positive size only converts the image to RGBA.
func Resize(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	if size <= 0 {
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ResizeGray is Resize for a luma plane.
func ResizeGray(img *image.Gray, size int) *image.Gray {
	b := img.Bounds()
	if size <= 0 {
		dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Frame is one decoded image prepared for the metric extractors. The color
// buffer and the luma plane are each derived at source resolution and then
// resized on their own.
type Frame struct {
	RGB  *image.RGBA
	Gray *image.Gray
}

// NewFrame flattens img and derives both resized views.
func NewFrame(img image.Image, size int) *Frame {
	rgb := Flatten(img)
	return &Frame{
		RGB:  Resize(rgb, size),
		Gray: ResizeGray(ToGray(rgb), size),
	}
}

// Load decodes the image at path into a Frame of size x size.
func Load(path string, size int) (*Frame, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return NewFrame(img, size), nil
}

// Luma returns the ITU-R 601-2 luminance of an 8-bit RGB triple using
// 16-bit fixed point weights, rounded to nearest.
func Luma(r, g, b uint8) uint8 {
	return uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 0x8000) >> 16)
}

// GrayFloat converts a luma plane to row-major intensities in [0, 1].
func GrayFloat(img *image.Gray) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for _, p := range img.Pix[y*img.Stride : y*img.Stride+b.Dx()] {
			out = append(out, float64(p)/255.0)
		}
	}
	return out
}
