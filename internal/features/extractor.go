// Package features turns decoded raster images into fixed-length pixel
// vectors.
//
// A vector holds 3·W·H values in [0,255], laid out row-major with the RGB
// channels interleaved: the value for pixel (x, y) and channel c (0=R, 1=G,
// 2=B) is at index (y*W+x)*3+c. The image is resized to W×H without
// preserving its aspect ratio.
package features

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pkg/errors"
)

// Default target resolution.
const (
	DefaultWidth  = 100
	DefaultHeight = 100
)

// Channels is the number of values stored per pixel.
const Channels = 3

// DecodeError reports an image that could not be turned into a vector.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Extractor converts images to vectors of a fixed length.
type Extractor struct {
	width     int
	height    int
	resampler Resampler
}

// NewExtractor returns an extractor producing vectors of length
// 3·width·height. A nil resampler selects DefaultResampler.
func NewExtractor(width, height int, resampler Resampler) (*Extractor, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("target size must be positive, got %dx%d", width, height)
	}
	if resampler == nil {
		r, err := ResamplerByName(DefaultResampler)
		if err != nil {
			return nil, err
		}
		resampler = r
	}
	return &Extractor{width: width, height: height, resampler: resampler}, nil
}

// Len is the length of every vector the extractor returns.
func (e *Extractor) Len() int {
	return Channels * e.width * e.height
}

// ExtractFile reads and converts the image stored at path.
func (e *Extractor) ExtractFile(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	vec, err := e.Extract(bytes.NewReader(data))
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Path = path
			return nil, de
		}
		return nil, err
	}
	return vec, nil
}

// Extract decodes an image from r and converts it.
func (e *Extractor) Extract(r io.Reader) ([]float64, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return e.ExtractImage(img)
}

// ExtractImage resizes an already decoded image and flattens it.
func (e *Extractor) ExtractImage(img image.Image) ([]float64, error) {
	if img == nil {
		return nil, &DecodeError{Err: errors.New("nil image")}
	}
	if b := img.Bounds(); b.Empty() {
		return nil, &DecodeError{Err: errors.Errorf("image has no pixels (%dx%d)", b.Dx(), b.Dy())}
	}

	resized := e.resampler.Resample(img, e.width, e.height)
	if resized == nil {
		return nil, &DecodeError{Err: errors.New("resize returned no image")}
	}
	b := resized.Bounds()
	if b.Dx() != e.width || b.Dy() != e.height {
		return nil, &DecodeError{Err: errors.Errorf("resize produced %dx%d, want %dx%d",
			b.Dx(), b.Dy(), e.width, e.height)}
	}

	return flatten(resized, e.width, e.height), nil
}

// flatten reads straight RGB values; alpha is dropped.
func flatten(img image.Image, width, height int) []float64 {
	b := img.Bounds()
	out := make([]float64, Channels*width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := (y*width + x) * Channels
			out[i+0] = float64(c.R)
			out[i+1] = float64(c.G)
			out[i+2] = float64(c.B)
		}
	}
	return out
}
