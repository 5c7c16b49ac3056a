package features

import (
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Resampler scales a decoded image to an exact target size.
type Resampler interface {
	Resample(img image.Image, width, height int) image.Image
}

// NfntResampler resizes with one of the nfnt/resize interpolation kernels.
type NfntResampler struct {
	Interpolation resize.InterpolationFunction
}

func (r NfntResampler) Resample(img image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), img, r.Interpolation)
}

// DrawResampler resizes with a golang.org/x/image/draw scaler.
type DrawResampler struct {
	Scaler draw.Scaler
}

func (r DrawResampler) Resample(img image.Image, width, height int) image.Image {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	r.Scaler.Scale(dst, dst.Rect, img, img.Bounds(), draw.Src, nil)
	return dst
}

// DefaultResampler is the resampler name used when none is configured.
const DefaultResampler = "bilinear"

var resamplers = map[string]Resampler{
	"nearest":        NfntResampler{Interpolation: resize.NearestNeighbor},
	"bilinear":       NfntResampler{Interpolation: resize.Bilinear},
	"bicubic":        NfntResampler{Interpolation: resize.Bicubic},
	"mitchell":       NfntResampler{Interpolation: resize.MitchellNetravali},
	"lanczos2":       NfntResampler{Interpolation: resize.Lanczos2},
	"lanczos3":       NfntResampler{Interpolation: resize.Lanczos3},
	"catmullrom":     DrawResampler{Scaler: draw.CatmullRom},
	"approxbilinear": DrawResampler{Scaler: draw.ApproxBiLinear},
}

// ResamplerByName returns the named resampler. Names are case-insensitive.
func ResamplerByName(name string) (Resampler, error) {
	if name == "" {
		name = DefaultResampler
	}
	r, ok := resamplers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown resampler %q (supported: %s)", name, strings.Join(ResamplerNames(), ", "))
	}
	return r, nil
}

// ResamplerNames lists the supported resampler names in sorted order.
func ResamplerNames() []string {
	names := make([]string, 0, len(resamplers))
	for name := range resamplers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
