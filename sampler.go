package backdrop

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Histogram counts sampled pixels per quantized color.
type Histogram map[QuantizedColor]int

// Sample downscales img to the sample grid and counts the surviving pixels
// per bucket. Transparent pixels and pixels outside the brightness window
// are skipped. It fails with ErrSamplingUnavailable when img cannot be read
// and with ErrInsufficientPalette when fewer than three buckets remain; the
// histogram is still returned in the latter case.
func Sample(img image.Image, opt Options) (Histogram, error) {
	_, h, err := sampleGrid(img, opt.normalized())
	return h, err
}

func sampleGrid(img image.Image, opt Options) (*image.NRGBA, Histogram, error) {
	grid, err := downscale(img, opt)
	if err != nil {
		return nil, nil, err
	}
	h := make(Histogram)
	visiblePixels(grid, opt, func(c Color) {
		h[Quantize(c, opt.QuantStep)]++
	})
	if len(h) < 3 {
		return grid, h, fmt.Errorf("%d buckets after filtering: %w", len(h), ErrInsufficientPalette)
	}
	return grid, h, nil
}

func downscale(img image.Image, opt Options) (*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image: %w", ErrSamplingUnavailable)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty bounds %v: %w", b, ErrSamplingUnavailable)
	}
	n := opt.SampleSize
	if opt.AdaptiveGrid {
		n = gridSize(b.Size(), n)
	}
	return imaging.Resize(img, n, n, resampleFilter(opt.Filter)), nil
}

// visiblePixels calls fn for every pixel of grid that opt keeps.
func visiblePixels(grid *image.NRGBA, opt Options, fn func(Color)) {
	w, h := grid.Rect.Dx(), grid.Rect.Dy()
	for y := range h {
		row := grid.Pix[y*grid.Stride : y*grid.Stride+w*4]
		for x := range w {
			px := color.NRGBA{R: row[x*4], G: row[x*4+1], B: row[x*4+2], A: row[x*4+3]}
			if opt.keeps(px) {
				fn(Color{R: px.R, G: px.G, B: px.B})
			}
		}
	}
}

// keeps reports whether px is opaque enough and inside the brightness window.
// Pixels that quantize to black are dropped whatever the window, since a
// black slot marks an unpopulated ColorSet entry.
func (o Options) keeps(px color.NRGBA) bool {
	if px.A < o.AlphaThreshold {
		return false
	}
	c := Color{R: px.R, G: px.G, B: px.B}
	if Quantize(c, o.QuantStep) == (QuantizedColor{}) {
		return false
	}
	v := c.Brightness()
	return v >= int(o.MinBrightness) && v <= int(o.MaxBrightness)
}
