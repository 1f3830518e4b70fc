package backdrop

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Method selects how representative colors are pulled from an image.
type Method int

const (
	MethodBuckets Method = iota
	MethodDominantColor
	MethodKMeans
)

func (m Method) String() string {
	switch m {
	case MethodDominantColor:
		return "dominantcolor"
	case MethodKMeans:
		return "kmeans"
	default:
		return "buckets"
	}
}

func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "buckets":
		*m = MethodBuckets
	case "dominantcolor", "dominant":
		*m = MethodDominantColor
	case "kmeans":
		*m = MethodKMeans
	default:
		return fmt.Errorf("unknown extraction method %q", text)
	}
	return nil
}

type Options struct {
	// Side of the square grid the image is resized to before sampling.
	// Bounds the cost independently of the source resolution.
	SampleSize int `toml:"sample_size"`
	// Bucket width per channel. Lower values split similar shades apart.
	QuantStep int `toml:"quant_step"`
	// Pixels with alpha below this are treated as transparent and skipped.
	AlphaThreshold uint8 `toml:"alpha_threshold"`
	// Pixels whose channel mean is outside [MinBrightness, MaxBrightness]
	// are skipped so near-black and near-white areas do not dominate.
	MinBrightness uint8 `toml:"min_brightness"`
	MaxBrightness uint8 `toml:"max_brightness"`
	// Channel multiplier applied to selected buckets. Should be > 1.
	Enhance float64 `toml:"enhance"`
	// Number of buckets kept by the selector, most frequent first.
	TopN   int    `toml:"top_n"`
	Method Method `toml:"method"`
	// Resampling filter used for the downscale: box, nearest, linear or lanczos.
	Filter string `toml:"filter"`
	// Shrink the grid for sources with fewer pixels than it instead of
	// upscaling them.
	AdaptiveGrid bool `toml:"adaptive_grid"`
}

func DefaultOptions() Options {
	return Options{
		SampleSize:     100,
		QuantStep:      16,
		AlphaThreshold: 125,
		MinBrightness:  20,
		MaxBrightness:  235,
		Enhance:        1.2,
		TopN:           5,
		Method:         MethodBuckets,
		Filter:         "box",
	}
}

// gridSize returns the grid side used for a source of the given size: n, or
// for sources with fewer than n² pixels the square root of their pixel count,
// never below 8.
func gridSize(size image.Point, n int) int {
	if size.X <= 0 || size.Y <= 0 {
		return n
	}
	pixels := size.X * size.Y
	if pixels < n*n {
		return max(8, int(math.Sqrt(float64(pixels))))
	}
	return n
}

// normalized fills zero fields with their defaults.
func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.SampleSize <= 0 {
		o.SampleSize = def.SampleSize
	}
	if o.QuantStep <= 0 {
		o.QuantStep = def.QuantStep
	}
	if o.MaxBrightness == 0 {
		o.MaxBrightness = def.MaxBrightness
	}
	if o.Enhance <= 0 {
		o.Enhance = def.Enhance
	}
	if o.TopN < 3 {
		o.TopN = def.TopN
	}
	return o
}

func resampleFilter(name string) imaging.ResampleFilter {
	switch strings.ToLower(name) {
	case "nearest":
		return imaging.NearestNeighbor
	case "linear":
		return imaging.Linear
	case "lanczos":
		return imaging.Lanczos
	default:
		return imaging.Box
	}
}
