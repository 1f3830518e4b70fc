package backdrop

import (
	"fmt"
	"math"
	"slices"
)

type bucket struct {
	key   QuantizedColor
	count int
}

// Select ranks the buckets of h by frequency and returns up to opt.TopN
// enhanced colors, most frequent first. Equal counts are ordered by bucket
// key so identical histograms always give identical output.
func Select(h Histogram, opt Options) ([]Color, error) {
	opt = opt.normalized()
	if len(h) < 3 {
		return nil, fmt.Errorf("%d buckets: %w", len(h), ErrInsufficientPalette)
	}
	buckets := make([]bucket, 0, len(h))
	for k, n := range h {
		buckets = append(buckets, bucket{key: k, count: n})
	}
	slices.SortFunc(buckets, func(a, b bucket) int {
		if a.count != b.count {
			return b.count - a.count
		}
		ka, kb := a.key.key(), b.key.key()
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})

	n := min(opt.TopN, len(buckets))
	out := make([]Color, n)
	for i := range n {
		out[i] = enhance(Color(buckets[i].key), opt.Enhance)
	}
	return out, nil
}

// NewColorSet builds a ColorSet from the first three colors.
func NewColorSet(colors []Color) (ColorSet, error) {
	if len(colors) < 3 {
		return ColorSet{}, fmt.Errorf("%d colors: %w", len(colors), ErrInsufficientPalette)
	}
	return ColorSet{Primary: colors[0], Secondary: colors[1], Tertiary: colors[2]}, nil
}

func enhance(c Color, factor float64) Color {
	ch := func(v uint8) uint8 {
		return uint8(min(255, math.Round(float64(v)*factor)))
	}
	return Color{R: ch(c.R), G: ch(c.G), B: ch(c.B)}
}
