package backdrop

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Blend averages the valid sets slot by slot and channel by channel.
// Invalid sets are ignored. A single valid set is returned unchanged and
// the result is absent (false) when no valid set remains.
//
// Channel sums are exact in float64, so the result does not depend on the
// order of sets.
func Blend(sets ...ColorSet) (ColorSet, bool) {
	valid := make([]ColorSet, 0, len(sets))
	for _, s := range sets {
		if s.Valid() {
			valid = append(valid, s)
		}
	}
	switch len(valid) {
	case 0:
		return ColorSet{}, false
	case 1:
		return valid[0], true
	}

	var out [3]Color
	r := make([]float64, len(valid))
	g := make([]float64, len(valid))
	b := make([]float64, len(valid))
	for slot := range out {
		for i, s := range valid {
			c := s.Slots()[slot]
			r[i], g[i], b[i] = float64(c.R), float64(c.G), float64(c.B)
		}
		out[slot] = Color{R: meanChannel(r), G: meanChannel(g), B: meanChannel(b)}
	}
	return colorSetOf(out), true
}

func meanChannel(xs []float64) uint8 {
	return uint8(max(0, min(255, math.Round(stat.Mean(xs, nil)))))
}
