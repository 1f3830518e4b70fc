package backdrop

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// Extract returns the representative colors of img using opt.Method.
// Every method shares the sampler's filters and its three-bucket minimum,
// so an image either yields a complete ColorSet or an error.
func Extract(img image.Image, opt Options) (ColorSet, error) {
	opt = opt.normalized()
	grid, h, err := sampleGrid(img, opt)
	if err != nil {
		return ColorSet{}, err
	}

	var colors []Color
	switch opt.Method {
	case MethodDominantColor:
		colors = dominantColors(grid, opt)
	case MethodKMeans:
		colors, err = kmeansColors(grid, opt)
	default:
		colors, err = Select(h, opt)
	}
	if err != nil {
		return ColorSet{}, err
	}
	set, err := NewColorSet(colors)
	if err != nil {
		return ColorSet{}, err
	}
	if !set.Valid() {
		return ColorSet{}, fmt.Errorf("unpopulated slot in %v: %w", set, ErrInsufficientPalette)
	}
	return set, nil
}

type weightedColor struct {
	Col    colorful.Color
	Weight float64
}

// masked returns a copy of grid with every filtered pixel made transparent.
func masked(grid *image.NRGBA, opt Options) *image.NRGBA {
	out := image.NewNRGBA(grid.Rect)
	for y := range grid.Rect.Dy() {
		for x := range grid.Rect.Dx() {
			px := grid.NRGBAAt(x, y)
			if opt.keeps(px) {
				out.SetNRGBA(x, y, color.NRGBA{R: px.R, G: px.G, B: px.B, A: 255})
			}
		}
	}
	return out
}

func dominantColors(grid *image.NRGBA, opt Options) []Color {
	nCandidates := max(24, opt.TopN*4)
	candidates := dominantcolor.FindWeight(masked(grid, opt), nCandidates)

	weighted := make([]weightedColor, 0, len(candidates))
	for _, c := range candidates {
		col, _ := colorful.MakeColor(c.RGBA)
		w := c.Weight
		if w <= 0 {
			w = 1e-6
		}
		weighted = append(weighted, weightedColor{Col: col.Clamped(), Weight: w})
	}
	return enhanceAll(selectDiverse(weighted, 3), opt.Enhance)
}

func kmeansColors(grid *image.NRGBA, opt Options) ([]Color, error) {
	dataset := make(clusters.Observations, 0, grid.Rect.Dx()*grid.Rect.Dy())
	visiblePixels(grid, opt, func(c Color) {
		dataset = append(dataset, clusters.Coordinates{
			float64(c.R) / 255.0,
			float64(c.G) / 255.0,
			float64(c.B) / 255.0,
		})
	})
	k := min(opt.TopN, len(dataset))
	if k < 3 {
		return nil, fmt.Errorf("%d samples: %w", len(dataset), ErrInsufficientPalette)
	}
	km := kmeans.New()
	cc, err := km.Partition(dataset, k)
	if err != nil {
		return nil, fmt.Errorf("kmeans: %v: %w", err, ErrInsufficientPalette)
	}

	// Dominant clusters first.
	slices.SortFunc(cc, func(a, b clusters.Cluster) int {
		return len(b.Observations) - len(a.Observations)
	})

	weighted := make([]weightedColor, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 || len(c.Observations) == 0 {
			continue
		}
		col := colorful.Color{R: c.Center[0], G: c.Center[1], B: c.Center[2]}.Clamped()
		weighted = append(weighted, weightedColor{Col: col, Weight: float64(len(c.Observations))})
	}
	return enhanceAll(selectDiverse(weighted, 3), opt.Enhance), nil
}

func enhanceAll(cols []colorful.Color, factor float64) []Color {
	out := make([]Color, len(cols))
	for i, c := range cols {
		out[i] = enhance(colorOfColorful(c), factor)
	}
	return out
}

// selectDiverse picks k colors, seeded with the heaviest candidate, each
// next pick maximizing Lab distance to the picks so far scaled by weight.
func selectDiverse(cands []weightedColor, k int) []colorful.Color {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	type item struct {
		col colorful.Color
		lab [3]float64
		w   float64
	}
	items := make([]item, 0, len(cands))
	maxW := 0.0
	for _, c := range cands {
		col := c.Col.Clamped()
		l, a, b := col.Lab()
		w := max(c.Weight, 1e-6)
		maxW = max(maxW, w)
		items = append(items, item{col: col, lab: [3]float64{l, a, b}, w: w})
	}
	k = min(k, len(items))

	picked := make([]int, 0, k)
	used := make([]bool, len(items))

	seed := 0
	for i := 1; i < len(items); i++ {
		if items[i].w > items[seed].w {
			seed = i
		}
	}
	picked = append(picked, seed)
	used[seed] = true

	for len(picked) < k {
		best, bestScore := -1, -1.0
		for i := range items {
			if used[i] {
				continue
			}
			minD2 := math.MaxFloat64
			for _, s := range picked {
				d0 := items[i].lab[0] - items[s].lab[0]
				d1 := items[i].lab[1] - items[s].lab[1]
				d2 := items[i].lab[2] - items[s].lab[2]
				minD2 = min(minD2, d0*d0+d1*d1+d2*d2)
			}
			score := math.Sqrt(minD2) * (0.55 + 0.45*math.Sqrt(items[i].w/maxW))
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		picked = append(picked, best)
	}

	out := make([]colorful.Color, 0, len(picked))
	for _, idx := range picked {
		out = append(out, items[idx].col)
	}
	return out
}
