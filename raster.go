package backdrop

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"
)

// Rasterize draws f into a w×h image. Gradients are composited bottom
// (tertiary) to top (primary) on a transparent layer, which is transformed,
// blurred and laid over the background at the frame opacity.
func Rasterize(f Frame, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	if w <= 0 || h <= 0 {
		return out
	}
	draw.Draw(out, out.Bounds(), image.NewUniform(f.Background.RGBA()), image.Point{}, draw.Src)
	if f.Static || f.Neutral || !f.Colors.Valid() {
		return out
	}

	unit := float64(w) / referenceWidth
	inv, ok := inverseTransform(f.Motion, float64(w), float64(h), unit)
	if !ok {
		return out
	}

	layer := image.NewNRGBA(out.Bounds())
	slots := f.Colors.Slots()
	for y := range h {
		for x := range w {
			// Sample at the pixel center, in layer space.
			sx, sy := float64(x)+0.5, float64(y)+0.5
			lx := inv[0]*sx + inv[1]*sy + inv[2]
			ly := inv[3]*sx + inv[4]*sy + inv[5]
			if lx < 0 || ly < 0 || lx >= float64(w) || ly >= float64(h) {
				continue
			}
			var pr, pg, pb, pa float64 // premultiplied
			for i := len(slots) - 1; i >= 0; i-- {
				a := gradientAlpha(f.Anchors[i], lx, ly, float64(w), float64(h))
				if a == 0 {
					continue
				}
				c := slots[i]
				pr = float64(c.R)*a + pr*(1-a)
				pg = float64(c.G)*a + pg*(1-a)
				pb = float64(c.B)*a + pb*(1-a)
				pa = a + pa*(1-a)
			}
			if pa == 0 {
				continue
			}
			layer.SetNRGBA(x, y, color.NRGBA{
				R: uint8(min(255, pr/pa+0.5)),
				G: uint8(min(255, pg/pa+0.5)),
				B: uint8(min(255, pb/pa+0.5)),
				A: uint8(min(255, pa*255+0.5)),
			})
		}
	}

	var blurred image.Image = layer
	if sigma := f.Blur * unit; sigma > 0 {
		blurred = imaging.Blur(layer, sigma)
	}
	opacity := image.NewUniform(color.Alpha{A: uint8(max(0, min(1, f.Opacity))*255 + 0.5)})
	draw.DrawMask(out, out.Bounds(), blurred, image.Point{}, opacity, image.Point{}, draw.Over)
	return out
}

// gradientAlpha evaluates "radial-gradient(circle at anchor, c 0%,
// transparent 50%)" at (x, y). The circle's radius reaches the farthest
// corner of the w×h box.
func gradientAlpha(anchor Point, x, y, w, h float64) float64 {
	ax, ay := anchor.X/100*w, anchor.Y/100*h
	radius := math.Hypot(max(ax, w-ax), max(ay, h-ay))
	if radius == 0 {
		return 0
	}
	d := math.Hypot(x-ax, y-ay) / radius
	return max(0, 1-d/0.5)
}

// inverseTransform returns the first two rows of the inverse of
// T(center)·T(x,y)·S(scale)·R(rotate)·T(-center), mapping screen points to
// layer points.
func inverseTransform(m Motion, w, h, unit float64) ([6]float64, bool) {
	cx, cy := w/2, h/2
	th := m.Rotate * math.Pi / 180
	sin, cos := math.Sincos(th)

	steps := []*mat.Dense{
		mat.NewDense(3, 3, []float64{1, 0, cx + m.X*unit, 0, 1, cy + m.Y*unit, 0, 0, 1}),
		mat.NewDense(3, 3, []float64{m.Scale, 0, 0, 0, m.Scale, 0, 0, 0, 1}),
		mat.NewDense(3, 3, []float64{cos, -sin, 0, sin, cos, 0, 0, 0, 1}),
		mat.NewDense(3, 3, []float64{1, 0, -cx, 0, 1, -cy, 0, 0, 1}),
	}
	fwd := mat.DenseCopyOf(steps[0])
	for _, s := range steps[1:] {
		var next mat.Dense
		next.Mul(fwd, s)
		fwd = &next
	}

	var inv mat.Dense
	if err := inv.Inverse(fwd); err != nil {
		return [6]float64{}, false
	}
	return [6]float64{
		inv.At(0, 0), inv.At(0, 1), inv.At(0, 2),
		inv.At(1, 0), inv.At(1, 1), inv.At(1, 2),
	}, true
}
