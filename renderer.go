package backdrop

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Theme is the application color scheme. The animated backdrop only shows
// in the dark theme.
type Theme int

const (
	ThemeLight Theme = iota
	ThemeDark
)

func (t Theme) String() string {
	if t == ThemeDark {
		return "dark"
	}
	return "light"
}

func (t Theme) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Theme) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "light":
		*t = ThemeLight
	case "dark":
		*t = ThemeDark
	default:
		return fmt.Errorf("unknown theme %q", text)
	}
	return nil
}

// Point is a position in percent of the viewport.
type Point struct {
	X float64 `toml:"x"`
	Y float64 `toml:"y"`
}

// referenceWidth is the viewport width the pixel-valued options refer to.
const referenceWidth = 1440.0

type RenderOptions struct {
	// Gradient centers for primary, secondary and tertiary.
	Anchors [3]Point `toml:"anchors"`
	// Length of one ambient motion loop.
	Period time.Duration `toml:"period"`
	// Duration of the color fade after a palette change.
	Transition time.Duration `toml:"transition"`
	// Opacity of the gradient layer over the page background.
	Opacity float64 `toml:"opacity"`
	// Blur radius in pixels at a 1440px wide viewport.
	Blur float64 `toml:"blur"`
	// Page background in the dark and light themes.
	Dark  Color `toml:"dark"`
	Light Color `toml:"light"`
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Anchors:    [3]Point{{20, 30}, {80, 70}, {50, 50}},
		Period:     5 * time.Second,
		Transition: time.Second,
		Opacity:    0.3,
		Blur:       64,
		Dark:       RGB(10, 10, 10),
		Light:      RGB(250, 250, 250),
	}
}

// Motion is the layer transform at one instant. X and Y are in pixels at
// the reference width, Rotate in degrees.
type Motion struct {
	Scale  float64
	Rotate float64
	X, Y   float64
}

var (
	scaleKeys  = []float64{1, 1.2, 1}
	rotateKeys = []float64{0, 10, -10, 0}
	xKeys      = []float64{0, 15, -10, 0}
	yKeys      = []float64{0, -15, 10, 0}
)

// MotionAt returns the ambient transform at phase p in [0, 1).
func MotionAt(p float64) Motion {
	return Motion{
		Scale:  keyframe(scaleKeys, p),
		Rotate: keyframe(rotateKeys, p),
		X:      keyframe(xKeys, p),
		Y:      keyframe(yKeys, p),
	}
}

// keyframe interpolates evenly spaced values with ease-in-out per segment.
func keyframe(values []float64, p float64) float64 {
	if len(values) == 1 || p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	pos := p * float64(len(values)-1)
	i := int(pos)
	t := easeInOut(pos - float64(i))
	return values[i] + (values[i+1]-values[i])*t
}

// easeInOut is the CSS ease-in-out curve, cubic-bezier(0.42, 0, 0.58, 1).
func easeInOut(x float64) float64 {
	const x1, x2 = 0.42, 0.58
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	// The curve's x(t) is monotonic, so bisection always converges.
	bez := func(t, p1, p2 float64) float64 {
		u := 1 - t
		return 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t
	}
	lo, hi := 0.0, 1.0
	t := x
	for range 40 {
		if bez(t, x1, x2) < x {
			lo = t
		} else {
			hi = t
		}
		t = (lo + hi) / 2
	}
	return bez(t, 0, 1)
}

// Frame is everything needed to draw the backdrop at one instant.
type Frame struct {
	Theme Theme
	// Static is set in the light theme: a flat background, no gradients.
	Static bool
	// Neutral is set in the dark theme while no palette is available.
	Neutral    bool
	Background Color
	Colors     ColorSet
	Anchors    [3]Point
	Opacity    float64
	Blur       float64
	Motion     Motion
}

// CSS renders f as declarations for a fixed, full-viewport element.
func (f Frame) CSS() string {
	var sb strings.Builder
	if f.Static || f.Neutral {
		fmt.Fprintf(&sb, "background: %s;", f.Background.Hex())
		return sb.String()
	}
	sb.WriteString("background: ")
	for i, c := range f.Colors.Slots() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "radial-gradient(circle at %g%% %g%%, %s 0%%, transparent 50%%)",
			f.Anchors[i].X, f.Anchors[i].Y, c)
	}
	fmt.Fprintf(&sb, "; opacity: %g; filter: blur(%gpx);", f.Opacity, f.Blur)
	fmt.Fprintf(&sb, " transform: translateX(%.2fpx) translateY(%.2fpx) scale(%.4f) rotate(%.2fdeg);",
		f.Motion.X, f.Motion.Y, f.Motion.Scale, f.Motion.Rotate)
	return sb.String()
}

// Renderer turns the blended palette into backdrop frames. Palette changes
// fade in over Transition; the ambient motion keeps its own clock.
// It is safe for concurrent use.
type Renderer struct {
	mu      sync.Mutex
	opt     RenderOptions
	theme   Theme
	epoch   time.Time
	has     bool
	from    ColorSet
	to      ColorSet
	changed time.Time
	now     func() time.Time
}

func NewRenderer(opt RenderOptions) *Renderer {
	r := &Renderer{opt: opt, now: time.Now}
	r.epoch = r.now()
	return r
}

func (r *Renderer) SetTheme(t Theme) {
	r.mu.Lock()
	r.theme = t
	r.mu.Unlock()
}

// SetPalette starts a fade from the colors currently on screen to p, or
// drops the palette when ok is false. Its signature matches
// Scene.Subscribe.
func (r *Renderer) SetPalette(p ColorSet, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if !ok || !p.Valid() {
		r.has = false
		return
	}
	if r.has {
		r.from = r.displayed(now)
	} else {
		r.from = seedSet
	}
	r.to = p
	r.changed = now
	r.has = true
}

// Frame returns the backdrop at t. A failure while building the frame
// yields the neutral frame.
func (r *Renderer) Frame(t time.Time) (f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if err := recover(); err != nil {
			log.Printf("backdrop: frame: %v", err)
			f = r.neutral()
		}
	}()

	if r.theme != ThemeDark {
		return Frame{Theme: r.theme, Static: true, Background: r.opt.Light}
	}
	if !r.has {
		return r.neutral()
	}
	return Frame{
		Theme:      r.theme,
		Background: r.opt.Dark,
		Colors:     r.displayed(t),
		Anchors:    r.opt.Anchors,
		Opacity:    r.opt.Opacity,
		Blur:       r.opt.Blur,
		Motion:     MotionAt(r.phase(t)),
	}
}

func (r *Renderer) neutral() Frame {
	return Frame{Theme: r.theme, Neutral: true, Background: r.opt.Dark}
}

func (r *Renderer) phase(t time.Time) float64 {
	if r.opt.Period <= 0 {
		return 0
	}
	d := t.Sub(r.epoch) % r.opt.Period
	if d < 0 {
		d += r.opt.Period
	}
	return float64(d) / float64(r.opt.Period)
}

// displayed returns the colors on screen at t.
func (r *Renderer) displayed(t time.Time) ColorSet {
	elapsed := t.Sub(r.changed)
	if r.opt.Transition <= 0 || elapsed >= r.opt.Transition {
		return r.to
	}
	if elapsed <= 0 {
		return r.from
	}
	p := easeInOut(float64(elapsed) / float64(r.opt.Transition))
	from, to := r.from.Slots(), r.to.Slots()
	var out [3]Color
	for i := range out {
		out[i] = colorOfColorful(from[i].Colorful().BlendRgb(to[i].Colorful(), p))
	}
	return colorSetOf(out)
}
