package backdrop

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an opaque 8-bit RGB triple.
type Color struct {
	R, G, B uint8
}

// RGB returns the Color with the given channels.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// ColorOf converts any color.Color, dropping alpha.
func ColorOf(c color.Color) Color {
	r, g, b, _ := c.RGBA()
	return Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}

func colorOfColorful(c colorful.Color) Color {
	r, g, b := c.Clamped().RGB255()
	return Color{R: r, G: g, B: b}
}

// RGBA returns c as a fully opaque color.RGBA.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// Colorful returns c in go-colorful's normalized representation.
func (c Color) Colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

// Brightness is the integer mean of the three channels.
func (c Color) Brightness() int {
	return (int(c.R) + int(c.G) + int(c.B)) / 3
}

// IsZero reports whether c is black, which marks an unpopulated slot.
func (c Color) IsZero() bool {
	return c == Color{}
}

// String formats c as a CSS rgb() value.
func (c Color) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// Hex formats c as #rrggbb.
func (c Color) Hex() string {
	return c.Colorful().Hex()
}

// QuantizedColor is a Color whose channels are floored to a bucket boundary.
// It is a grouping key and never displayed directly.
type QuantizedColor Color

// Quantize floors every channel of c to a multiple of step.
func Quantize(c Color, step int) QuantizedColor {
	if step <= 1 {
		return QuantizedColor(c)
	}
	q := func(v uint8) uint8 {
		return uint8(int(v) / step * step)
	}
	return QuantizedColor{R: q(c.R), G: q(c.G), B: q(c.B)}
}

// key packs q for ordering.
func (q QuantizedColor) key() uint32 {
	return uint32(q.R)<<16 | uint32(q.G)<<8 | uint32(q.B)
}

// ColorSet holds the three representative colors of an image, or a palette
// blended from several images.
type ColorSet struct {
	Primary   Color
	Secondary Color
	Tertiary  Color
}

// Valid reports whether every slot is populated.
func (s ColorSet) Valid() bool {
	return !s.Primary.IsZero() && !s.Secondary.IsZero() && !s.Tertiary.IsZero()
}

// Slots returns the colors in primary, secondary, tertiary order.
func (s ColorSet) Slots() [3]Color {
	return [3]Color{s.Primary, s.Secondary, s.Tertiary}
}

func colorSetOf(slots [3]Color) ColorSet {
	return ColorSet{Primary: slots[0], Secondary: slots[1], Tertiary: slots[2]}
}

func (s ColorSet) String() string {
	return fmt.Sprintf("{%v %v %v}", s.Primary, s.Secondary, s.Tertiary)
}

// seedSet is what the backdrop fades in from when a palette first appears.
var seedSet = ColorSet{
	Primary:   RGB(30, 30, 30),
	Secondary: RGB(60, 60, 60),
	Tertiary:  RGB(40, 40, 40),
}

// MarshalText encodes c as #rrggbb.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText decodes #rrggbb or #rgb.
func (c *Color) UnmarshalText(text []byte) error {
	col, err := colorful.Hex(string(text))
	if err != nil {
		return fmt.Errorf("color %q: %w", text, err)
	}
	*c = colorOfColorful(col)
	return nil
}
