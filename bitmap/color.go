package bitmap

import (
	clr "github.com/lucasb-eyer/go-colorful"
	"image/color"
)

// Color is a palette entry as stored in a bitmap (an RGBQUAD): blue first.
// The fourth byte is carried through but palette colors are always treated
// as opaque.
type Color struct {
	Blue  uint8
	Green uint8
	Red   uint8
	Alpha uint8
}

func (c Color) RGBA() (r, g, b, a uint32) {
	r = uint32(c.Red) * 0x101
	g = uint32(c.Green) * 0x101
	b = uint32(c.Blue) * 0x101
	a = 0xFFFF
	return
}

// ColorOf converts any color to a palette entry, ignoring its alpha.
func ColorOf(c color.Color) Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return Color{Red: n.R, Green: n.G, Blue: n.B}
}

var (
	Black = Color{}
	White = Color{Red: 0xFF, Green: 0xFF, Blue: 0xFF}
)

type Palette []Color

// ColorPalette converts p for use with the image packages.
func (p Palette) ColorPalette() color.Palette {
	pal := make(color.Palette, len(p))
	for i, c := range p {
		pal[i] = c
	}
	return pal
}

// NearestIndex returns the index of the palette entry perceptually closest
// to c, by distance in CIE L*a*b* space. Ties go to the lowest index.
func (p Palette) NearestIndex(c color.Color) int {
	target, _ := clr.MakeColor(c)

	best, bestDistance := 0, -1.0
	for i, entry := range p {
		candidate, _ := clr.MakeColor(entry)
		d := target.DistanceLab(candidate)
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = i, d
		}
	}
	return best
}
