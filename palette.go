package epaperify

import (
	"fmt"
	"image/color"
	"strings"
)

// PaletteKind identifies one of the fixed palettes.
type PaletteKind uint8

// The supported palettes.
const (
	KindGray4 PaletteKind = iota + 1
	KindRGB4
	KindMonochrome
)

// DefaultThreshold is the monochrome threshold: samples at or above it
// become white.
const DefaultThreshold = 128

const (
	gray4Levels = 16
	gray4Step   = 256 / gray4Levels
	rgb4Colors  = 1 << 12
)

// Palette is a fixed palette a quantizer maps samples onto. It is a small
// value type and safe to share between goroutines.
//
// A Palette also implements color.Model, so it can be used wherever the
// image packages expect one.
type Palette struct {
	Kind PaletteKind

	// Threshold is only used by monochrome palettes.
	Threshold uint8
}

var (
	// Gray4 is 16 evenly spaced gray levels (4 bits per pixel).
	Gray4 = Palette{Kind: KindGray4}
	// RGB4 keeps the high nibble of each channel (4096 colors).
	RGB4 = Palette{Kind: KindRGB4}
	// Monochrome is pure black and white split at DefaultThreshold.
	Monochrome = Palette{Kind: KindMonochrome, Threshold: DefaultThreshold}
)

// MonochromeThreshold returns a monochrome palette that maps samples at or
// above threshold to white.
func MonochromeThreshold(threshold uint8) Palette {
	return Palette{Kind: KindMonochrome, Threshold: threshold}
}

// ParsePalette parses the name of a palette as used on the command line and
// in the HTTP API.
func ParsePalette(name string) (Palette, error) {
	switch strings.ToLower(name) {
	case "gray4", "grey4", "4bpp":
		return Gray4, nil
	case "rgb4", "rgb4bpp":
		return RGB4, nil
	case "mono", "monochrome", "1bpp":
		return Monochrome, nil
	}
	return Palette{}, fmt.Errorf("epaperify: ParsePalette: unknown palette %q", name)
}

func (p Palette) String() string {
	switch p.Kind {
	case KindGray4:
		return "gray4"
	case KindRGB4:
		return "rgb4"
	case KindMonochrome:
		if p.Threshold == DefaultThreshold {
			return "mono"
		}
		return fmt.Sprintf("mono(%d)", p.Threshold)
	}
	return fmt.Sprintf("palette(%d)", p.Kind)
}

// Valid reports whether p is one of the supported palettes.
func (p Palette) Valid() bool {
	return p.Kind >= KindGray4 && p.Kind <= KindMonochrome
}

// Channels returns the number of samples per pixel the palette works on.
func (p Palette) Channels() int {
	if p.Kind == KindRGB4 {
		return 3
	}
	return 1
}

// Len returns the size of the palette's index space.
func (p Palette) Len() int {
	switch p.Kind {
	case KindGray4:
		return gray4Levels
	case KindRGB4:
		return rgb4Colors
	case KindMonochrome:
		return 2
	}
	return 0
}

// indexOf returns the palette index of the pixel px, which holds
// p.Channels() samples.
func (p Palette) indexOf(px []byte) int {
	switch p.Kind {
	case KindRGB4:
		return int(px[0]>>4)<<8 | int(px[1]>>4)<<4 | int(px[2]>>4)
	case KindMonochrome:
		if px[0] >= p.Threshold {
			return 1
		}
		return 0
	default:
		return int(px[0] >> 4)
	}
}

// lookup writes the color at idx into px and reports whether idx is in
// range.
func (p Palette) lookup(idx int, px []byte) bool {
	if idx < 0 || idx >= p.Len() {
		return false
	}
	switch p.Kind {
	case KindRGB4:
		px[0] = byte(idx>>8&0xf) * 16
		px[1] = byte(idx>>4&0xf) * 16
		px[2] = byte(idx&0xf) * 16
	case KindMonochrome:
		px[0] = byte(idx) * 0xff
	default:
		px[0] = byte(idx) * gray4Step
	}
	return true
}

// mapColor replaces the pixel px with its palette representative in place.
func (p Palette) mapColor(px []byte) {
	if p.Kind == KindRGB4 {
		px[0] &= 0xf0
		px[1] &= 0xf0
		px[2] &= 0xf0
		return
	}
	if !p.lookup(p.indexOf(px), px) {
		// Unreachable for 8-bit input; fall back to the boundary entry.
		p.lookup(p.Len()-1, px)
	}
}

// IndexOf returns the palette index of c.
func (p Palette) IndexOf(c color.Color) int {
	var px [3]byte
	p.samples(c, px[:])
	return p.indexOf(px[:])
}

// Lookup returns the palette color at idx.
func (p Palette) Lookup(idx int) (color.Color, bool) {
	var px [3]byte
	if !p.lookup(idx, px[:]) {
		return nil, false
	}
	return p.color(px[:]), true
}

// MapColor returns the palette representative of c.
func (p Palette) MapColor(c color.Color) color.Color {
	var px [3]byte
	p.samples(c, px[:])
	p.mapColor(px[:p.Channels()])
	return p.color(px[:])
}

// Convert implements color.Model.
func (p Palette) Convert(c color.Color) color.Color {
	return p.MapColor(c)
}

// ColorPalette returns the palette as a color.Palette in index order. It
// returns nil for palettes too large to be used by image.Paletted.
func (p Palette) ColorPalette() color.Palette {
	if p.Len() > 256 {
		return nil
	}
	out := make(color.Palette, p.Len())
	for i := range out {
		out[i], _ = p.Lookup(i)
	}
	return out
}

func (p Palette) samples(c color.Color, px []byte) {
	if p.Channels() == 1 {
		px[0] = color.GrayModel.Convert(c).(color.Gray).Y
		return
	}
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	px[0], px[1], px[2] = rgba.R, rgba.G, rgba.B
}

func (p Palette) color(px []byte) color.Color {
	if p.Channels() == 1 {
		return color.Gray{Y: px[0]}
	}
	return color.RGBA{R: px[0], G: px[1], B: px[2], A: 0xff}
}
