package epaperify

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// MeanDistance returns the mean CIE L*a*b* distance between the pixels of
// two buffers of the same shape. It is used to report how far a quantized
// image strays from its source; 0 means identical.
func MeanDistance(a, b *Buffer) (float64, error) {
	if a.Width != b.Width || a.Height != b.Height || a.Channels != b.Channels {
		return 0, newError("MeanDistance", ErrShapeMismatch,
			fmt.Errorf("%dx%dx%d against %dx%dx%d",
				a.Width, a.Height, a.Channels, b.Width, b.Height, b.Channels))
	}
	if err := a.Validate(); err != nil {
		return 0, newError("MeanDistance", ErrShapeMismatch, err)
	}
	if err := b.Validate(); err != nil {
		return 0, newError("MeanDistance", ErrShapeMismatch, err)
	}

	// Most of a quantized image repeats a few colors.
	cache := make(map[uint32]colorful.Color)
	lab := func(buf *Buffer, x, y int) colorful.Color {
		i := (y*buf.Width + x) * buf.Channels
		key := uint32(buf.Pix[i])
		if buf.Channels == 3 {
			key = key<<16 | uint32(buf.Pix[i+1])<<8 | uint32(buf.Pix[i+2])
		}
		if c, ok := cache[key]; ok {
			return c
		}
		c, _ := colorful.MakeColor(pixelAt(buf, x, y))
		cache[key] = c
		return c
	}

	var total float64
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			total += lab(a, x, y).DistanceLab(lab(b, x, y))
		}
	}
	return total / float64(a.Width*a.Height), nil
}
