package epaperify

import (
	"fmt"
	"image"
)

// Quantize maps buf onto the palette p with Floyd-Steinberg dithering and
// returns the result as a new buffer. buf is not modified.
//
// buf must already be in the palette's channel layout: grayscale for Gray4
// and Monochrome, RGB for RGB4. No color conversion is done here.
func Quantize(buf *Buffer, p Palette) (*Buffer, error) {
	if !p.Valid() {
		return nil, layoutError("Quantize", "unknown palette")
	}
	if err := buf.Validate(); err != nil {
		return nil, newError("Quantize", ErrShapeMismatch, err)
	}
	if buf.Channels != p.Channels() {
		return nil, layoutError("Quantize",
			fmt.Sprintf("%s needs %d channel input, got %d", p, p.Channels(), buf.Channels))
	}

	out := buf.Clone()
	dither(out, p)
	return out, nil
}

// QuantizeImage converts img to the palette's channel layout and quantizes
// it.
func QuantizeImage(img image.Image, p Palette) (*Buffer, error) {
	if !p.Valid() {
		return nil, layoutError("QuantizeImage", "unknown palette")
	}
	if img.Bounds().Empty() {
		return nil, newError("QuantizeImage", ErrShapeMismatch, fmt.Errorf("empty image"))
	}

	buf := BufferFor(img, p)
	dither(buf, p)
	return buf, nil
}
