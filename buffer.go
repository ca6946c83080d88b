package epaperify

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Buffer is a row-major block of 8-bit samples with a fixed number of
// channels per pixel: 1 for grayscale and monochrome, 3 for RGB.
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(width, height, channels int) *Buffer {
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}
}

// Validate checks that the buffer's dimensions agree with its samples.
func (b *Buffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", b.Width, b.Height)
	}
	if b.Channels != 1 && b.Channels != 3 {
		return fmt.Errorf("invalid channel count %d", b.Channels)
	}
	if len(b.Pix) != b.Width*b.Height*b.Channels {
		return fmt.Errorf("buffer holds %d samples, %dx%dx%d needs %d",
			len(b.Pix), b.Width, b.Height, b.Channels, b.Width*b.Height*b.Channels)
	}
	return nil
}

// Clone returns a copy of b that shares no memory with it.
func (b *Buffer) Clone() *Buffer {
	dup := *b
	dup.Pix = append([]byte(nil), b.Pix...)
	return &dup
}

// Stride returns the number of samples in one row.
func (b *Buffer) Stride() int {
	return b.Width * b.Channels
}

// Image returns the buffer as an *image.Gray or *image.RGBA. The samples
// are copied.
func (b *Buffer) Image() image.Image {
	r := image.Rect(0, 0, b.Width, b.Height)
	if b.Channels == 1 {
		img := image.NewGray(r)
		copy(img.Pix, b.Pix)
		return img
	}

	img := image.NewRGBA(r)
	for i, j := 0, 0; i < len(b.Pix); i, j = i+3, j+4 {
		img.Pix[j+0] = b.Pix[i+0]
		img.Pix[j+1] = b.Pix[i+1]
		img.Pix[j+2] = b.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// Paletted returns the buffer as an indexed image using p. Every sample
// must already be a color of p, so this is only meaningful for quantized
// buffers and for palettes of at most 256 colors.
func (b *Buffer) Paletted(p Palette) (*image.Paletted, error) {
	cp := p.ColorPalette()
	if cp == nil || b.Channels != p.Channels() {
		return nil, layoutError("Paletted", fmt.Sprintf("%s cannot index a %d channel buffer", p, b.Channels))
	}

	img := image.NewPaletted(image.Rect(0, 0, b.Width, b.Height), cp)
	for i := range img.Pix {
		img.Pix[i] = uint8(p.indexOf(b.Pix[i*b.Channels : i*b.Channels+b.Channels]))
	}
	return img, nil
}

// Rec. 709 luma weights, scaled by lumaScale.
const (
	lumaR     = 2126
	lumaG     = 7152
	lumaB     = 722
	lumaScale = 10000
)

// GrayBuffer converts img to a single channel Rec. 709 luma buffer. Alpha is
// dropped without being applied to the color.
func GrayBuffer(img image.Image) *Buffer {
	bounds := img.Bounds()
	buf := NewBuffer(bounds.Dx(), bounds.Dy(), 1)

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < buf.Height; y++ {
			copy(buf.Pix[y*buf.Width:(y+1)*buf.Width], gray.Pix[gray.PixOffset(bounds.Min.X, bounds.Min.Y+y):])
		}
		return buf
	}

	nrgba := RGBABuffer(img)
	for y := 0; y < buf.Height; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		out := buf.Pix[y*buf.Width:]
		for x := 0; x < buf.Width; x++ {
			r, g, b := uint32(row[x*4+0]), uint32(row[x*4+1]), uint32(row[x*4+2])
			out[x] = uint8((lumaR*r + lumaG*g + lumaB*b) / lumaScale)
		}
	}
	return buf
}

// RGBBuffer converts img to a three channel buffer. Alpha is dropped without
// being applied to the color.
func RGBBuffer(img image.Image) *Buffer {
	bounds := img.Bounds()
	nrgba := RGBABuffer(img)

	buf := NewBuffer(bounds.Dx(), bounds.Dy(), 3)
	for y := 0; y < buf.Height; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		out := buf.Pix[y*buf.Stride():]
		for x := 0; x < buf.Width; x++ {
			out[x*3+0] = row[x*4+0]
			out[x*3+1] = row[x*4+1]
			out[x*3+2] = row[x*4+2]
		}
	}
	return buf
}

// RGBABuffer converts img to non-premultiplied RGBA samples whose bounds
// start at the origin. Straight alpha images are returned or copied as is,
// so fully transparent pixels keep their color.
func RGBABuffer(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	r := image.Rect(0, 0, bounds.Dx(), bounds.Dy())

	switch src := img.(type) {
	case *image.NRGBA:
		if bounds.Min == (image.Point{}) {
			return src
		}
		nrgba := image.NewNRGBA(r)
		for y := 0; y < r.Dy(); y++ {
			copy(nrgba.Pix[y*nrgba.Stride:(y+1)*nrgba.Stride], src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):])
		}
		return nrgba
	case *image.RGBA:
		if src.Opaque() {
			nrgba := image.NewNRGBA(r)
			for y := 0; y < r.Dy(); y++ {
				copy(nrgba.Pix[y*nrgba.Stride:(y+1)*nrgba.Stride], src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):])
			}
			return nrgba
		}
	}

	nrgba := image.NewNRGBA(r)
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	return nrgba
}

// BufferFor converts img to the channel layout p works on.
func BufferFor(img image.Image, p Palette) *Buffer {
	if p.Channels() == 1 {
		return GrayBuffer(img)
	}
	return RGBBuffer(img)
}

func pixelAt(b *Buffer, x, y int) color.Color {
	i := (y*b.Width + x) * b.Channels
	if b.Channels == 1 {
		return color.Gray{Y: b.Pix[i]}
	}
	return color.RGBA{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2], A: 0xff}
}
