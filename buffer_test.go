package epaperify

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrayBufferLuma(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 5, 1))
	img.Set(0, 0, color.NRGBA{R: 0xff, A: 0xff})
	img.Set(1, 0, color.NRGBA{G: 0xff, A: 0xff})
	img.Set(2, 0, color.NRGBA{B: 0xff, A: 0xff})
	img.Set(3, 0, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 128})
	img.Set(4, 0, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0})

	assert.Equal(t, []byte{54, 182, 18, 0xff, 0xff}, GrayBuffer(img).Pix)

	premul := image.NewRGBA(image.Rect(0, 0, 1, 1))
	premul.Set(0, 0, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 128})
	assert.Equal(t, []byte{0xff}, GrayBuffer(premul).Pix)
}

func TestRGBBufferDropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 128})
	img.Set(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 10, 20, 30}, RGBBuffer(img).Pix)

	premul := image.NewRGBA(image.Rect(0, 0, 1, 1))
	premul.Set(0, 0, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 128})
	assert.Equal(t, []byte{0xff, 0xff, 0xff}, RGBBuffer(premul).Pix)
}

func TestBufferSubImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 2, color.NRGBA{R: 1, G: 2, B: 3, A: 0xff})
	sub := img.SubImage(image.Rect(2, 2, 4, 4))

	b := RGBBuffer(sub)
	assert.Equal(t, 2, b.Width)
	assert.Equal(t, []byte{1, 2, 3}, b.Pix[:3])

	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	gray.SetGray(3, 1, color.Gray{Y: 9})
	g := GrayBuffer(gray.SubImage(image.Rect(2, 1, 4, 2)))
	assert.Equal(t, []byte{0, 9}, g.Pix)
}
