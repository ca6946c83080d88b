package epaperify

import (
	"image"
	"image/draw"

	"github.com/disintegration/gift"
)

// Resize scales img to the given size with Lanczos resampling. If either
// dimension is zero the aspect ratio is kept. With fit set the image is
// scaled to fit inside width x height instead of being stretched to it.
func Resize(img image.Image, width, height int, fit bool) image.Image {
	if width <= 0 && height <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}

	var f gift.Filter
	if fit && width > 0 && height > 0 {
		f = gift.ResizeToFit(width, height, gift.LanczosResampling)
	} else {
		f = gift.Resize(width, height, gift.LanczosResampling)
	}

	g := gift.New(f)
	dst := image.NewRGBA(g.Bounds(b))
	g.Draw(dst, img)
	return dst
}

// pad centers img on a black canvas of exactly width x height.
func pad(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
	offset := image.Pt((width-b.Dx())/2, (height-b.Dy())/2)
	draw.Draw(dst, b.Sub(b.Min).Add(offset), img, b.Min, draw.Src)
	return dst
}
