package epaperify

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/tmpim/epaperify/task"
)

// The conversion functions below take encoded image bytes and return
// encoded image bytes. Each one copies its input before doing anything, so
// the caller may reuse its buffers as soon as the call returns or is
// abandoned. ctx is checked once, before any work starts.

// To4bpp converts an image to 16 level grayscale. PNG output is written as a
// 4-bit indexed image.
func To4bpp(ctx context.Context, data []byte, format Format) ([]byte, error) {
	return convertWith(ctx, data, format, Gray4)
}

// ToRGB4bpp converts an image to 4 bits per RGB channel.
func ToRGB4bpp(ctx context.Context, data []byte, format Format) ([]byte, error) {
	return convertWith(ctx, data, format, RGB4)
}

// ToMonochrome converts an image to black and white, splitting at
// threshold.
func ToMonochrome(ctx context.Context, data []byte, format Format, threshold uint8) ([]byte, error) {
	return convertWith(ctx, data, format, MonochromeThreshold(threshold))
}

// ToRGBImage re-encodes an image as 8-bit RGB without quantizing it.
func ToRGBImage(ctx context.Context, data []byte, format Format) ([]byte, error) {
	snapshot := bytes.Clone(data)
	return task.Run(ctx, func() ([]byte, error) {
		img, _, err := Decode(snapshot)
		if err != nil {
			return nil, err
		}
		return encodeToBytes(RGBBuffer(img), EncodeOptions{Format: format})
	})
}

// ToQOI re-encodes an image as QOI with 3 (RGB) or 4 (RGBA) channels.
func ToQOI(ctx context.Context, data []byte, channels int) ([]byte, error) {
	if channels != 3 && channels != 4 {
		return nil, layoutError("ToQOI", fmt.Sprintf("unsupported channel count %d", channels))
	}

	snapshot := bytes.Clone(data)
	return task.Run(ctx, func() ([]byte, error) {
		img, _, err := Decode(snapshot)
		if err != nil {
			return nil, err
		}

		var src image.Image = RGBABuffer(img)
		if channels == 3 {
			src = RGBBuffer(img).Image()
		}

		buf := new(bytes.Buffer)
		if err := Encode(buf, src, EncodeOptions{Format: FormatQOI, Channels: channels}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}

// DiffTwoQOIImages diffs two RGB QOI images with the default LZ4 codec.
func DiffTwoQOIImages(ctx context.Context, newData, oldData []byte) ([]byte, error) {
	newSnap := bytes.Clone(newData)
	oldSnap := bytes.Clone(oldData)
	return task.Run(ctx, func() ([]byte, error) {
		return DiffQOI(newSnap, oldSnap, DiffOptions{})
	})
}

func convertWith(ctx context.Context, data []byte, format Format, p Palette) ([]byte, error) {
	snapshot := bytes.Clone(data)
	return task.Run(ctx, func() ([]byte, error) {
		img, _, err := Decode(snapshot)
		if err != nil {
			return nil, err
		}

		quant, err := QuantizeImage(img, p)
		if err != nil {
			return nil, err
		}

		return encodeToBytes(quant, EncodeOptions{
			Format:      format,
			Palette:     &p,
			Compression: png.BestCompression,
		})
	})
}

func encodeToBytes(b *Buffer, opts EncodeOptions) ([]byte, error) {
	out := new(bytes.Buffer)
	if err := EncodeBuffer(out, b, opts); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
