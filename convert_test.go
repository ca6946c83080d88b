package epaperify

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, Encode(buf, img, EncodeOptions{Format: FormatPNG}))
	return buf.Bytes()
}

func TestTo4bpp(t *testing.T) {
	out, err := To4bpp(context.Background(), pngBytes(t, gradient(32, 16)), FormatPNG)
	require.NoError(t, err)

	img, name, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "png", name)

	pm, ok := img.(*image.Paletted)
	require.True(t, ok)
	for _, idx := range pm.Pix {
		assert.Less(t, int(idx), 16)
	}
}

func TestToMonochrome(t *testing.T) {
	out, err := ToMonochrome(context.Background(), pngBytes(t, gradient(32, 16)), FormatBMP, DefaultThreshold)
	require.NoError(t, err)

	img, name, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "bmp", name)

	for _, v := range GrayBuffer(img).Pix {
		assert.True(t, v == 0 || v == 0xff, "sample %d", v)
	}
}

func TestToRGB4bpp(t *testing.T) {
	for _, f := range []Format{FormatPNG, FormatQOI} {
		t.Run(f.String(), func(t *testing.T) {
			out, err := ToRGB4bpp(context.Background(), pngBytes(t, gradient(32, 16)), f)
			require.NoError(t, err)

			img, name, err := Decode(out)
			require.NoError(t, err)
			assert.Equal(t, f.String(), name)

			for _, v := range RGBBuffer(img).Pix {
				assert.Zero(t, v&0x0f)
			}
		})
	}

	out, err := ToRGB4bpp(context.Background(), pngBytes(t, gradient(4, 4)), FormatQOI)
	require.NoError(t, err)
	frame, err := DecodeQOI(out)
	require.NoError(t, err)
	assert.Equal(t, 3, frame.Header.Channels)
}

func TestToRGBImage(t *testing.T) {
	src := gradient(9, 7)
	out, err := ToRGBImage(context.Background(), pngBytes(t, src), FormatTIFF)
	require.NoError(t, err)

	img, name, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "tiff", name)
	assert.Equal(t, RGBBuffer(src).Pix, RGBBuffer(img).Pix)

	translucent := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	translucent.Set(0, 0, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 128})
	translucent.Set(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})

	out, err = ToRGBImage(context.Background(), pngBytes(t, translucent), FormatPNG)
	require.NoError(t, err)
	img, _, err = Decode(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 10, 20, 30}, RGBBuffer(img).Pix)
}

func TestToQOI(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	src.Set(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	for _, channels := range []int{3, 4} {
		out, err := ToQOI(context.Background(), pngBytes(t, src), channels)
		require.NoError(t, err)

		frame, err := DecodeQOI(out)
		require.NoError(t, err)
		assert.Equal(t, channels, frame.Header.Channels)
		assert.Len(t, frame.Pix, 9*channels)

		want := []byte{10, 20, 30, 128}[:channels]
		assert.Equal(t, want, frame.Pix[4*channels:5*channels])
	}

	_, err := ToQOI(context.Background(), pngBytes(t, src), 2)
	assert.ErrorIs(t, err, ErrUnsupportedLayout)
}

func TestDiffTwoQOIImages(t *testing.T) {
	a := encodeQOITest(t, solidImage(2, 2, color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff}), 3)

	delta, err := DiffTwoQOIImages(context.Background(), a, a)
	require.NoError(t, err)

	raw, err := CodecLZ4.Decompress(delta, 12)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 12), raw)
}

func TestConversionsSnapshotInput(t *testing.T) {
	data := pngBytes(t, gradient(8, 8))
	orig := append([]byte(nil), data...)

	_, err := To4bpp(context.Background(), data, FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, orig, data)
}

func TestConversionsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := pngBytes(t, gradient(8, 8))

	_, err := To4bpp(ctx, data, FormatPNG)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCanceled(err))

	_, err = DiffTwoQOIImages(ctx, data, data)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConversionsBadInput(t *testing.T) {
	_, err := ToRGB4bpp(context.Background(), []byte("nope"), FormatPNG)
	assert.ErrorIs(t, err, ErrDecode)
	assert.True(t, IsInputError(err))
}
