package epaperify

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBuffer(r *rand.Rand, width, height, channels int) *Buffer {
	b := NewBuffer(width, height, channels)
	r.Read(b.Pix)
	return b
}

func TestQuantizeGraySingleRow(t *testing.T) {
	in := &Buffer{Width: 4, Height: 1, Channels: 1, Pix: []byte{0, 17, 33, 255}}

	out, err := Quantize(in, Gray4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 16, 32, 240}, out.Pix)
	assert.Equal(t, []byte{0, 17, 33, 255}, in.Pix, "input must not be modified")
}

func TestQuantizeRGBSinglePixel(t *testing.T) {
	in := &Buffer{Width: 1, Height: 1, Channels: 3, Pix: []byte{0xff, 0x10, 0x05}}

	out, err := Quantize(in, RGB4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xf0, 0x10, 0x00}, out.Pix)
}

func TestQuantizeDiffusesError(t *testing.T) {
	// 8 is exactly halfway between two gray levels, so a flat field must
	// dither into a mix of 0 and 16 rather than collapsing to one level.
	in := NewBuffer(8, 8, 1)
	for i := range in.Pix {
		in.Pix[i] = 8
	}

	out, err := Quantize(in, Gray4)
	require.NoError(t, err)

	counts := map[byte]int{}
	for _, v := range out.Pix {
		counts[v]++
	}
	assert.Len(t, counts, 2)
	assert.NotZero(t, counts[0])
	assert.NotZero(t, counts[16])
}

func TestQuantizeIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for _, p := range []Palette{Gray4, RGB4, Monochrome, MonochromeThreshold(90)} {
		t.Run(p.String(), func(t *testing.T) {
			for _, size := range []image.Point{{1, 1}, {1, 7}, {7, 1}, {13, 9}, {64, 48}} {
				in := randomBuffer(r, size.X, size.Y, p.Channels())

				once, err := Quantize(in, p)
				require.NoError(t, err)
				twice, err := Quantize(once, p)
				require.NoError(t, err)

				assert.Equal(t, once.Pix, twice.Pix, "size %v", size)
			}
		})
	}
}

func TestQuantizeOutputIsPaletteReachable(t *testing.T) {
	r := rand.New(rand.NewSource(2))

	for _, p := range []Palette{Gray4, RGB4, Monochrome} {
		in := randomBuffer(r, 31, 17, p.Channels())
		out, err := Quantize(in, p)
		require.NoError(t, err)
		require.Equal(t, in.Width, out.Width)
		require.Equal(t, in.Height, out.Height)
		require.Equal(t, in.Channels, out.Channels)
		require.NoError(t, out.Validate())

		ch := p.Channels()
		px := make([]byte, ch)
		for i := 0; i < len(out.Pix); i += ch {
			sample := out.Pix[i : i+ch]
			require.True(t, p.lookup(p.indexOf(sample), px))
			require.Equal(t, sample, px, "%s sample at %d", p, i)
		}
	}
}

func TestQuantizeLayoutMismatch(t *testing.T) {
	gray := NewBuffer(2, 2, 1)
	rgb := NewBuffer(2, 2, 3)

	_, err := Quantize(gray, RGB4)
	assert.ErrorIs(t, err, ErrUnsupportedLayout)

	_, err = Quantize(rgb, Gray4)
	assert.ErrorIs(t, err, ErrUnsupportedLayout)

	_, err = Quantize(rgb, Palette{})
	assert.ErrorIs(t, err, ErrUnsupportedLayout)

	bad := &Buffer{Width: 3, Height: 3, Channels: 1, Pix: make([]byte, 5)}
	_, err = Quantize(bad, Gray4)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestQuantizeImageConvertsLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		img.Set(x, 0, color.RGBA{R: 0xff, G: 0x10, B: 0x05, A: 0xff})
		img.Set(x, 1, color.White)
	}

	rgb, err := QuantizeImage(img, RGB4)
	require.NoError(t, err)
	assert.Equal(t, 3, rgb.Channels)
	assert.Equal(t, []byte{0xf0, 0x10, 0x00}, rgb.Pix[:3])

	mono, err := QuantizeImage(img, Monochrome)
	require.NoError(t, err)
	assert.Equal(t, 1, mono.Channels)
	for _, v := range mono.Pix {
		assert.True(t, v == 0 || v == 0xff)
	}
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, mono.Pix[4:])
}
