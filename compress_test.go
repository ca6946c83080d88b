package epaperify

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	random := make([]byte, 4096)
	r.Read(random)

	inputs := map[string][]byte{
		"zeros":  make([]byte, 6),
		"small":  {1, 2, 3},
		"repeat": bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 1000),
		"random": random,
	}

	for _, codec := range []Codec{CodecLZ4, CodecS2, CodecZstd} {
		for name, in := range inputs {
			t.Run(codec.String()+"/"+name, func(t *testing.T) {
				comp, err := codec.Compress(in)
				require.NoError(t, err)

				out, err := codec.Decompress(comp, len(in))
				require.NoError(t, err)
				assert.Equal(t, in, out)
			})
		}
	}
}

func TestCodecCompressesDeltas(t *testing.T) {
	delta := make([]byte, 320*240*3)
	for _, codec := range []Codec{CodecLZ4, CodecS2, CodecZstd} {
		comp, err := codec.Compress(delta)
		require.NoError(t, err)
		assert.Less(t, len(comp), len(delta)/50, codec.String())
	}
}

func TestCodecEmpty(t *testing.T) {
	for _, codec := range []Codec{CodecLZ4, CodecS2, CodecZstd} {
		comp, err := codec.Compress(nil)
		require.NoError(t, err)
		assert.Empty(t, comp)

		out, err := codec.Decompress(comp, 0)
		require.NoError(t, err)
		assert.Empty(t, out)

		_, err = codec.Decompress(comp, 10)
		assert.ErrorIs(t, err, ErrCorrupt)
	}
}

func TestCodecDecompressSizeMismatch(t *testing.T) {
	in := bytes.Repeat([]byte{7}, 100)
	for _, codec := range []Codec{CodecLZ4, CodecS2, CodecZstd} {
		comp, err := codec.Compress(in)
		require.NoError(t, err)

		_, err = codec.Decompress(comp, 99)
		assert.ErrorIs(t, err, ErrCorrupt, codec.String())
		_, err = codec.Decompress(comp, 101)
		assert.ErrorIs(t, err, ErrCorrupt, codec.String())
	}
}

func TestCodecUnknown(t *testing.T) {
	_, err := Codec(9).Compress([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCompression)
	assert.False(t, IsInputError(err))

	_, err = Codec(9).Decompress([]byte{1, 2, 3}, 3)
	assert.Error(t, err)
}

func TestParseCodec(t *testing.T) {
	for name, want := range map[string]Codec{"": CodecLZ4, "LZ4": CodecLZ4, "s2": CodecS2, "zstd": CodecZstd} {
		got, err := ParseCodec(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseCodec("brotli")
	assert.Error(t, err)
	assert.False(t, Codec(9).Valid())
}
