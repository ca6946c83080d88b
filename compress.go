package epaperify

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the lossless compressor used for deltas and keyframes.
type Codec uint8

// Supported codecs. LZ4 is the default: it favours speed over ratio.
const (
	CodecLZ4 Codec = iota
	CodecS2
	CodecZstd
)

// ParseCodec parses a codec name.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "lz4":
		return CodecLZ4, nil
	case "s2":
		return CodecS2, nil
	case "zstd":
		return CodecZstd, nil
	}
	return 0, fmt.Errorf("epaperify: ParseCodec: unknown codec %q", name)
}

func (c Codec) String() string {
	switch c {
	case CodecLZ4:
		return "lz4"
	case CodecS2:
		return "s2"
	case CodecZstd:
		return "zstd"
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

// Valid reports whether c is a known codec.
func (c Codec) Valid() bool {
	return c <= CodecZstd
}

var lz4Pool = sync.Pool{
	New: func() interface{} {
		return new(lz4.Compressor)
	},
}

var zstdEncPool = sync.Pool{
	New: func() interface{} {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedFastest),
			zstd.WithLowerEncoderMem(true),
		)
		if err != nil {
			panic(err)
		}
		return enc
	},
}

var zstdDecPool = sync.Pool{
	New: func() interface{} {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
		)
		if err != nil {
			panic(err)
		}
		return dec
	},
}

// Compress compresses src. The output carries no length header; LZ4 blocks
// in particular can only be decompressed by a caller that knows the
// original size.
func (c Codec) Compress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}

	switch c {
	case CodecLZ4:
		comp := lz4Pool.Get().(*lz4.Compressor)
		defer lz4Pool.Put(comp)

		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := comp.CompressBlock(src, dst)
		if err != nil {
			return nil, newError("Compress", ErrCompression, err)
		}
		if n == 0 {
			return nil, newError("Compress", ErrCompression, fmt.Errorf("lz4: no output"))
		}
		return dst[:n], nil
	case CodecS2:
		return s2.Encode(nil, src), nil
	case CodecZstd:
		enc := zstdEncPool.Get().(*zstd.Encoder)
		out := enc.EncodeAll(src, nil)
		zstdEncPool.Put(enc)
		return out, nil
	}
	return nil, newError("Compress", ErrCompression, fmt.Errorf("unknown codec %s", c))
}

// Decompress reverses Compress. size is the exact number of bytes the
// data decompresses to; any other length is reported as ErrCorrupt.
func (c Codec) Decompress(src []byte, size int) ([]byte, error) {
	if len(src) == 0 {
		if size == 0 {
			return []byte{}, nil
		}
		return nil, newError("Decompress", ErrCorrupt, fmt.Errorf("empty input, want %d bytes", size))
	}

	var out []byte
	switch c {
	case CodecLZ4:
		out = make([]byte, size)
		n, err := lz4.UncompressBlock(src, out)
		if err != nil {
			return nil, newError("Decompress", ErrCorrupt, err)
		}
		out = out[:n]
	case CodecS2:
		n, err := s2.DecodedLen(src)
		if err != nil {
			return nil, newError("Decompress", ErrCorrupt, err)
		}
		if n != size {
			return nil, newError("Decompress", ErrCorrupt, fmt.Errorf("got %d bytes, want %d", n, size))
		}
		out, err = s2.Decode(nil, src)
		if err != nil {
			return nil, newError("Decompress", ErrCorrupt, err)
		}
	case CodecZstd:
		dec := zstdDecPool.Get().(*zstd.Decoder)
		var err error
		out, err = dec.DecodeAll(src, make([]byte, 0, size))
		zstdDecPool.Put(dec)
		if err != nil {
			return nil, newError("Decompress", ErrCorrupt, err)
		}
	default:
		return nil, newError("Decompress", ErrCorrupt, fmt.Errorf("unknown codec %s", c))
	}

	if len(out) != size {
		return nil, newError("Decompress", ErrCorrupt, fmt.Errorf("got %d bytes, want %d", len(out), size))
	}
	return out, nil
}
