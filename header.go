package epaperify

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ColorSpace is the color space tag carried by a decoded image. The values
// are the ones used in QOI headers.
type ColorSpace uint8

// Known color spaces.
const (
	SRGB   ColorSpace = 0
	Linear ColorSpace = 1
)

func (c ColorSpace) String() string {
	switch c {
	case SRGB:
		return "sRGB"
	case Linear:
		return "linear"
	}
	return fmt.Sprintf("colorspace(%d)", uint8(c))
}

// Header describes the layout of a decoded image. It is only used to check
// that two images can be diffed.
type Header struct {
	Width      int
	Height     int
	Channels   int
	ColorSpace ColorSpace
}

// Samples returns the number of samples an image with this header holds.
func (h Header) Samples() int {
	return h.Width * h.Height * h.Channels
}

// Frame is a decoded image: its header and raw samples.
type Frame struct {
	Header Header
	Pix    []byte
}

// NewFrame wraps a quantized or converted buffer as an sRGB frame.
func NewFrame(b *Buffer) *Frame {
	return &Frame{
		Header: Header{
			Width:      b.Width,
			Height:     b.Height,
			Channels:   b.Channels,
			ColorSpace: SRGB,
		},
		Pix: b.Pix,
	}
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Header: f.Header,
		Pix:    append([]byte(nil), f.Pix...),
	}
}

const (
	qoiMagic      = "qoif"
	qoiHeaderSize = 14
)

var (
	errQOIHeader    = errors.New("qoi: invalid header")
	errQOITruncated = errors.New("qoi: truncated chunk stream")
)

var qoiEnd = []byte{0, 0, 0, 0, 0, 0, 0, 1}

type truncatedReader struct{}

func (truncatedReader) Read([]byte) (int, error) {
	return 0, errQOITruncated
}

func readQOIHeader(data []byte) (Header, error) {
	if len(data) < qoiHeaderSize || string(data[:4]) != qoiMagic {
		return Header{}, errQOIHeader
	}

	h := Header{
		Width:      int(binary.BigEndian.Uint32(data[4:8])),
		Height:     int(binary.BigEndian.Uint32(data[8:12])),
		Channels:   int(data[12]),
		ColorSpace: ColorSpace(data[13]),
	}
	if h.Width == 0 || h.Height == 0 {
		return Header{}, errQOIHeader
	}
	if h.Channels != 3 && h.Channels != 4 {
		return Header{}, fmt.Errorf("qoi: invalid channel count %d", h.Channels)
	}
	return h, nil
}

// QOI headers are informative only: the chunk stream is the same whatever
// they say, so the encoder's defaults can be overwritten in place.
func writeQOIHeader(data []byte, channels int, cs ColorSpace) {
	data[12] = byte(channels)
	data[13] = byte(cs)
}
