package epaperify

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Packet types. Every packet starts with one of these bytes.
const (
	PacketKeyframe = iota + 1
	PacketDelta
	PacketMetadata
	PacketStop
)

// deltaHeaderSize is the size of the fixed part of a frame packet after the
// type byte.
const deltaHeaderSize = 4 + 2 + 2 + 1 + 1 + 4

// Delta is one encoded frame of a sequence. A keyframe holds the compressed
// samples of the whole frame; any other delta holds the compressed XOR
// against the previous frame.
type Delta struct {
	Seq      uint32
	Keyframe bool
	Header   Header
	Codec    Codec
	Data     []byte
}

// PacketType returns the packet type byte for d.
func (d *Delta) PacketType() byte {
	if d.Keyframe {
		return PacketKeyframe
	}
	return PacketDelta
}

// Apply returns the samples of this frame. prev is the previous frame of the
// sequence and is ignored for keyframes.
func (d *Delta) Apply(prev *Frame) (*Frame, error) {
	if d.Keyframe {
		pix, err := d.Codec.Decompress(d.Data, d.Header.Samples())
		if err != nil {
			return nil, err
		}
		return &Frame{Header: d.Header, Pix: pix}, nil
	}

	if prev == nil {
		return nil, newError("Apply", ErrCorrupt, errors.New("delta without a previous frame"))
	}
	if prev.Header.Samples() != d.Header.Samples() {
		return nil, newError("Apply", ErrShapeMismatch,
			fmt.Errorf("previous frame has %d samples, delta %d", prev.Header.Samples(), d.Header.Samples()))
	}

	pix, err := Patch(prev, d.Data, d.Codec)
	if err != nil {
		return nil, err
	}
	return &Frame{Header: d.Header, Pix: pix}, nil
}

// WriteTo writes d as a packet: the type byte, a big-endian header and the
// compressed data.
func (d *Delta) WriteTo(w io.Writer) (int64, error) {
	if d.Header.Width > 0xffff || d.Header.Height > 0xffff {
		return 0, fmt.Errorf("epaperify: WriteTo: frame too large: %dx%d", d.Header.Width, d.Header.Height)
	}

	wr := bufio.NewWriter(w)

	var hdr [1 + deltaHeaderSize]byte
	hdr[0] = d.PacketType()
	binary.BigEndian.PutUint32(hdr[1:5], d.Seq)
	binary.BigEndian.PutUint16(hdr[5:7], uint16(d.Header.Width))
	binary.BigEndian.PutUint16(hdr[7:9], uint16(d.Header.Height))
	hdr[9] = byte(d.Header.Channels)
	hdr[10] = byte(d.Codec)
	binary.BigEndian.PutUint32(hdr[11:15], uint32(len(d.Data)))

	total := 0
	n, err := wr.Write(hdr[:])
	total += n
	if err != nil {
		return int64(total), err
	}

	n, err = wr.Write(d.Data)
	total += n
	if err != nil {
		return int64(total), err
	}

	return int64(total), wr.Flush()
}

// ReadDelta reads one packet written by WriteTo. It returns io.EOF if r is
// empty.
func ReadDelta(r io.Reader) (*Delta, error) {
	var hdr [1 + deltaHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		return nil, err
	}
	if hdr[0] != PacketKeyframe && hdr[0] != PacketDelta {
		return nil, newError("ReadDelta", ErrCorrupt, fmt.Errorf("unexpected packet type %d", hdr[0]))
	}
	if _, err := io.ReadFull(r, hdr[1:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	d := &Delta{
		Seq:      binary.BigEndian.Uint32(hdr[1:5]),
		Keyframe: hdr[0] == PacketKeyframe,
		Header: Header{
			Width:      int(binary.BigEndian.Uint16(hdr[5:7])),
			Height:     int(binary.BigEndian.Uint16(hdr[7:9])),
			Channels:   int(hdr[9]),
			ColorSpace: SRGB,
		},
		Codec: Codec(hdr[10]),
	}
	if !d.Codec.Valid() {
		return nil, newError("ReadDelta", ErrCorrupt, fmt.Errorf("unknown codec %d", hdr[10]))
	}

	size := int(binary.BigEndian.Uint32(hdr[11:15]))
	if size > 2*d.Header.Samples()+1024 {
		return nil, newError("ReadDelta", ErrCorrupt, fmt.Errorf("%d byte payload for %d samples", size, d.Header.Samples()))
	}

	d.Data = make([]byte, size)
	if _, err := io.ReadFull(r, d.Data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return d, nil
}
