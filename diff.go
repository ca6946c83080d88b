package epaperify

import (
	"fmt"
)

// DiffOptions controls the layout a diff requires and the compressor used
// for its output.
type DiffOptions struct {
	// Channels is the channel count both frames must have. Zero means 3
	// (RGB without alpha).
	Channels int
	Codec    Codec
}

func (o DiffOptions) channels() int {
	if o.Channels == 0 {
		return 3
	}
	return o.Channels
}

// checkFrame verifies that f can take part in a diff. which names the frame
// in error messages.
func (o DiffOptions) checkFrame(f *Frame, which string) error {
	if f.Header.Channels != o.channels() {
		return layoutError("Diff", fmt.Sprintf("%s image has %d channels, want %d",
			which, f.Header.Channels, o.channels()))
	}
	if f.Header.ColorSpace != SRGB {
		return layoutError("Diff", fmt.Sprintf("%s image is not sRGB", which))
	}
	return nil
}

// Diff XORs the samples of two frames of the same shape and compresses the
// result. Both frames are validated before any sample is read and nothing
// is returned on failure.
//
// The output has no header: Patch needs the old frame to know how large the
// delta is.
func Diff(newFrame, oldFrame *Frame, opts DiffOptions) ([]byte, error) {
	if err := opts.checkFrame(newFrame, "new"); err != nil {
		return nil, err
	}
	if err := opts.checkFrame(oldFrame, "old"); err != nil {
		return nil, err
	}
	if len(newFrame.Pix) != len(oldFrame.Pix) {
		return nil, newError("Diff", ErrShapeMismatch,
			fmt.Errorf("%d samples against %d", len(newFrame.Pix), len(oldFrame.Pix)))
	}

	delta := make([]byte, len(newFrame.Pix))
	xorInto(delta, newFrame.Pix, oldFrame.Pix)

	return opts.Codec.Compress(delta)
}

// DiffQOI decodes two QOI images and diffs them.
func DiffQOI(newData, oldData []byte, opts DiffOptions) ([]byte, error) {
	newFrame, err := DecodeQOI(newData)
	if err != nil {
		return nil, newError("Diff", ErrDecode, fmt.Errorf("new image: %w", err))
	}

	oldFrame, err := DecodeQOI(oldData)
	if err != nil {
		return nil, newError("Diff", ErrDecode, fmt.Errorf("old image: %w", err))
	}

	return Diff(newFrame, oldFrame, opts)
}

// Patch applies a delta produced by Diff to the old frame and returns the
// samples of the new frame.
func Patch(oldFrame *Frame, delta []byte, codec Codec) ([]byte, error) {
	raw, err := codec.Decompress(delta, len(oldFrame.Pix))
	if err != nil {
		return nil, err
	}

	xorInto(raw, raw, oldFrame.Pix)
	return raw, nil
}
