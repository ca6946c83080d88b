package epaperify

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/xfmoulet/qoi"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Format is an image container format the encoder can write.
type Format uint8

// Supported output formats.
const (
	FormatPNG Format = iota + 1
	FormatQOI
	FormatBMP
	FormatTIFF
	FormatJPEG
	FormatGIF
)

var formatNames = map[string]Format{
	"png":  FormatPNG,
	"qoi":  FormatQOI,
	"bmp":  FormatBMP,
	"tif":  FormatTIFF,
	"tiff": FormatTIFF,
	"jpg":  FormatJPEG,
	"jpeg": FormatJPEG,
	"gif":  FormatGIF,
}

// ParseFormat returns the format for a file extension, with or without the
// leading dot. An empty extension selects PNG.
func ParseFormat(ext string) (Format, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return FormatPNG, nil
	}
	if f, ok := formatNames[ext]; ok {
		return f, nil
	}
	return 0, newError("ParseFormat", ErrUnknownFormat, fmt.Errorf("%q", ext))
}

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatQOI:
		return "qoi"
	case FormatBMP:
		return "bmp"
	case FormatTIFF:
		return "tiff"
	case FormatJPEG:
		return "jpeg"
	case FormatGIF:
		return "gif"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatQOI:
		return "image/qoi"
	case FormatTIFF:
		return "image/tiff"
	case FormatJPEG:
		return "image/jpeg"
	}
	return "image/" + f.String()
}

// Decode decodes an image in any registered format: PNG, JPEG, GIF, BMP,
// TIFF, WebP or QOI.
func Decode(data []byte) (image.Image, string, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", newError("Decode", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, "", newError("Decode", ErrDecode, fmt.Errorf("empty image"))
	}
	return img, name, nil
}

// DecodeQOI decodes a QOI image into a frame, keeping the channel count and
// color space of its header.
func DecodeQOI(data []byte) (*Frame, error) {
	h, err := readQOIHeader(data)
	if err != nil {
		return nil, newError("DecodeQOI", ErrDecode, err)
	}

	if len(data) < qoiHeaderSize+len(qoiEnd) || !bytes.Equal(data[len(data)-len(qoiEnd):], qoiEnd) {
		return nil, newError("DecodeQOI", ErrDecode, errQOITruncated)
	}

	// The decoder treats EOF as the end of the image and zero fills the
	// rest, so running out of chunks before the end marker must fail.
	chunks := io.MultiReader(bytes.NewReader(data[:len(data)-len(qoiEnd)]), truncatedReader{})
	img, err := qoi.Decode(chunks)
	if err != nil {
		return nil, newError("DecodeQOI", ErrDecode, err)
	}

	if img.Bounds().Dx() != h.Width || img.Bounds().Dy() != h.Height {
		return nil, newError("DecodeQOI", ErrDecode, errQOIHeader)
	}

	if h.Channels == 4 {
		return &Frame{Header: h, Pix: append([]byte(nil), RGBABuffer(img).Pix...)}, nil
	}
	return &Frame{Header: h, Pix: RGBBuffer(img).Pix}, nil
}

// EncodeOptions controls how images are written.
type EncodeOptions struct {
	Format Format

	// Palette, when set and small enough, makes PNG, GIF, BMP and TIFF
	// output indexed instead of direct color.
	Palette *Palette

	// Channels selects the QOI header channel count, 3 or 4. Zero means 3.
	Channels int

	// Compression is the PNG compression level.
	Compression png.CompressionLevel

	// Quality is the JPEG quality. Zero means jpeg.DefaultQuality.
	Quality int
}

// Encode writes img to w in the requested format.
func Encode(w io.Writer, img image.Image, opts EncodeOptions) error {
	var err error
	switch opts.Format {
	case FormatPNG, 0:
		enc := png.Encoder{CompressionLevel: opts.Compression}
		err = enc.Encode(w, img)
	case FormatQOI:
		err = encodeQOI(w, img, opts.Channels)
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatJPEG:
		q := opts.Quality
		if q == 0 {
			q = jpeg.DefaultQuality
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	case FormatGIF:
		err = gif.Encode(w, img, nil)
	default:
		return newError("Encode", ErrUnknownFormat, fmt.Errorf("%s", opts.Format))
	}
	if err != nil {
		return newError("Encode", ErrEncode, err)
	}
	return nil
}

// EncodeBuffer writes a buffer, indexed by opts.Palette where possible.
func EncodeBuffer(w io.Writer, b *Buffer, opts EncodeOptions) error {
	var img image.Image
	if opts.Palette != nil && opts.Format != FormatQOI && opts.Format != FormatJPEG {
		if pm, err := b.Paletted(*opts.Palette); err == nil {
			img = pm
		}
	}
	if img == nil {
		img = b.Image()
	}
	return Encode(w, img, opts)
}

func encodeQOI(w io.Writer, img image.Image, channels int) error {
	if channels == 0 {
		channels = 3
	}
	if channels != 3 && channels != 4 {
		return layoutError("Encode", fmt.Sprintf("qoi cannot hold %d channels", channels))
	}

	if channels == 3 {
		// Drop alpha so the chunk stream matches the header.
		img = RGBBuffer(img).Image()
	}

	buf := new(bytes.Buffer)
	if err := qoi.Encode(buf, img); err != nil {
		return err
	}
	data := buf.Bytes()
	if len(data) < qoiHeaderSize {
		return errQOIHeader
	}
	writeQOIHeader(data, channels, SRGB)

	_, err := w.Write(data)
	return err
}
