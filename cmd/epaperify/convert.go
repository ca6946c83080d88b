package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io/ioutil"
	"log"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tmpim/epaperify"
	"github.com/tmpim/epaperify/task"
	"github.com/urfave/cli/v2"
)

type convertFunc func(ctx context.Context, data []byte) ([]byte, error)

func batchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output file, only valid with a single input",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "output format: png, qoi, bmp, tiff, jpeg or gif (default from --output, else png)",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"j"},
			Value:   runtime.NumCPU(),
			Usage:   "number of images converted at once",
		},
	}
}

func outputFormat(c *cli.Context) (epaperify.Format, error) {
	name := c.String("format")
	if name == "" {
		name = filepath.Ext(c.String("output"))
	}
	format, err := epaperify.ParseFormat(name)
	if err != nil {
		return 0, cli.Exit(err, 1)
	}
	return format, nil
}

func outputPath(input, mode string, format epaperify.Format) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "." + mode + "." + format.String()
}

// runBatch converts every input file on a task pool and writes the results
// next to their inputs.
func runBatch(c *cli.Context, mode string, format epaperify.Format, fn convertFunc) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	logger := newLogger(c)
	inputs := c.Args().Slice()
	output := c.String("output")
	if output != "" && len(inputs) > 1 {
		return cli.Exit("--output can only be used with a single input", 1)
	}

	fns := make([]task.Func, len(inputs))
	for i, input := range inputs {
		input := input
		fns[i] = func() ([]byte, error) {
			data, err := ioutil.ReadFile(input)
			if err != nil {
				return nil, err
			}
			return fn(c.Context, data)
		}
	}

	pool := task.Pool{Workers: c.Int("workers")}
	failed := 0
	for i, r := range pool.Run(c.Context, fns) {
		if r.Err != nil {
			log.Printf("%s: %v", inputs[i], r.Err)
			failed++
			continue
		}

		path := output
		if path == "" {
			path = outputPath(inputs[i], mode, format)
		}
		if err := ioutil.WriteFile(path, r.Data, 0644); err != nil {
			log.Printf("%s: %v", inputs[i], err)
			failed++
			continue
		}

		logger.Printf("epaperify %s: %s -> %s (%d bytes)", mode, inputs[i], path, len(r.Data))
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d images failed", failed, len(inputs)), 1)
	}
	return nil
}

func convertCommand(name, usage string, fn func(context.Context, []byte, epaperify.Format) ([]byte, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "IMAGE...",
		Flags:     batchFlags(),
		Action: func(c *cli.Context) error {
			format, err := outputFormat(c)
			if err != nil {
				return err
			}

			return runBatch(c, name, format, func(ctx context.Context, data []byte) ([]byte, error) {
				return fn(ctx, data, format)
			})
		},
	}
}

func monoCommand() *cli.Command {
	return &cli.Command{
		Name:      "mono",
		Usage:     "Dither to black and white",
		ArgsUsage: "IMAGE...",
		Flags: append(batchFlags(), &cli.UintFlag{
			Name:    "threshold",
			Aliases: []string{"t"},
			Value:   epaperify.DefaultThreshold,
			Usage:   "gray level at or above which a pixel is white (0-255)",
		}),
		Action: func(c *cli.Context) error {
			format, err := outputFormat(c)
			if err != nil {
				return err
			}

			threshold := c.Uint("threshold")
			if threshold > 0xff {
				return cli.Exit("threshold cannot be greater than 255", 1)
			}

			return runBatch(c, "mono", format, func(ctx context.Context, data []byte) ([]byte, error) {
				return epaperify.ToMonochrome(ctx, data, format, uint8(threshold))
			})
		},
	}
}

func qoiCommand() *cli.Command {
	flags := batchFlags()
	flags = append(flags[:1:1], flags[2], &cli.IntFlag{
		Name:    "channels",
		Aliases: []string{"c"},
		Value:   3,
		Usage:   "3 for RGB or 4 for RGBA",
	})

	return &cli.Command{
		Name:      "qoi",
		Usage:     "Re-encode as QOI",
		ArgsUsage: "IMAGE...",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			channels := c.Int("channels")
			if channels != 3 && channels != 4 {
				return cli.Exit("channels must be 3 or 4", 1)
			}

			return runBatch(c, "qoi", epaperify.FormatQOI, func(ctx context.Context, data []byte) ([]byte, error) {
				return epaperify.ToQOI(ctx, data, channels)
			})
		},
	}
}

func diffCommand() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Compress the XOR of two RGB QOI images",
		ArgsUsage: "NEW OLD",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "delta.bin",
				Usage:   "output file",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}

			codec, err := codecFlag(c)
			if err != nil {
				return err
			}

			var images [2][]byte
			for i := range images {
				if images[i], err = ioutil.ReadFile(c.Args().Get(i)); err != nil {
					return cli.Exit(err, 1)
				}
			}

			delta, err := task.Run(c.Context, func() ([]byte, error) {
				return epaperify.DiffQOI(images[0], images[1], epaperify.DiffOptions{Codec: codec})
			})
			if err != nil {
				return cli.Exit(err, 1)
			}

			if err := ioutil.WriteFile(c.String("output"), delta, 0644); err != nil {
				return cli.Exit(err, 1)
			}

			newLogger(c).Printf("epaperify diff: %d byte %s delta written to %s", len(delta), codec, c.String("output"))
			return nil
		},
	}
}

func patchCommand() *cli.Command {
	return &cli.Command{
		Name:      "patch",
		Usage:     "Rebuild the new QOI image from the old one and a delta",
		ArgsUsage: "OLD DELTA",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "patched.qoi",
				Usage:   "output file",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}

			codec, err := codecFlag(c)
			if err != nil {
				return err
			}

			data, err := ioutil.ReadFile(c.Args().Get(0))
			if err != nil {
				return cli.Exit(err, 1)
			}
			old, err := epaperify.DecodeQOI(data)
			if err != nil {
				return cli.Exit(err, 1)
			}

			delta, err := ioutil.ReadFile(c.Args().Get(1))
			if err != nil {
				return cli.Exit(err, 1)
			}

			pix, err := epaperify.Patch(old, delta, codec)
			if err != nil {
				return cli.Exit(err, 1)
			}

			img := frameImage(&epaperify.Frame{Header: old.Header, Pix: pix})

			buf := new(bytes.Buffer)
			if err := epaperify.Encode(buf, img, epaperify.EncodeOptions{
				Format:   epaperify.FormatQOI,
				Channels: old.Header.Channels,
			}); err != nil {
				return cli.Exit(err, 1)
			}

			if err := ioutil.WriteFile(c.String("output"), buf.Bytes(), 0644); err != nil {
				return cli.Exit(err, 1)
			}
			return nil
		},
	}
}

// frameImage wraps decoded samples as an image. Four channel frames are
// non-premultiplied RGBA.
func frameImage(f *epaperify.Frame) image.Image {
	if f.Header.Channels == 4 {
		return &image.NRGBA{
			Pix:    f.Pix,
			Stride: f.Header.Width * 4,
			Rect:   image.Rect(0, 0, f.Header.Width, f.Header.Height),
		}
	}

	b := &epaperify.Buffer{
		Width:    f.Header.Width,
		Height:   f.Header.Height,
		Channels: f.Header.Channels,
		Pix:      f.Pix,
	}
	return b.Image()
}

func qualityCommand() *cli.Command {
	return &cli.Command{
		Name:      "quality",
		Usage:     "Report the mean CIE Lab distance between an image and its quantized version",
		ArgsUsage: "ORIGINAL [QUANTIZED]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "palette",
				Aliases: []string{"p"},
				Value:   "gray4",
				Usage:   "palette used when QUANTIZED is not given: gray4, rgb4 or mono",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 || c.NArg() > 2 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}

			original, err := decodeFile(c.Args().Get(0))
			if err != nil {
				return cli.Exit(err, 1)
			}

			var quantized image.Image
			if c.NArg() == 2 {
				if quantized, err = decodeFile(c.Args().Get(1)); err != nil {
					return cli.Exit(err, 1)
				}
			} else {
				p, err := epaperify.ParsePalette(c.String("palette"))
				if err != nil {
					return cli.Exit(err, 1)
				}
				q, err := epaperify.QuantizeImage(original, p)
				if err != nil {
					return cli.Exit(err, 1)
				}
				quantized = q.Image()
			}

			d, err := epaperify.MeanDistance(epaperify.RGBBuffer(original), epaperify.RGBBuffer(quantized))
			if err != nil {
				return cli.Exit(err, 1)
			}

			fmt.Printf("%.4f\n", d)
			return nil
		},
	}
}

func decodeFile(path string) (image.Image, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := epaperify.Decode(data)
	return img, err
}
