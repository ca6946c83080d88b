package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/tmpim/epaperify"
	"github.com/tmpim/epaperify/store"
	"github.com/tmpim/epaperify/stream"
	"github.com/tmpim/epaperify/stream/server"
	"github.com/urfave/cli/v2"
)

func encoderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "width",
			Value: 400,
			Usage: "frame width in pixels",
		},
		&cli.IntFlag{
			Name:  "height",
			Value: 300,
			Usage: "frame height in pixels",
		},
		&cli.BoolFlag{
			Name:  "fit",
			Usage: "keep the aspect ratio of frames and pad them with black",
		},
		&cli.StringFlag{
			Name:    "palette",
			Aliases: []string{"p"},
			Value:   "gray4",
			Usage:   "gray4, rgb4 or mono",
		},
		&cli.IntFlag{
			Name:  "keyframe-interval",
			Value: 30,
			Usage: "frames between keyframes",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"j"},
			Value:   runtime.NumCPU(),
			Usage:   "number of frames quantized at once",
		},
	}
}

func encoderOptions(c *cli.Context) (epaperify.EncoderOptions, error) {
	p, err := epaperify.ParsePalette(c.String("palette"))
	if err != nil {
		return epaperify.EncoderOptions{}, cli.Exit(err, 1)
	}

	codec, err := codecFlag(c)
	if err != nil {
		return epaperify.EncoderOptions{}, err
	}

	return epaperify.EncoderOptions{
		Context:          c.Context,
		Width:            c.Int("width"),
		Height:           c.Int("height"),
		Fit:              c.Bool("fit"),
		Workers:          c.Int("workers"),
		Palette:          p,
		Codec:            codec,
		KeyframeInterval: c.Int("keyframe-interval"),
		Logger:           newLogger(c),
	}, nil
}

func sequenceCommand() *cli.Command {
	return &cli.Command{
		Name:      "sequence",
		Usage:     "Encode a directory of images as keyframes and deltas",
		ArgsUsage: "DIRECTORY",
		Flags: append(encoderFlags(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "packet file to write (default DIRECTORY.epf)",
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "also record the sequence in the history database",
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}

			opts, err := encoderOptions(c)
			if err != nil {
				return err
			}
			logger := opts.Logger

			dir := filepath.Clean(c.Args().First())
			meta, paths, err := stream.DirectorySource(dir)
			if err != nil {
				return cli.Exit(err, 1)
			}

			path := c.String("output")
			if path == "" {
				path = dir + ".epf"
			}
			f, err := os.Create(path)
			if err != nil {
				return cli.Exit(err, 1)
			}
			defer f.Close()
			wr := bufio.NewWriter(f)

			var db *store.Store
			var streamID int64
			if c.Bool("record") {
				if db, err = store.Open(c.String("db")); err != nil {
					return cli.Exit(err, 1)
				}
				defer db.Close()

				header := epaperify.Header{Width: opts.Width, Height: opts.Height, Channels: opts.Palette.Channels()}
				if streamID, err = db.CreateStream(meta.Title, header, opts.Palette, opts.Codec); err != nil {
					return cli.Exit(err, 1)
				}
			}

			start := time.Now()
			output := make(chan epaperify.Delta, opts.Workers)
			encodeDone := make(chan error, 1)
			go func() {
				encodeDone <- epaperify.EncodeSequence(stream.LoadFrames(c.Context, paths, logger), output, opts)
			}()

			var count, total int
			var writeErr error
			for d := range output {
				if writeErr != nil {
					continue
				}
				if _, writeErr = d.WriteTo(wr); writeErr != nil {
					continue
				}
				if db != nil {
					if writeErr = db.Append(streamID, d); writeErr != nil {
						continue
					}
				}
				count++
				total += len(d.Data)
			}

			if err := <-encodeDone; err != nil {
				return cli.Exit(err, 1)
			}
			if writeErr != nil {
				return cli.Exit(writeErr, 1)
			}
			if err := wr.Flush(); err != nil {
				return cli.Exit(err, 1)
			}

			fmt.Printf("%d of %d frames, %d bytes, written to %s in %s\n", count, meta.Frames, total, path, time.Since(start))
			if db != nil {
				fmt.Printf("recorded as stream %d\n", streamID)
			}
			return nil
		},
	}
}

func unpackCommand() *cli.Command {
	return &cli.Command{
		Name:      "unpack",
		Usage:     "Decode a packet file into one image per frame",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   ".",
				Usage:   "directory to write frames to",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "png",
				Usage:   "image format of the frames",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}

			format, err := outputFormat(c)
			if err != nil {
				return err
			}

			f, err := os.Open(c.Args().First())
			if err != nil {
				return cli.Exit(err, 1)
			}
			defer f.Close()
			rd := bufio.NewReader(f)

			var prev *epaperify.Frame
			for {
				d, err := epaperify.ReadDelta(rd)
				if err == io.EOF {
					return nil
				} else if err != nil {
					return cli.Exit(err, 1)
				}

				if prev, err = d.Apply(prev); err != nil {
					return cli.Exit(fmt.Errorf("frame %d: %w", d.Seq, err), 1)
				}

				if err := writeFrame(filepath.Join(c.String("output"), fmt.Sprintf("%06d.%s", d.Seq, format)), prev, format); err != nil {
					return cli.Exit(err, 1)
				}
			}
		},
	}
}

func writeFrame(path string, f *epaperify.Frame, format epaperify.Format) error {
	buf := new(bytes.Buffer)
	if err := epaperify.Encode(buf, frameImage(f), epaperify.EncodeOptions{Format: format}); err != nil {
		return err
	}
	return ioutil.WriteFile(path, buf.Bytes(), 0644)
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List recorded streams, their frames, or export a frame",
		ArgsUsage: "[STREAM [FRAME]]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "frame.png",
				Usage:   "where to write an exported frame",
			},
			&cli.BoolFlag{
				Name:  "delete",
				Usage: "delete STREAM",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 2 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}

			db, err := store.Open(c.String("db"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			defer db.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', 0)
			defer w.Flush()

			if c.NArg() == 0 {
				streams, err := db.Streams()
				if err != nil {
					return cli.Exit(err, 1)
				}
				fmt.Fprintln(w, "ID\tNAME\tSIZE\tPALETTE\tCODEC\tFRAMES\tKEYFRAMES\tBYTES\tCREATED")
				for _, s := range streams {
					fmt.Fprintf(w, "%d\t%s\t%dx%d\t%s\t%s\t%d\t%d\t%d\t%s\n", s.ID, s.Name, s.Header.Width, s.Header.Height,
						s.Palette, s.Codec, s.Frames, s.Keyframe, s.Bytes, s.Created.Format(time.RFC3339))
				}
				return nil
			}

			id, err := strconv.ParseInt(c.Args().Get(0), 10, 64)
			if err != nil {
				return cli.Exit("STREAM must be a number", 1)
			}

			if c.Bool("delete") {
				if err := db.DeleteStream(id); err != nil {
					return cli.Exit(err, 1)
				}
				return nil
			}

			if c.NArg() == 1 {
				frames, err := db.Frames(id)
				if err != nil {
					return cli.Exit(err, 1)
				}
				fmt.Fprintln(w, "SEQ\tKEYFRAME\tBYTES")
				for _, f := range frames {
					fmt.Fprintf(w, "%d\t%v\t%d\n", f.Seq, f.Keyframe, f.Size)
				}
				return nil
			}

			seq, err := strconv.ParseUint(c.Args().Get(1), 10, 32)
			if err != nil {
				return cli.Exit("FRAME must be a number", 1)
			}

			frame, err := db.Reconstruct(id, uint32(seq))
			if err != nil {
				return cli.Exit(err, 1)
			}

			format, err := epaperify.ParseFormat(filepath.Ext(c.String("output")))
			if err != nil {
				return cli.Exit(err, 1)
			}
			if err := writeFrame(c.String("output"), frame, format); err != nil {
				return cli.Exit(err, 1)
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API and stream played directories to websocket clients",
		Flags: append(encoderFlags(),
			&cli.StringFlag{
				Name:    "listen",
				EnvVars: []string{"EPAPERIFY_LISTEN"},
				Value:   ":9999",
				Usage:   "address to listen on",
			},
			&cli.IntFlag{
				Name:  "framerate",
				Value: 2,
				Usage: "frames sent per second while playing",
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "record played sequences in the history database",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
				Usage: "maximum time spent on one conversion",
			},
		),
		Action: func(c *cli.Context) error {
			opts, err := encoderOptions(c)
			if err != nil {
				return err
			}

			db, err := store.Open(c.String("db"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			defer db.Close()

			streamOpts := stream.Options{
				Encoder:   opts,
				Framerate: c.Int("framerate"),
				Logger:    opts.Logger,
			}
			if c.Bool("record") {
				streamOpts.Store = db
			}

			e := server.New(server.Config{
				Manager: stream.NewStreamManager(streamOpts),
				Store:   db,
				Codec:   opts.Codec,
				Timeout: c.Duration("timeout"),
				Quiet:   !c.Bool("verbose"),
			})

			return e.Start(c.String("listen"))
		},
	}
}
