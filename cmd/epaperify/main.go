package main

import (
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	"github.com/tmpim/epaperify"
	"github.com/urfave/cli/v2"
)

const defaultDB = "epaperify.db"

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(ioutil.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

func codecFlag(c *cli.Context) (epaperify.Codec, error) {
	codec, err := epaperify.ParseCodec(c.String("codec"))
	if err != nil {
		return 0, cli.Exit(err, 1)
	}
	return codec, nil
}

func main() {
	app := cli.NewApp()

	app.Name = "epaperify"
	app.Usage = "Quantize images for e-paper displays and encode frame deltas"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"EPAPERIFY_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to the frame history database",
		},
		&cli.StringFlag{
			Name:    "codec",
			EnvVars: []string{"EPAPERIFY_CODEC"},
			Value:   "lz4",
			Usage:   "delta compression: lz4, s2 or zstd",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		convertCommand("gray4", "Dither to 16 levels of gray", epaperify.To4bpp),
		convertCommand("rgb4", "Dither to 4 bits per RGB channel", epaperify.ToRGB4bpp),
		monoCommand(),
		convertCommand("rgb", "Re-encode as 8-bit RGB without dithering", epaperify.ToRGBImage),
		qoiCommand(),
		diffCommand(),
		patchCommand(),
		qualityCommand(),
		sequenceCommand(),
		unpackCommand(),
		historyCommand(),
		serveCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
