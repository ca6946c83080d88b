package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"time"

	"github.com/tmpim/epaperify"
	"github.com/tmpim/epaperify/task"
)

var (
	workers    = flag.Int("w", 8, "number of concurrent workers")
	iterations = flag.Int("n", 100, "iterations per palette")
	codecName  = flag.String("codec", "lz4", "delta codec: lz4, s2 or zstd")
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: benchmark [options] image")
	}

	data, err := ioutil.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	img, _, err := epaperify.Decode(data)
	if err != nil {
		log.Fatal(err)
	}

	codec, err := epaperify.ParseCodec(*codecName)
	if err != nil {
		log.Fatal(err)
	}

	for _, p := range []epaperify.Palette{epaperify.Gray4, epaperify.RGB4, epaperify.Monochrome} {
		src := epaperify.BufferFor(img, p)

		// Each unit quantizes a slightly shifted copy and diffs it against
		// the unshifted result, like consecutive frames of a sequence.
		base, err := epaperify.Quantize(src, p)
		if err != nil {
			log.Fatal(err)
		}
		baseFrame := epaperify.NewFrame(base)

		fns := make([]task.Func, *iterations)
		for i := range fns {
			shift := uint8(i)
			fns[i] = func() ([]byte, error) {
				shifted := src.Clone()
				for j := range shifted.Pix {
					shifted.Pix[j] += shift
				}

				quant, err := epaperify.Quantize(shifted, p)
				if err != nil {
					return nil, err
				}

				return epaperify.Diff(epaperify.NewFrame(quant), baseFrame, epaperify.DiffOptions{
					Channels: p.Channels(),
					Codec:    codec,
				})
			}
		}

		start := time.Now()
		pool := task.Pool{Workers: *workers}
		results := pool.Run(context.Background(), fns)
		took := time.Since(start)

		total := 0
		for _, r := range results {
			if r.Err != nil {
				log.Fatal(r.Err)
			}
			total += len(r.Data)
		}

		fmt.Printf("%-6s took: %v (%v per frame), mean delta: %d bytes of %d\n", p, took,
			took/time.Duration(len(fns)), total/len(fns), len(base.Pix))
	}
}
