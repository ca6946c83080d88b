package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/disintegration/gift"
	"github.com/tmpim/epaperify"
)

var (
	inputDir  = flag.String("i", "./input_test", "directory of test images")
	outputDir = flag.String("o", "./output_test", "directory for previews, empty to skip them")
	width     = flag.Int("width", 400, "width images are resized to")
	height    = flag.Int("height", 300, "height images are resized to")
	profile   = flag.String("cpuprofile", "", "write a CPU profile to this file")
)

var palettes = []epaperify.Palette{epaperify.Gray4, epaperify.RGB4, epaperify.Monochrome}

func main() {
	flag.Parse()

	if *profile != "" {
		f, err := os.Create(*profile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	files, err := ioutil.ReadDir(*inputDir)
	if err != nil {
		log.Fatal(err)
	}

	if *outputDir != "" {
		if err := os.MkdirAll(*outputDir, 0755); err != nil {
			log.Fatal(err)
		}
	}

	totals := make([]float64, len(palettes))
	count := 0

	fmt.Printf("%-32s %10s %10s %10s\n", "image", palettes[0], palettes[1], palettes[2])
	for _, f := range files {
		if f.IsDir() {
			continue
		}

		distances, ok := measure(f.Name())
		if !ok {
			continue
		}

		fmt.Printf("%-32s %10.3f %10.3f %10.3f\n", f.Name(), distances[0], distances[1], distances[2])
		for i, d := range distances {
			totals[i] += d
		}
		count++
	}

	if count == 0 {
		log.Fatal("no images in ", *inputDir)
	}

	fmt.Printf("%-32s %10.3f %10.3f %10.3f\n", "mean", totals[0]/float64(count),
		totals[1]/float64(count), totals[2]/float64(count))
}

func measure(name string) ([]float64, bool) {
	start := time.Now()

	data, err := ioutil.ReadFile(filepath.Join(*inputDir, name))
	if err != nil {
		log.Println("Failed to read image:", err)
		return nil, false
	}

	orig, _, err := epaperify.Decode(data)
	if err != nil {
		log.Println("Failed to decode image:", name, err)
		return nil, false
	}

	img := image.NewRGBA(image.Rect(0, 0, *width, *height))
	gift.Resize(*width, *height, gift.LanczosResampling).Draw(img, orig, &gift.Options{
		Parallelization: false,
	})

	log.Println(name, "read+resize:", time.Since(start))

	src := epaperify.RGBBuffer(img)
	distances := make([]float64, len(palettes))

	for i, p := range palettes {
		quant, err := epaperify.QuantizeImage(img, p)
		if err != nil {
			log.Println("Failed to quantize image:", err)
			return nil, false
		}

		distances[i], err = epaperify.MeanDistance(src, epaperify.RGBBuffer(quant.Image()))
		if err != nil {
			log.Println("Failed to measure image:", err)
			return nil, false
		}

		log.Println(name, p, "quant:", time.Since(start))

		if *outputDir != "" {
			preview(name, p, quant)
		}
	}

	return distances, true
}

func preview(name string, p epaperify.Palette, quant *epaperify.Buffer) {
	buf := new(bytes.Buffer)
	if err := epaperify.EncodeBuffer(buf, quant, epaperify.EncodeOptions{
		Format:  epaperify.FormatPNG,
		Palette: &p,
	}); err != nil {
		log.Println("Warning: Failed to encode preview image:", err)
		return
	}

	basename := strings.TrimSuffix(name, filepath.Ext(name))
	path := filepath.Join(*outputDir, basename+"."+p.String()+".png")
	if err := ioutil.WriteFile(path, buf.Bytes(), 0644); err != nil {
		log.Println("Warning: Failed to write preview image:", err)
	}
}
