package epaperify

// Floyd-Steinberg weights, in sixteenths.
const (
	weightRight     = 7
	weightDownLeft  = 3
	weightDown      = 5
	weightDownRight = 1
)

// dither maps every pixel of b onto p in raster order, diffusing the
// rounding error of each pixel into its unvisited neighbours. b is modified
// in place; the caller owns it.
func dither(b *Buffer, p Palette) {
	ch := b.Channels
	stride := b.Stride()

	var before [3]int16
	var residual [3]int16

	for y := 0; y < b.Height; y++ {
		lastRow := y == b.Height-1
		for x := 0; x < b.Width; x++ {
			i := y*stride + x*ch
			px := b.Pix[i : i+ch]

			for c := range px {
				before[c] = int16(px[c])
			}
			p.mapColor(px)
			zero := true
			for c := range px {
				residual[c] = before[c] - int16(px[c])
				if residual[c] != 0 {
					zero = false
				}
			}
			if zero {
				continue
			}

			e := residual[:ch]
			if x+1 < b.Width {
				diffuse(b.Pix[i+ch:i+2*ch], e, weightRight)
			}
			if lastRow {
				continue
			}
			below := i + stride
			if x > 0 {
				diffuse(b.Pix[below-ch:below], e, weightDownLeft)
			}
			diffuse(b.Pix[below:below+ch], e, weightDown)
			if x+1 < b.Width {
				diffuse(b.Pix[below+ch:below+2*ch], e, weightDownRight)
			}
		}
	}
}

func diffuse(px []byte, residual []int16, weight int16) {
	for c, e := range residual {
		v := int16(px[c]) + e*weight/16
		switch {
		case v < 0:
			px[c] = 0
		case v > 0xff:
			px[c] = 0xff
		default:
			px[c] = byte(v)
		}
	}
}
