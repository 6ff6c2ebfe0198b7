package extract

import (
	"image"
	"image/color"
	"sort"
)

// preprocess runs the deterministic chain that maximizes OCR accuracy on
// receipt photos: grayscale, 3x3 median denoise, tiled contrast stretch,
// adaptive mean binarization, 1-px morphological close. The chain is
// content- and language-independent.
func preprocess(src image.Image) *image.Gray {
	g := toGray(src)
	g = medianDenoise(g)
	g = localContrastStretch(g, 64)
	g = adaptiveThreshold(g, 15, 10)
	g = morphClose(g)
	return g
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return g
}

// medianDenoise replaces each pixel with the median of its 3x3 neighborhood.
func medianDenoise(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	var window [9]byte
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					window[n] = src.GrayAt(px, py).Y
					n++
				}
			}
			w := window[:n]
			sort.Slice(w, func(i, j int) bool { return w[i] < w[j] })
			dst.SetGray(x, y, color.Gray{Y: w[n/2]})
		}
	}
	return dst
}

// localContrastStretch rescales each tile's intensity range to the full
// 0..255 span, which evens out uneven lighting across the photo.
func localContrastStretch(src *image.Gray, tile int) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for ty := b.Min.Y; ty < b.Max.Y; ty += tile {
		for tx := b.Min.X; tx < b.Max.X; tx += tile {
			x1, y1 := min(tx+tile, b.Max.X), min(ty+tile, b.Max.Y)

			lo, hi := byte(255), byte(0)
			for y := ty; y < y1; y++ {
				for x := tx; x < x1; x++ {
					v := src.GrayAt(x, y).Y
					if v < lo {
						lo = v
					}
					if v > hi {
						hi = v
					}
				}
			}
			span := int(hi) - int(lo)
			if span < 16 {
				// near-flat tile, copy as-is to avoid amplifying noise
				for y := ty; y < y1; y++ {
					for x := tx; x < x1; x++ {
						dst.SetGray(x, y, src.GrayAt(x, y))
					}
				}
				continue
			}
			for y := ty; y < y1; y++ {
				for x := tx; x < x1; x++ {
					v := int(src.GrayAt(x, y).Y)
					dst.SetGray(x, y, color.Gray{Y: byte((v - int(lo)) * 255 / span)})
				}
			}
		}
	}
	return dst
}

// adaptiveThreshold binarizes against the mean of a (2r+1)-square window
// minus a constant bias, using an integral image for O(1) window sums.
func adaptiveThreshold(src *image.Gray, radius, bias int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(b)

	// integral[y][x] = sum of pixels above and left of (x,y)
	integral := make([][]int64, h+1)
	for i := range integral {
		integral[i] = make([]int64, w+1)
	}
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			integral[y+1][x+1] = integral[y][x+1] + row
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(0, x-radius), max(0, y-radius)
			x1, y1 := min(w-1, x+radius), min(h-1, y+radius)
			count := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[y1+1][x1+1] - integral[y0][x1+1] - integral[y1+1][x0] + integral[y0][x0]
			mean := sum / count

			v := int64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			if v > mean-int64(bias) {
				dst.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 255})
			} else {
				dst.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 0})
			}
		}
	}
	return dst
}

// morphClose performs a 1-px dilation then erosion on the dark (ink)
// pixels, filling pinholes inside glyph strokes.
func morphClose(src *image.Gray) *image.Gray {
	dilated := morph(src, true)
	return morph(dilated, false)
}

// morph applies a 3x3 min (dilate ink) or max (erode ink) filter. Ink is
// black, so dilating ink takes the neighborhood minimum.
func morph(src *image.Gray, dilate bool) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var acc byte
			if dilate {
				acc = 255
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					v := src.GrayAt(px, py).Y
					if dilate && v < acc {
						acc = v
					}
					if !dilate && v > acc {
						acc = v
					}
				}
			}
			dst.SetGray(x, y, color.Gray{Y: acc})
		}
	}
	return dst
}
