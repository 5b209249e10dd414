package imgproc

import (
	"image"
	"math"
)

// lanczosKernel is the Lanczos windowed-sinc kernel of radius a=4, used for
// the Segment-tile upscale in Analysis (spec.md §4.5: "Lanczos-4").
func lanczosKernel(x float64, a int) float64 {
	if x == 0 {
		return 1
	}
	fa := float64(a)
	if x < -fa || x > fa {
		return 0
	}
	piX := math.Pi * x
	return fa * math.Sin(piX) * math.Sin(piX/fa) / (piX * piX)
}

// LanczosUpscale resizes src by scale (>1) using a separable Lanczos-4
// filter, clamping to image edges (no wrap-around).
func LanczosUpscale(src *image.Gray, scale float64) *image.Gray {
	if scale <= 1 {
		return src
	}
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	dw := int(math.Round(float64(sw) * scale))
	dh := int(math.Round(float64(sh) * scale))
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	const a = 4
	out := image.NewGray(image.Rect(0, 0, dw, dh))

	sample := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if x >= sw {
			x = sw - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= sh {
			y = sh - 1
		}
		return float64(src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}

	invScale := float64(sw) / float64(dw)
	invScaleY := float64(sh) / float64(dh)

	for dy := 0; dy < dh; dy++ {
		srcY := (float64(dy)+0.5)*invScaleY - 0.5
		for dx := 0; dx < dw; dx++ {
			srcX := (float64(dx)+0.5)*invScale - 0.5
			var sum, wsum float64
			ix0 := int(math.Floor(srcX)) - a + 1
			iy0 := int(math.Floor(srcY)) - a + 1
			for j := 0; j < 2*a; j++ {
				yy := iy0 + j
				wy := lanczosKernel(srcY-float64(yy), a)
				if wy == 0 {
					continue
				}
				for i := 0; i < 2*a; i++ {
					xx := ix0 + i
					wx := lanczosKernel(srcX-float64(xx), a)
					if wx == 0 {
						continue
					}
					w := wx * wy
					sum += w * sample(xx, yy)
					wsum += w
				}
			}
			v := sum
			if wsum != 0 {
				v = sum / wsum
			}
			out.Pix[out.PixOffset(dx, dy)] = clamp8(v)
		}
	}
	return out
}

func clamp8(v float64) uint8 {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}

// Crop returns a copy of src cropped to rect, clamped to src's bounds.
func Crop(src *image.Gray, rect image.Rectangle) *image.Gray {
	r := rect.Intersect(src.Bounds())
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			out.Pix[out.PixOffset(x, y)] = src.Pix[src.PixOffset(r.Min.X+x, r.Min.Y+y)]
		}
	}
	return out
}

// Pad expands rect by n pixels on every side, clamped to bounds.
func Pad(rect, bounds image.Rectangle, n int) image.Rectangle {
	r := image.Rect(rect.Min.X-n, rect.Min.Y-n, rect.Max.X+n, rect.Max.Y+n)
	return r.Intersect(bounds)
}

// MedianGray returns the median pixel value of img.
func MedianGray(img *image.Gray) uint8 {
	if len(img.Pix) == 0 {
		return 0
	}
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}
	half := len(img.Pix) / 2
	acc := 0
	for v := 0; v < 256; v++ {
		acc += hist[v]
		if acc > half {
			return uint8(v)
		}
	}
	return 255
}
