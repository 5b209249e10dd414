package hologram

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Score computes the scalar focus score for method over the sub-image x
// (already cropped to the candidate rectangle).
func Score(method FocusMethodLike, x *image.Gray) float64 {
	switch method {
	case ScoreMin:
		mn, _ := minMax(x)
		return -float64(mn)
	case ScoreMax:
		_, mx := minMax(x)
		return float64(mx)
	case ScoreRange:
		mn, mx := minMax(x)
		return float64(mx) - float64(mn)
	case ScoreStd:
		return localStdDev(x, false)
	case ScoreTog:
		return togScore(x)
	case ScoreICEMET:
		return localStdDev(x, true)
	default:
		return 0
	}
}

// FocusMethodLike mirrors model.FocusMethod without importing model here,
// keeping the kernel decoupled from the envelope/data-model package; the
// recon/analysis packages convert model.FocusMethod to this type at the
// call boundary.
type FocusMethodLike int

const (
	ScoreMin FocusMethodLike = iota
	ScoreMax
	ScoreRange
	ScoreStd
	ScoreTog
	ScoreICEMET
)

func minMax(x *image.Gray) (uint8, uint8) {
	if len(x.Pix) == 0 {
		return 0, 0
	}
	mn, mx := x.Pix[0], x.Pix[0]
	for _, v := range x.Pix {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return mn, mx
}

// localStdDev computes the standard deviation of a 3x3 local-std filter
// of x (or of sqrt(x) when sqrtFirst is set, the ICEMET method).
func localStdDev(x *image.Gray, sqrtFirst bool) float64 {
	b := x.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	src := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for i := 0; i < w; i++ {
			v := float64(x.Pix[x.PixOffset(b.Min.X+i, b.Min.Y+y)])
			if sqrtFirst {
				v = math.Sqrt(v)
			}
			src[y*w+i] = v
		}
	}
	localStd := make([]float64, 0, w*h)
	for y := 1; y < h-1; y++ {
		for i := 1; i < w-1; i++ {
			var window []float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window = append(window, src[(y+dy)*w+(i+dx)])
				}
			}
			mean := stat.Mean(window, nil)
			sd := stat.StdDev(window, nil)
			_ = mean
			localStd = append(localStd, sd)
		}
	}
	if len(localStd) == 0 {
		return 0
	}
	return stat.StdDev(localStd, nil)
}

// togScore computes sqrt(std/mean) of an L1 gradient magnitude of x (the
// "Tenengrad-of-gradient" focus method).
func togScore(x *image.Gray) float64 {
	b := x.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 2 || h < 2 {
		return 0
	}
	grad := make([]float64, 0, w*h)
	for y := 0; y < h-1; y++ {
		for i := 0; i < w-1; i++ {
			v := float64(x.Pix[x.PixOffset(b.Min.X+i, b.Min.Y+y)])
			vx := float64(x.Pix[x.PixOffset(b.Min.X+i+1, b.Min.Y+y)])
			vy := float64(x.Pix[x.PixOffset(b.Min.X+i, b.Min.Y+y+1)])
			grad = append(grad, math.Abs(vx-v)+math.Abs(vy-v))
		}
	}
	mean := stat.Mean(grad, nil)
	if mean == 0 {
		return 0
	}
	std := stat.StdDev(grad, nil)
	ratio := std / mean
	if ratio < 0 {
		ratio = 0
	}
	return math.Sqrt(ratio)
}
