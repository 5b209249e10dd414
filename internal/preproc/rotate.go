package preproc

import (
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
)

// affine2x3 builds the 2x3 rotation-about-center matrix configured rotation
// angle (degrees), using gonum/mat the way the reconstruction/stats
// packages use gonum elsewhere in this module for small dense linear
// algebra — here it is mostly documentation of intent (the matrix is read
// back out for the per-pixel inverse-mapping sampler below) but keeps the
// rotation construction expressed as a real affine transform rather than
// ad hoc trig at each call site.
func affine2x3(angleDeg float64, cx, cy float64) *mat.Dense {
	theta := angleDeg * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	m := mat.NewDense(2, 3, []float64{
		cos, -sin, cx - cx*cos + cy*sin,
		sin, cos, cy - cx*sin - cy*cos,
	})
	return m
}

// Rotate applies a rotation of angleDeg degrees about the image center to
// src, sampling with nearest-neighbor (no CV library in the pack; this is
// the documented stdlib-only boundary — see DESIGN.md). Returns a new
// image.Gray of the same bounds.
func Rotate(src *image.Gray, angleDeg float64) *image.Gray {
	if angleDeg == 0 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	cx, cy := float64(w)/2, float64(h)/2
	fwd := affine2x3(angleDeg, cx, cy)
	// Inverse-map each destination pixel back into source space using the
	// transpose rotation (rotation matrices are orthonormal: R^-1 == R^T).
	a, bb := fwd.At(0, 0), fwd.At(0, 1)
	c, d := fwd.At(1, 0), fwd.At(1, 1)
	tx, ty := fwd.At(0, 2), fwd.At(1, 2)

	out := image.NewGray(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// forward: dst = R*src + t, so src = R^T*(dst-t)
			dx := float64(x) - tx
			dy := float64(y) - ty
			sx := a*dx + c*dy
			sy := bb*dx + d*dy
			ix, iy := int(math.Round(sx)), int(math.Round(sy))
			if ix < 0 || ix >= w || iy < 0 || iy >= h {
				continue
			}
			out.Pix[out.PixOffset(b.Min.X+x, b.Min.Y+y)] = src.Pix[src.PixOffset(b.Min.X+ix, b.Min.Y+iy)]
		}
	}
	return out
}

// Crop returns a copy of src cropped to rect (clamped to src's bounds).
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
