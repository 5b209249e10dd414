package hologram

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// field2D is a padded W×H complex working buffer, row-major.
type field2D struct {
	w, h int
	data []complex128
}

func newField2D(w, h int) *field2D {
	return &field2D{w: w, h: h, data: make([]complex128, w*h)}
}

func (f *field2D) at(x, y int) complex128    { return f.data[y*f.w+x] }
func (f *field2D) set(x, y int, v complex128) { f.data[y*f.w+x] = v }

// fft2 performs an in-place, unitary-scaled 2-D forward FFT (row passes
// then column passes), the standard separable technique for applying a
// 1-D FFT library to 2-D data. gonum's fourier.CmplxFFT Coefficients and
// Sequence are both unnormalized (a Coefficients/Sequence round trip
// scales by N), so forward divides by sqrt(W*H) and inverse (see ifft2)
// also divides by sqrt(W*H); the combined round trip is the identity.
func fft2(f *field2D) {
	rowFFT := fourier.NewCmplxFFT(f.w)
	row := make([]complex128, f.w)
	rowScale := 1 / math.Sqrt(float64(f.w))
	for y := 0; y < f.h; y++ {
		copy(row, f.data[y*f.w:(y+1)*f.w])
		out := rowFFT.Coefficients(nil, row)
		for x, v := range out {
			f.data[y*f.w+x] = v * complex(rowScale, 0)
		}
	}

	colFFT := fourier.NewCmplxFFT(f.h)
	col := make([]complex128, f.h)
	colScale := 1 / math.Sqrt(float64(f.h))
	for x := 0; x < f.w; x++ {
		for y := 0; y < f.h; y++ {
			col[y] = f.at(x, y)
		}
		out := colFFT.Coefficients(nil, col)
		for y, v := range out {
			f.set(x, y, v*complex(colScale, 0))
		}
	}
}

// ifft2 performs the matching in-place unitary-scaled inverse 2-D FFT.
func ifft2(f *field2D) {
	colFFT := fourier.NewCmplxFFT(f.h)
	col := make([]complex128, f.h)
	colScale := 1 / math.Sqrt(float64(f.h))
	for x := 0; x < f.w; x++ {
		for y := 0; y < f.h; y++ {
			col[y] = f.at(x, y)
		}
		out := colFFT.Sequence(nil, col)
		for y, v := range out {
			f.set(x, y, v*complex(colScale, 0))
		}
	}

	rowFFT := fourier.NewCmplxFFT(f.w)
	row := make([]complex128, f.w)
	rowScale := 1 / math.Sqrt(float64(f.w))
	for y := 0; y < f.h; y++ {
		copy(row, f.data[y*f.w:(y+1)*f.w])
		out := rowFFT.Sequence(nil, row)
		for x, v := range out {
			f.data[y*f.w+x] = v * complex(rowScale, 0)
		}
	}
}

// fftFreq returns the FFT-domain frequency (cycles per unit length) for
// bin i of an n-point transform sampled at spacing d, matching numpy's
// fftfreq convention: 0, 1, ..., n/2-1, -n/2, ..., -1, all divided by n*d.
func fftFreq(i, n int, d float64) float64 {
	if i >= (n+1)/2 {
		i -= n
	}
	return float64(i) / (float64(n) * d)
}

// nextFFTSize returns the smallest size >= n that is 2^a * 3^b * 5^c,
// which gonum's fourier FFT handles efficiently (mixed-radix Cooley-Tukey).
func nextFFTSize(n int) int {
	if n < 1 {
		return 1
	}
	for v := n; ; v++ {
		r := v
		for r%2 == 0 {
			r /= 2
		}
		for r%3 == 0 {
			r /= 3
		}
		for r%5 == 0 {
			r /= 5
		}
		if r == 1 {
			return v
		}
	}
}

// cabs is |z|, broken out for call-site clarity in recon.go.
func cabs(z complex128) float64 { return cmplx.Abs(z) }
