// Package hologram implements the numerical reconstruction kernel: FFT
// based angular-spectrum propagation, the super-Gaussian low/high-pass
// filter, z-range minimum projection, and the 1-D focus search. It is the
// core numerical component shared by the Preproc (coarse check) and Recon
// (full z-sweep) stages.
package hologram

import (
	"image"
	"math"

	"github.com/icemet/icemet-server/internal/model"
)

// FilterKind selects a super-Gaussian low-pass or high-pass response.
type FilterKind int

const (
	FilterLowpass FilterKind = iota
	FilterHighpass
)

// Filter is a precomputed frequency-domain super-Gaussian response,
// H(u,v) = exp(-((u/sigma_u)^2 + (v/sigma_v)^2)^3) for lowpass, or
// 1-lowpass for highpass, of order 6 at half-power frequency f.
type Filter struct {
	w, h int
	data []complex128
}

// Hologram is the FFT-domain spectrum of the current image plus the
// angular-spectrum propagator and a reusable working field. One instance
// is owned by Preproc (for the coarse reconstruction check) and one
// independently by Recon (for the full z-sweep), per spec.md §3.
type Hologram struct {
	psz  float64 // pixel size, meters
	lam  float64 // wavelength, meters
	dist float64 // source distance, meters (0 = collimated)

	origW, origH int // un-padded image size
	w, h         int // padded FFT-friendly size

	spectrum  *field2D // current image spectrum, set by SetImg/ApplyFilter
	propagator *field2D // P(u,v), depends only on (w,h,psz,lam)
}

// New constructs a Hologram for the given pixel size, wavelength, source
// distance, and image dimensions. Padding is chosen as the next
// 2^a*3^b*5^c size >= w,h (mixed-radix friendly for the FFT library).
func New(psz, lam, dist float64, w, h int) *Hologram {
	pw, ph := nextFFTSize(w), nextFFTSize(h)
	holo := &Hologram{
		psz: psz, lam: lam, dist: dist,
		origW: w, origH: h,
		w: pw, h: ph,
	}
	holo.propagator = holo.buildPropagator()
	return holo
}

// Magn returns the point-source magnification at depth z for a source at
// distance dist: 1 if dist==0 (collimated), else dist/(dist-z).
func Magn(dist, z float64) float64 {
	if dist == 0 {
		return 1
	}
	return dist / (dist - z)
}

func (h *Hologram) buildPropagator() *field2D {
	p := newField2D(h.w, h.h)
	extW := float64(h.w) * h.psz
	extH := float64(h.h) * h.psz
	k := 2 * math.Pi / h.lam
	for y := 0; y < h.h; y++ {
		v := fftFreq(y, h.h, 1) / extH * float64(h.h) // cycles per meter == i/(H*psz)
		for x := 0; x < h.w; x++ {
			u := fftFreq(x, h.w, 1) / extW * float64(h.w)
			arg := 1 - (h.lam*u)*(h.lam*u) - (h.lam*v)*(h.lam*v)
			var kz float64
			if arg >= 0 {
				kz = k * math.Sqrt(arg)
			} else {
				// evanescent: exponential decay, represented as a large
				// negative imaginary exponent argument below.
				kz = 0
			}
			var val complex128
			if arg >= 0 {
				val = complex(math.Cos(kz), math.Sin(kz))
			} else {
				decay := k * math.Sqrt(-arg)
				val = complex(math.Exp(-decay), 0)
			}
			p.set(x, y, val)
		}
	}
	return p
}

// propagatorPow returns P(u,v)^zScale, i.e. the propagator advanced by a
// depth of zScale meters (zScale already includes the magn(dist,z)
// factor, per spec.md §4.3's propagate(z) definition).
func (h *Hologram) propagatorPow(zScale float64) *field2D {
	out := newField2D(h.w, h.h)
	for i, v := range h.propagator.data {
		// v = exp(i*kz) (or real decay for evanescent components);
		// raising to a real power zScale/psz-normalized step count is
		// z/psz_depth_unit... propagator was built for one "unit" depth
		// step of 1 meter in kz; z-th power is exp(i*kz*z).
		mag := cabsPow(v, zScale)
		out.data[i] = mag
	}
	return out
}

func cabsPow(v complex128, p float64) complex128 {
	r := cabs(v)
	if r == 0 {
		return 0
	}
	theta := phase(v)
	nr := math.Pow(r, p)
	nt := theta * p
	return complex(nr*math.Cos(nt), nr*math.Sin(nt))
}

func phase(v complex128) float64 {
	return math.Atan2(imag(v), real(v))
}

// SetImg copies img into the top-left corner of a padded buffer filled
// with the image mean (to suppress FFT wrap-around), then takes the
// forward FFT with unitary scaling into h.spectrum.
func (h *Hologram) SetImg(img *image.Gray) {
	mean := meanOf(img)
	f := newField2D(h.w, h.h)
	for i := range f.data {
		f.data[i] = complex(mean, 0)
	}
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := img.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			f.set(x, y, complex(float64(v), 0))
		}
	}
	fft2(f)
	h.spectrum = f
}

func meanOf(img *image.Gray) float64 {
	if img == nil || len(img.Pix) == 0 {
		return 0
	}
	var sum int
	for _, v := range img.Pix {
		sum += int(v)
	}
	return float64(sum) / float64(len(img.Pix))
}

// ApplyFilter multiplies the current spectrum by filt pointwise.
func (h *Hologram) ApplyFilter(filt *Filter) {
	if h.spectrum == nil || filt == nil {
		return
	}
	for i := range h.spectrum.data {
		h.spectrum.data[i] *= filt.data[i]
	}
}

// CreateFilter builds a super-Gaussian filter of order 6 with half-power
// frequency f (cycles per meter). kind selects lowpass or 1-lowpass
// (highpass).
func (h *Hologram) CreateFilter(f float64, kind FilterKind) *Filter {
	filt := &Filter{w: h.w, h: h.h, data: make([]complex128, h.w*h.h)}
	extW := float64(h.w) * h.psz
	extH := float64(h.h) * h.psz
	sigmaU := f
	sigmaV := f
	for y := 0; y < h.h; y++ {
		v := fftFreq(y, h.h, 1) / extH * float64(h.h)
		for x := 0; x < h.w; x++ {
			u := fftFreq(x, h.w, 1) / extW * float64(h.w)
			ru := u / sigmaU
			rv := v / sigmaV
			s := ru*ru + rv*rv
			lp := math.Exp(-math.Pow(s, 3))
			val := lp
			if kind == FilterHighpass {
				val = 1 - lp
			}
			filt.data[y*h.w+x] = complex(val, 0)
		}
	}
	return filt
}

// Propagate multiplies spectrum by P^(z*magn(dist,z)) and inverse FFTs
// into a complex working field of padded size, returned for Recon/Min/Amp
// extraction.
func (h *Hologram) Propagate(z float64) *field2D {
	zScale := z * Magn(h.dist, z)
	prop := h.propagatorPow(zScale)
	f := newField2D(h.w, h.h)
	for i, s := range h.spectrum.data {
		f.data[i] = s * prop.data[i]
	}
	ifft2(f)
	return f
}

// ReconKind selects recon's output representation.
type ReconKind int

const (
	ReconAmplitude ReconKind = iota
	ReconPhase
	ReconComplex
)

// Recon propagates to z and writes the requested representation into out,
// an origW x origH buffer (cropped from the padded working field).
// Amplitude is |c|; phase is arg(c) adjusted by 2*pi*z*magn/lambda.
// Any other kind, including ReconComplex, returns nil, nil: no complex
// image is produced.
func (h *Hologram) Recon(z float64, kind ReconKind) (amplitude *image.Gray, phase []float64) {
	f := h.Propagate(z)
	switch kind {
	case ReconAmplitude:
		return h.crop8(f), nil
	case ReconPhase:
		adj := 2 * math.Pi * z * Magn(h.dist, z) / h.lam
		out := make([]float64, h.origW*h.origH)
		for y := 0; y < h.origH; y++ {
			for x := 0; x < h.origW; x++ {
				v := f.at(x, y)
				out[y*h.origW+x] = math.Atan2(imag(v), real(v)) + adj
			}
		}
		return nil, out
	default:
		return nil, nil
	}
}

func (h *Hologram) crop8(f *field2D) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, h.origW, h.origH))
	for y := 0; y < h.origH; y++ {
		for x := 0; x < h.origW; x++ {
			idx := out.PixOffset(x, y)
			out.Pix[idx] = clampRound8(cabs(f.at(x, y)))
		}
	}
	return out
}

// Min propagates over every z in r, updating out(x,y) =
// min(out, round(|c|)) as u8. out must already be origW x origH; call
// with a fresh buffer filled with 255 to start a minimum projection.
func (h *Hologram) Min(r model.ZRange, out *image.Gray) {
	for _, z := range r.Z {
		f := h.Propagate(z)
		for y := 0; y < h.origH; y++ {
			for x := 0; x < h.origW; x++ {
				v := clampRound8(cabs(f.at(x, y)))
				idx := out.PixOffset(x, y)
				if v < out.Pix[idx] {
					out.Pix[idx] = v
				}
			}
		}
	}
}

// ReconMin is the same traversal as Min but also stores each slice's u8
// amplitude image into stack[i] (stack must have len(r.Z) entries,
// pre-sized origW x origH).
func (h *Hologram) ReconMin(r model.ZRange, stack []*image.Gray, out *image.Gray) {
	for i, z := range r.Z {
		f := h.Propagate(z)
		slice := stack[i]
		for y := 0; y < h.origH; y++ {
			for x := 0; x < h.origW; x++ {
				v := clampRound8(cabs(f.at(x, y)))
				slice.Pix[slice.PixOffset(x, y)] = v
				idx := out.PixOffset(x, y)
				if v < out.Pix[idx] {
					out.Pix[idx] = v
				}
			}
		}
	}
}

func clampRound8(v float64) uint8 {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}

// OrigSize returns the un-padded image dimensions this Hologram was built for.
func (h *Hologram) OrigSize() (w, h2 int) { return h.origW, h.origH }
