package model

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// BGSubStack is a ring buffer of the last N preprocessed frames plus their
// per-frame means, used by Preproc to compute a median-divided background
// subtraction. N must be odd and in [3,25].
type BGSubStack struct {
	n       int
	frames  []*image.Gray
	means   []float64
	filled  int
	nextIdx int // ring write position of the next push
	pushed  int // total pushes so far (may exceed n once full)
}

// NewBGSubStack constructs a stack of length n (must be odd, 3<=n<=25).
func NewBGSubStack(n int) (*BGSubStack, error) {
	if n < 3 || n > 25 || n%2 == 0 {
		return nil, fmt.Errorf("model: bgsub stack length must be odd in [3,25], got %d", n)
	}
	return &BGSubStack{
		n:      n,
		frames: make([]*image.Gray, n),
		means:  make([]float64, n),
	}, nil
}

// Len returns the configured ring length N.
func (s *BGSubStack) Len() int { return s.n }

// Full reports whether N frames have been pushed at least once.
func (s *BGSubStack) Full() bool { return s.filled >= s.n }

// Pushed returns the total number of frames pushed so far.
func (s *BGSubStack) Pushed() int { return s.pushed }

func frameMean(img *image.Gray) float64 {
	if img == nil || len(img.Pix) == 0 {
		return 0
	}
	var sum int
	for _, v := range img.Pix {
		sum += int(v)
	}
	return float64(sum) / float64(len(img.Pix))
}

// Push inserts a new frame into the ring, overwriting the oldest entry
// once full.
func (s *BGSubStack) Push(frame *image.Gray) {
	s.frames[s.nextIdx] = frame
	s.means[s.nextIdx] = frameMean(frame)
	s.nextIdx = (s.nextIdx + 1) % s.n
	if s.filled < s.n {
		s.filled++
	}
	s.pushed++
}

// Meddiv computes the mean-normalized, median-divided background
// subtraction output across every frame currently in the ring. Per pixel
// p: p = median over i of (frame[i].pixel / frame[i].mean), scaled to fit
// 8-bit by the global mean-of-means. The result carries no frame identity
// of its own - it is a composite over the whole ring. Resolving that
// composite to the correctly lagged input (floor(N/2) frames behind the
// most recent push, per spec.md §3) is Preproc's job: it holds pending
// inputs in a wait queue of depth floor(N/2)+1 and pairs this composite
// with the queue's front once the ring is Full.
func (s *BGSubStack) Meddiv() *image.Gray {
	if !s.Full() {
		return nil
	}
	bounds := s.frames[0].Bounds()
	out := image.NewGray(bounds)

	var meanOfMeans float64
	for _, m := range s.means {
		meanOfMeans += m
	}
	meanOfMeans /= float64(s.n)

	ratios := make([]float64, s.n)
	w, h := bounds.Dx(), bounds.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*w + x
			for i := 0; i < s.n; i++ {
				mean := s.means[i]
				if mean == 0 {
					mean = 1
				}
				ratios[i] = float64(s.frames[i].Pix[off]) / mean
			}
			sort.Float64s(ratios)
			median := ratios[s.n/2]
			v := median * meanOfMeans
			out.Pix[off] = clamp8(math.Round(v))
		}
	}
	return out
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
