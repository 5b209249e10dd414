package model

import "image"

// FocusMethod selects the scalar focus score function used by the 1-D
// depth search (hologram package) and by Recon's per-contour method
// selection.
type FocusMethod int

const (
	FocusMin FocusMethod = iota
	FocusMax
	FocusRange
	FocusStd
	FocusTog
	FocusICEMET
)

func (m FocusMethod) String() string {
	switch m {
	case FocusMin:
		return "min"
	case FocusMax:
		return "max"
	case FocusRange:
		return "range"
	case FocusStd:
		return "std"
	case FocusTog:
		return "tog"
	case FocusICEMET:
		return "icemet"
	default:
		return "unknown"
	}
}

// Segment is a focused sub-image around one candidate particle location,
// produced by Recon and consumed by Analysis/Saver. Segments never carry
// a back-pointer to their owning Image; stages receive the Image and
// range over its Segments slice (arena-per-Image ownership, per the
// source's design notes on avoiding shared-ownership back-references).
type Segment struct {
	Z        float64     // depth, meters
	Step     int         // producing slab index, for overlap-resolution comparisons
	Score    float64     // focus score at the chosen depth
	Method   FocusMethod // focus method used to pick this segment
	RectOrig image.Rectangle
	RectPad  image.Rectangle
	Focused  *image.Gray // padded, focused tile cropped to RectPad
}

// Area returns the pixel area of the segment's original (unpadded) bounding rect.
func (s Segment) Area() int {
	r := s.RectOrig
	return r.Dx() * r.Dy()
}
