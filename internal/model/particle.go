package model

import "image"

// Particle is an accepted particle measurement produced by Analysis,
// persisted by Saver, and aggregated by Stats.
type Particle struct {
	X, Y, Z       float64 // meters, sensor-relative frame
	Diam          float64 // equivalent diameter, meters
	DiamCorr      float64 // corrected equivalent diameter, meters
	Circularity   float64
	DynRange      uint8
	EffPxSz       float64 // effective pixel size at this depth, meters
	Mask          *image.Gray
	SubRect       image.Rectangle // pixel-space sub-window this particle was found in (for SubX/Y/W/H)
	SegmentIndex  int             // index into the owning Image's Segments, for overlap bookkeeping
}

// Accept reports whether the particle falls within the configured
// acceptance window (z, diameter, circularity, dynamic range).
func (p Particle) Accept(zMin, zMax, diamMin, diamMax, circMin, circMax float64, dynRangeMin, dynRangeMax uint8) bool {
	if p.Z < zMin || p.Z > zMax {
		return false
	}
	d := p.DiamCorr
	if d == 0 {
		d = p.Diam
	}
	if d < diamMin || d > diamMax {
		return false
	}
	if p.Circularity < circMin || p.Circularity > circMax {
		return false
	}
	if p.DynRange < dynRangeMin || p.DynRange > dynRangeMax {
		return false
	}
	return true
}
