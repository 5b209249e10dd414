package model

import "image"

// ImageStatus classifies an Image as it moves through the pipeline.
type ImageStatus int

const (
	StatusImgNone     ImageStatus = iota // not yet classified
	StatusImgEmpty                       // failed an empty check; downstream skips work
	StatusImgSkip                        // failed a noisy check, or a bgsub warm-up frame
	StatusImgNotEmpty                    // at least one Particle survived Analysis
)

func (s ImageStatus) String() string {
	switch s {
	case StatusImgEmpty:
		return "EMPTY"
	case StatusImgSkip:
		return "SKIP"
	case StatusImgNotEmpty:
		return "NOTEMPTY"
	default:
		return "NONE"
	}
}

// Image is one hologram frame moving through the pipeline, together with
// its derived buffers and records. Each Image is owned exclusively by the
// stage currently holding it; transfer across a queue is a move. Segments
// and Particles are owned by the Image — no back-pointers.
type Image struct {
	File File

	Original *image.Gray // raw sensor frame, nil if unreadable
	Preproc  *image.Gray // cropped/rotated/background-subtracted
	Min      *image.Gray // per-depth minimum projection accumulated by Recon
	BGVal    uint8       // median of Preproc, computed by Preproc.finalize

	Status ImageStatus

	Segments []Segment
	Particles []Particle
}

// NewImage wraps a File as a fresh, unclassified Image envelope.
func NewImage(f File) *Image {
	return &Image{File: f, Status: StatusImgNone}
}

// DynamicRange returns max-min over img (0 if img is nil or empty).
func DynamicRange(img *image.Gray) uint8 {
	if img == nil || len(img.Pix) == 0 {
		return 0
	}
	min, max := img.Pix[0], img.Pix[0]
	for _, v := range img.Pix {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return max - min
}

// Package is an archive of many holograms: one producer (the archive
// reader) reads it sequentially into an Image queue; the consumer cannot
// outpace the producer since the queue is bounded.
type Package struct {
	SourcePath string
	FrameRate  float64
	Length     uint
	TempDir    string // unique extraction directory, already removed when OpenPackage returns
}
