// Package imgproc implements the small set of image-processing primitives
// the pipeline needs that have no counterpart in the standard library and
// no CV dependency anywhere in the example pack: inverse binary
// thresholding, external-contour extraction via connected-component
// labeling (perimeter is a boundary-pixel count, not a traced outline),
// bounding-rect/area/perimeter measures, and a Lanczos-4
// upscaler. This is a deliberate stdlib-only component — see DESIGN.md.
package imgproc

import "image"

// ThresholdInv produces a binary mask where pixels <= th are foreground
// (255), matching OpenCV's THRESH_BINARY_INV convention used throughout
// spec.md's segmentation/analysis thresholds ("inverse binary").
func ThresholdInv(src *image.Gray, th uint8) *image.Gray {
	out := image.NewGray(src.Bounds())
	for i, v := range src.Pix {
		if v <= th {
			out.Pix[i] = 255
		}
	}
	return out
}
