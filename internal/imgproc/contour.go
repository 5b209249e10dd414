package imgproc

import "image"

// Contour is one external (outer) connected component of a binary mask:
// its member pixels plus the derived measures Recon/Analysis need
// (bounding rect, area, perimeter, centroid). This stands in for an
// OpenCV-style findContours result; no CV library appears anywhere in the
// example pack, so connected-component labeling + boundary-pixel counting
// is used instead of true polygon contour tracing. Area/perimeter/
// centroid/bounding-rect are the only properties the spec's algorithms
// consume, and all four are well defined on a labeled region.
type Contour struct {
	Points []image.Point
	Rect   image.Rectangle
}

// Area is the pixel count of the component.
func (c Contour) Area() int { return len(c.Points) }

// Centroid is the mean point of the component's member pixels.
func (c Contour) Centroid() (float64, float64) {
	if len(c.Points) == 0 {
		return 0, 0
	}
	var sx, sy float64
	for _, p := range c.Points {
		sx += float64(p.X)
		sy += float64(p.Y)
	}
	n := float64(len(c.Points))
	return sx / n, sy / n
}

// Perimeter approximates the contour perimeter as the count of member
// pixels that have at least one non-member 4-neighbor (boundary pixels),
// which for a filled blob tracks a true boundary-trace perimeter closely
// enough for the circularity measure in spec.md §4.5.
func (c Contour) Perimeter(mask *image.Gray) float64 {
	set := make(map[image.Point]bool, len(c.Points))
	for _, p := range c.Points {
		set[p] = true
	}
	count := 0
	for _, p := range c.Points {
		for _, d := range []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			if !set[p.Add(d)] {
				count++
				break
			}
		}
	}
	return float64(count)
}

// FindExternalContours labels 8-connected foreground (255) components of
// mask and returns one Contour per component. Order is not significant;
// Recon filters contours without reordering them, and Analysis picks by
// proximity to center.
func FindExternalContours(mask *image.Gray) []Contour {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, w*h)
	var contours []Contour

	neighbors := []image.Point{
		{1, 0}, {-1, 0}, {0, 1}, {0, -1},
		{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
	}

	idx := func(x, y int) int { return y*w + x }
	isFG := func(x, y int) bool {
		return mask.Pix[mask.PixOffset(b.Min.X+x, b.Min.Y+y)] != 0
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[idx(x, y)] || !isFG(x, y) {
				continue
			}
			// BFS flood fill for this component
			queue := []image.Point{{x, y}}
			visited[idx(x, y)] = true
			var pts []image.Point
			minX, minY, maxX, maxY := x, y, x, y
			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]
				pts = append(pts, image.Point{X: p.X + b.Min.X, Y: p.Y + b.Min.Y})
				if p.X < minX {
					minX = p.X
				}
				if p.X > maxX {
					maxX = p.X
				}
				if p.Y < minY {
					minY = p.Y
				}
				if p.Y > maxY {
					maxY = p.Y
				}
				for _, d := range neighbors {
					nx, ny := p.X+d.X, p.Y+d.Y
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					if visited[idx(nx, ny)] || !isFG(nx, ny) {
						continue
					}
					visited[idx(nx, ny)] = true
					queue = append(queue, image.Point{X: nx, Y: ny})
				}
			}
			rect := image.Rect(minX+b.Min.X, minY+b.Min.Y, maxX+b.Min.X+1, maxY+b.Min.Y+1)
			contours = append(contours, Contour{Points: pts, Rect: rect})
		}
	}
	return contours
}

// BoundingRect is a thin alias kept for call-site clarity where a caller
// already has a Contour and just wants its rect.
func BoundingRect(c Contour) image.Rectangle { return c.Rect }
