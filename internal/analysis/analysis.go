// Package analysis implements the Analysis pipeline stage: per-segment
// promotion to Particle (threshold, contour selection, diameter,
// circularity, dynamic range) and overlap resolution, per spec.md §4.5.
package analysis

import (
	"context"
	"image"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/alitto/pond"

	"github.com/icemet/icemet-server/internal/config"
	"github.com/icemet/icemet-server/internal/hologram"
	"github.com/icemet/icemet-server/internal/imgproc"
	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/monitoring"
	"github.com/icemet/icemet-server/internal/queue"
)

// Stage is the Analysis worker.
type Stage struct {
	cfg  *config.Config
	in   *queue.Queue
	outs []*queue.Queue // fixed order: [0]=saver, [1]=stats, per spec.md §4.1

	pool *pond.WorkerPool
	log  *monitoring.StageLogger
}

func New(cfg *config.Config, in *queue.Queue, outs []*queue.Queue) *Stage {
	n := runtime.GOMAXPROCS(0)
	return &Stage{
		cfg:  cfg,
		in:   in,
		outs: outs,
		pool: pond.New(n, 0, pond.MinWorkers(n)),
		log:  monitoring.Stage("analysis"),
	}
}

func (s *Stage) Name() string { return "analysis" }

func (s *Stage) Run(ctx context.Context) error {
	defer s.pool.StopAndWait()
	return queue.RunLoop(ctx, s.Name(), s.in, s.outs, s.handle)
}

func (s *Stage) handle(env model.Envelope) ([]model.Envelope, error) {
	if env.Kind != model.EnvelopeImage {
		return []model.Envelope{env}, nil
	}
	img := env.Img
	if img.Status != model.StatusImgNone {
		return []model.Envelope{env}, nil
	}
	s.process(img)
	return []model.Envelope{env}, nil
}

type candidate struct {
	segIdx   int
	particle model.Particle
	ok       bool
}

// process implements spec.md §4.5 steps 1-4.
func (s *Stage) process(img *model.Image) {
	segs := make([]model.Segment, len(img.Segments))
	copy(segs, img.Segments)
	order := make([]int, len(segs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return segs[order[a]].Area() > segs[order[b]].Area()
	})

	cands := make([]candidate, len(segs))
	var wg sync.WaitGroup
	for _, idx := range order {
		idx := idx
		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()
			p, ok := s.promote(img, segs[idx], idx)
			cands[idx] = candidate{segIdx: idx, particle: p, ok: ok}
		})
	}
	wg.Wait()

	// resolve overlaps in area-descending order, sequentially (spec.md
	// §4.5 step 3 is a sequential reduce over the accepted-so-far list).
	var accepted []candidate
	for _, idx := range order {
		c := cands[idx]
		if !c.ok {
			continue
		}
		replaced := false
		overlapped := false
		for i, a := range accepted {
			if !segs[a.segIdx].RectOrig.Overlaps(segs[c.segIdx].RectOrig) {
				continue
			}
			overlapped = true
			if winsParticle(c.particle, a.particle, segs[c.segIdx], segs[a.segIdx]) {
				accepted[i] = c
				replaced = true
			}
			break
		}
		if !overlapped {
			accepted = append(accepted, c)
		} else if replaced {
			// already swapped in place above
		}
	}

	img.Particles = img.Particles[:0]
	for _, c := range accepted {
		img.Particles = append(img.Particles, c.particle)
	}
	if len(img.Particles) == 0 {
		img.Status = model.StatusImgEmpty
	} else {
		img.Status = model.StatusImgNotEmpty
	}
}

// winsParticle implements the Segment comparison rule from spec.md
// §3/§4.5 step 3: same step -> larger rectOrig area wins; different step
// and same focus method -> higher score wins; different methods -> higher
// dynamic range wins. Dynamic range lives on the promoted Particle, so
// the particles' dynamic range once both candidates have been promoted
// (dynamic range is a Particle-level field, computed during promote).
func winsParticle(challenger, incumbent model.Particle, cSeg, iSeg model.Segment) bool {
	if cSeg.Step == iSeg.Step {
		return cSeg.Area() > iSeg.Area()
	}
	if cSeg.Method == iSeg.Method {
		return cSeg.Score > iSeg.Score
	}
	return challenger.DynRange > incumbent.DynRange
}

// promote implements spec.md §4.5 step 2: upscale, threshold, pick
// contour, compute diameter/circularity/dynamic range.
func (s *Stage) promote(img *model.Image, seg model.Segment, segIdx int) (model.Particle, bool) {
	tile := seg.Focused
	if tile == nil {
		return model.Particle{}, false
	}
	b := tile.Bounds()
	scale := 1.0
	minSide := b.Dx()
	if b.Dy() < minSide {
		minSide = b.Dy()
	}
	if minSide < s.cfg.Segment.Scale {
		scale = float64(s.cfg.Segment.Scale) / float64(minSide)
	}
	up := tile
	if scale > 1 {
		up = imgproc.LanczosUpscale(tile, scale)
	}

	minV, maxV, minLoc := globalMinMaxLoc(up)
	th := clampGray(float64(img.BGVal) - s.cfg.Particle.ThFactor*(float64(img.BGVal)-float64(minV)))
	mask := imgproc.ThresholdInv(up, th)
	contours := imgproc.FindExternalContours(mask)
	if len(contours) == 0 {
		return model.Particle{}, false
	}

	ub := up.Bounds()
	cx, cy := float64(ub.Dx())/2, float64(ub.Dy())/2
	best := -1
	bestDist := math.MaxFloat64
	for i, c := range contours {
		px, py := c.Centroid()
		d := (px-cx)*(px-cx) + (py-cy)*(py-cy)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	chosen := contours[best]
	if !pointIn(chosen, minLoc) {
		return model.Particle{}, false
	}
	area := float64(chosen.Area())
	if area > 0.70*float64(ub.Dx()*ub.Dy()) {
		return model.Particle{}, false
	}

	effPxSz := s.cfg.Hologram.PixelSize / hologram.Magn(s.cfg.Hologram.Distance, seg.Z)
	diam := effPxSz * equivDiam(area) / scale
	diamCorr := diam
	if s.cfg.DiamCorr.Enabled && diam > s.cfg.DiamCorr.D0 && diam < s.cfg.DiamCorr.D1 {
		diamCorr = piecewiseCorrect(diam, s.cfg.DiamCorr)
	}

	cxp, cyp := chosen.Centroid()
	border := image.Pt(s.cfg.Image.IgnoreX, s.cfg.Image.IgnoreY)
	x := effPxSz * (float64(seg.RectOrig.Min.X) + cxp - float64(border.X)) / scale
	y := effPxSz * (float64(seg.RectOrig.Min.Y) + cyp - float64(border.Y)) / scale

	perim := chosen.Perimeter(mask)
	circularity := 0.0
	if area > 0 {
		circularity = perim / (2 * math.Sqrt(math.Pi*area))
	}

	p := model.Particle{
		X: x, Y: y, Z: seg.Z,
		Diam:         diam,
		DiamCorr:     diamCorr,
		Circularity:  circularity,
		DynRange:     maxV - minV,
		EffPxSz:      effPxSz,
		SubRect:      seg.RectOrig,
		SegmentIndex: segIdx,
		Mask:         maskFromContour(up.Bounds(), chosen),
	}

	accept := p.Accept(s.cfg.Particle.ZMin, s.cfg.Particle.ZMax,
		s.cfg.Particle.DiamMin, s.cfg.Particle.DiamMax,
		s.cfg.Particle.CircMin, s.cfg.Particle.CircMax,
		uint8(s.cfg.Particle.DynRangeMin), uint8(s.cfg.Particle.DynRangeMax))
	return p, accept
}

func equivDiam(area float64) float64 {
	return math.Sqrt(4 * area / math.Pi)
}

func piecewiseCorrect(d float64, dc config.DiamCorr) float64 {
	if dc.D1 == dc.D0 {
		return d * dc.F0
	}
	t := (d - dc.D0) / (dc.D1 - dc.D0)
	f := dc.F0 + t*(dc.F1-dc.F0)
	return d * f
}

func clampGray(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func globalMinMaxLoc(img *image.Gray) (uint8, uint8, image.Point) {
	b := img.Bounds()
	min, max := img.Pix[0], img.Pix[0]
	minLoc := b.Min
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)]
			if v < min {
				min = v
				minLoc = image.Pt(x, y)
			}
			if v > max {
				max = v
			}
		}
	}
	return min, max, minLoc
}

func pointIn(c imgproc.Contour, p image.Point) bool {
	for _, q := range c.Points {
		if q == p {
			return true
		}
	}
	return false
}

func maskFromContour(bounds image.Rectangle, c imgproc.Contour) *image.Gray {
	out := image.NewGray(bounds)
	for _, p := range c.Points {
		out.Pix[out.PixOffset(p.X, p.Y)] = 255
	}
	return out
}
