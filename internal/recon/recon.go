// Package recon implements the Recon pipeline stage: FFT-based propagation
// over the configured z-range in slabs, per-slab minimum projection,
// thresholding, contour extraction, padding, and per-candidate focus
// search, per spec.md §4.4.
package recon

import (
	"context"
	"image"
	"runtime"
	"sync"

	"github.com/alitto/pond"

	"github.com/icemet/icemet-server/internal/config"
	"github.com/icemet/icemet-server/internal/hologram"
	"github.com/icemet/icemet-server/internal/imgproc"
	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/monitoring"
	"github.com/icemet/icemet-server/internal/queue"
)

// Stage is the Recon worker: one Hologram, owned for its lifetime; each
// slab gets a freshly allocated slice stack.
type Stage struct {
	cfg  *config.Config
	in   *queue.Queue
	outs []*queue.Queue

	holo   *hologram.Hologram
	lpf    *hologram.Filter
	zrange model.ZRange

	// pool bounds per-contour focus-search concurrency, mirroring
	// _examples/sixy6e-go-gsf's pond.New(n, 0, pond.MinWorkers(n)) use for
	// per-file parallel CPU work.
	pool *pond.WorkerPool

	log *monitoring.StageLogger
}

func New(cfg *config.Config, in *queue.Queue, outs []*queue.Queue) *Stage {
	w := cfg.Image.W - 2*cfg.Image.IgnoreX
	h := cfg.Image.H - 2*cfg.Image.IgnoreY
	n := runtime.GOMAXPROCS(0)
	return &Stage{
		cfg:    cfg,
		in:     in,
		outs:   outs,
		holo:   hologram.New(cfg.Hologram.PixelSize, cfg.Hologram.Lambda, cfg.Hologram.Distance, w, h),
		zrange: model.NewZRange(cfg.Hologram.Z0, cfg.Hologram.Z1, cfg.Hologram.DZ0, cfg.Hologram.DZ1),
		pool:   pond.New(n, 0, pond.MinWorkers(n)),
		log:    monitoring.Stage("recon"),
	}
}

func (s *Stage) Name() string { return "recon" }

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

// process implements spec.md §4.4 steps 1-3.
func (s *Stage) process(img *model.Image) {
	s.holo.SetImg(img.Preproc)
	if s.cfg.Filter.LowpassF > 0 {
		if s.lpf == nil {
			s.lpf = s.holo.CreateFilter(s.cfg.Filter.LowpassF, hologram.FilterLowpass)
		}
		s.holo.ApplyFilter(s.lpf)
	}

	b := img.Preproc.Bounds()
	img.Min = image.NewGray(b)
	for i := range img.Min.Pix {
		img.Min.Pix[i] = 255
	}

	interior := image.Rect(s.cfg.Image.IgnoreX, s.cfg.Image.IgnoreY,
		b.Dx()-s.cfg.Image.IgnoreX, b.Dy()-s.cfg.Image.IgnoreY)

	slabs := s.zrange.Slabs(s.cfg.Hologram.ReconStep)
	var segMu sync.Mutex
	var wg sync.WaitGroup

	for step, slab := range slabs {
		step, slab := step, slab

		stack := make([]*image.Gray, slab.Len())
		for i := range stack {
			stack[i] = image.NewGray(b)
		}
		slabMin := image.NewGray(b)
		for i := range slabMin.Pix {
			slabMin.Pix[i] = 255
		}
		s.holo.ReconMin(slab, stack, slabMin)

		// global min update (pointwise min, §8 invariant: img.min(x,y) <= any slab_min(x,y))
		for i, v := range slabMin.Pix {
			if v < img.Min.Pix[i] {
				img.Min.Pix[i] = v
			}
		}

		th := uint8(float64(img.BGVal) * s.cfg.Segment.ThFactor)
		mask := imgproc.ThresholdInv(slabMin, th)
		contours := imgproc.FindExternalContours(mask)

		for _, c := range contours {
			c := c
			rectOrig := c.Rect
			area := rectOrig.Dx() * rectOrig.Dy()
			if area < s.cfg.Segment.SizeMin || area > s.cfg.Segment.SizeMax {
				continue
			}
			inter := rectOrig.Intersect(interior)
			interArea := 0
			if !inter.Empty() {
				interArea = inter.Dx() * inter.Dy()
			}
			if float64(interArea) < 0.5*float64(area) {
				continue
			}

			method := s.cfg.Hologram.FocusMethodSmall
			if rectOrig.Dx() > s.cfg.Segment.SizeSmall || rectOrig.Dy() > s.cfg.Segment.SizeSmall {
				method = s.cfg.Hologram.FocusMethod
			}
			fm := parseFocusMethod(method)

			rectPad := imgproc.Pad(rectOrig, b, s.cfg.Segment.Pad)

			wg.Add(1)
			s.pool.Submit(func() {
				defer wg.Done()
				result := searchFocus(stack, rectPad, fm)
				idx := result.Index
				z := 0.0
				if idx >= 0 && idx < slab.Len() {
					z = slab.Z[idx]
				}
				seg := model.Segment{
					Z:        z,
					Step:     step,
					Score:    result.Score,
					Method:   fm,
					RectOrig: rectOrig,
					RectPad:  rectPad,
					Focused:  imgproc.Crop(stack[clampIdx(idx, slab.Len())], rectPad),
				}
				segMu.Lock()
				img.Segments = append(img.Segments, seg)
				segMu.Unlock()
			})
		}
	}
	wg.Wait()

	if len(img.Segments) == 0 {
		img.Status = model.StatusImgEmpty
	}
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func parseFocusMethod(name string) model.FocusMethod {
	switch name {
	case "min":
		return model.FocusMin
	case "max":
		return model.FocusMax
	case "range":
		return model.FocusRange
	case "std":
		return model.FocusStd
	case "tog":
		return model.FocusTog
	case "icemet":
		return model.FocusICEMET
	default:
		return model.FocusICEMET
	}
}

func toScoreMethod(m model.FocusMethod) hologram.FocusMethodLike {
	switch m {
	case model.FocusMin:
		return hologram.ScoreMin
	case model.FocusMax:
		return hologram.ScoreMax
	case model.FocusRange:
		return hologram.ScoreRange
	case model.FocusStd:
		return hologram.ScoreStd
	case model.FocusTog:
		return hologram.ScoreTog
	default:
		return hologram.ScoreICEMET
	}
}

// searchFocus runs the 1-D golden-section-like search over the slab's
// slice stack, cropped to rectPad, per spec.md §4.3/§4.4.f.
func searchFocus(stack []*image.Gray, rectPad image.Rectangle, method model.FocusMethod) hologram.SearchResult {
	sm := toScoreMethod(method)
	scoreAt := func(i int) float64 {
		if i < 0 || i >= len(stack) {
			return -1e18
		}
		tile := imgproc.Crop(stack[i], rectPad)
		return hologram.Score(sm, tile)
	}
	return hologram.Search1D(0, len(stack)-1, scoreAt)
}
