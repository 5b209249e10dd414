// Package preproc implements the Preproc pipeline stage: crop, rotate,
// median-background-subtraction ring, and the empty/noisy classification
// checks of spec.md §4.2.
package preproc

import (
	"context"
	"image"

	"github.com/icemet/icemet-server/internal/config"
	"github.com/icemet/icemet-server/internal/hologram"
	"github.com/icemet/icemet-server/internal/imgproc"
	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/monitoring"
	"github.com/icemet/icemet-server/internal/queue"
)

// Stage is the Preproc worker: one BGSubStack and one coarse-reconstruction
// Hologram, owned for its lifetime.
type Stage struct {
	cfg  *config.Config
	in   *queue.Queue
	outs []*queue.Queue

	bgsub *model.BGSubStack // nil when bgsub is disabled
	wait  []*model.Image    // pending inputs awaiting the floor(N/2)+1 delay
	holo  *hologram.Hologram
	zrange model.ZRange

	log *monitoring.StageLogger
}

// New constructs the Preproc stage, sizing the coarse-reconstruction
// Hologram to the image dimensions minus the ignore borders.
func New(cfg *config.Config, in *queue.Queue, outs []*queue.Queue) (*Stage, error) {
	s := &Stage{cfg: cfg, in: in, outs: outs, log: monitoring.Stage("preproc")}
	if cfg.BGSub.StackLen > 0 {
		bg, err := model.NewBGSubStack(cfg.BGSub.StackLen)
		if err != nil {
			return nil, err
		}
		s.bgsub = bg
	}
	w := cfg.Image.W - 2*cfg.Image.IgnoreX
	h := cfg.Image.H - 2*cfg.Image.IgnoreY
	s.holo = hologram.New(cfg.Hologram.PixelSize, cfg.Hologram.Lambda, cfg.Hologram.Distance, w, h)
	s.zrange = model.NewZRange(cfg.Hologram.Z0, cfg.Hologram.Z1, cfg.Hologram.DZ0, cfg.Hologram.DZ1)
	return s, nil
}

func (s *Stage) Name() string { return "preproc" }

func (s *Stage) Run(ctx context.Context) error {
	return queue.RunLoop(ctx, s.Name(), s.in, s.outs, s.handle)
}

func (s *Stage) handle(env model.Envelope) ([]model.Envelope, error) {
	switch env.Kind {
	case model.EnvelopePackage:
		return []model.Envelope{env}, nil
	case model.EnvelopeImage:
		out := s.process(env.Img)
		if out == nil {
			return nil, nil
		}
		return []model.Envelope{model.NewImageEnvelope(out)}, nil
	default:
		return []model.Envelope{env}, nil
	}
}

// process implements spec.md §4.2 steps 1-6.
func (s *Stage) process(img *model.Image) *model.Image {
	// 1. empty-on-original check
	if img.Original == nil || float64(model.DynamicRange(img.Original)) < s.cfg.Empty.OriginalTh {
		img.Status = model.StatusImgEmpty
		s.log.Debugf("%s: empty (original)", img.File.Name())
		return img
	}

	// 2. crop then rotate
	interior := image.Rect(s.cfg.Image.IgnoreX, s.cfg.Image.IgnoreY,
		s.cfg.Image.X+s.cfg.Image.W-s.cfg.Image.IgnoreX, s.cfg.Image.Y+s.cfg.Image.H-s.cfg.Image.IgnoreY)
	pp := Crop(img.Original, interior)
	if s.cfg.Image.Rotation != 0 {
		pp = Rotate(pp, s.cfg.Image.Rotation)
	}

	// 3/4. background subtraction
	if s.bgsub == nil {
		img.Preproc = pp
		return s.finalize(img)
	}
	return s.pushBgsub(img, pp)
}

// pushBgsub implements spec.md §3's fixed floor(N/2)-frame lag: pending
// inputs are held in a wait queue (mirroring the original implementation's
// m_wait) until floor(N/2)+1 of them have been seen, at which point the
// queue's front - the input that arrived floor(N/2) pushes ago - is
// released, still in push order. Until the ring is full that release
// carries a SKIP status with no content; once full it carries the ring's
// median-divided composite.
func (s *Stage) pushBgsub(img *model.Image, pp *image.Gray) *model.Image {
	s.bgsub.Push(pp)
	s.wait = append(s.wait, img)

	threshold := s.bgsub.Len()/2 + 1
	if len(s.wait) < threshold {
		return nil
	}
	done := s.wait[0]
	s.wait = s.wait[1:]

	if !s.bgsub.Full() {
		done.Status = model.StatusImgSkip
		done.Preproc = nil
		return done
	}
	done.Preproc = s.bgsub.Meddiv()
	return s.finalize(done)
}

func (s *Stage) finalize(img *model.Image) *model.Image {
	if float64(model.DynamicRange(img.Preproc)) < s.cfg.Empty.PreprocTh {
		img.Status = model.StatusImgEmpty
		return img
	}
	img.BGVal = imgproc.MedianGray(img.Preproc)

	if s.cfg.Empty.ReconTh > 0 || s.cfg.Noisy.ReconTh > 0 {
		s.holo.SetImg(img.Preproc)
		coarse := coarseZRange(s.zrange, 10)
		b := img.Preproc.Bounds()
		minProj := image.NewGray(b)
		for i := range minProj.Pix {
			minProj.Pix[i] = 255
		}
		s.holo.Min(coarse, minProj)

		if float64(model.DynamicRange(minProj)) < s.cfg.Empty.ReconTh {
			img.Status = model.StatusImgEmpty
			return img
		}

		if s.cfg.Noisy.ReconTh > 0 {
			th := uint8(float64(img.BGVal) * s.cfg.Segment.ThFactor)
			interior := image.Rect(s.cfg.Image.IgnoreX, s.cfg.Image.IgnoreY,
				minProj.Bounds().Dx()-s.cfg.Image.IgnoreX, minProj.Bounds().Dy()-s.cfg.Image.IgnoreY)
			cropped := imgproc.Crop(minProj, interior)
			mask := imgproc.ThresholdInv(cropped, th)
			contours := imgproc.FindExternalContours(mask)
			if len(contours) > s.cfg.Noisy.ReconTh {
				img.Status = model.StatusImgSkip
				return img
			}
		}
	}

	// status stays NONE: forwarded to Recon
	return img
}

// coarseZRange takes every stepMult-th sample of r (the "10x step" coarse
// reconstruction check of spec.md §4.2 step 5).
func coarseZRange(r model.ZRange, stepMult int) model.ZRange {
	var zs, dzs []float64
	for i := 0; i < r.Len(); i += stepMult {
		zs = append(zs, r.Z[i])
		dzs = append(dzs, r.DZ[i])
	}
	return model.ZRange{Z: zs, DZ: dzs}
}
