// Package statsagg implements the Stats pipeline stage: time-windowed
// accumulation of accepted particle diameters into icing statistics
// (LWC/MVD/concentration) rows, per spec.md §4.6.
package statsagg

import (
	"context"
	"math"
	"sort"

	"github.com/icemet/icemet-server/internal/config"
	"github.com/icemet/icemet-server/internal/hologram"
	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/monitoring"
	"github.com/icemet/icemet-server/internal/queue"
)

// Row is one finalized statistics window, ready for the database writer.
type Row struct {
	RunID       string
	WindowStart model.Timestamp
	Frames      int
	Particles   int
	LWC         float64 // g/m^3
	MVD         float64 // meters
	Conc        float64 // particles/m^3
	Temp        *float64
	Wind        *float64
}

// Writer persists a finalized Row. internal/storage implements this; the
// interface lives here, the consumer side, so statsagg never imports
// storage.
type Writer interface {
	WriteStats(row Row) error
}

// window accumulates one stats.time-long bucket of diameters.
type window struct {
	start   model.Timestamp
	frames  int
	skipped int
	diams   []float64
	emitted bool
}

// Stage is the Stats worker. It is a sink: outs exists only to forward
// the QUIT marker, per spec.md §5's fixed fan-out discipline.
type Stage struct {
	cfg    *config.Config
	in     *queue.Queue
	outs   []*queue.Queue
	writer Writer
	runID  string

	cur *window
	log *monitoring.StageLogger
}

func New(cfg *config.Config, in *queue.Queue, outs []*queue.Queue, writer Writer, runID string) *Stage {
	return &Stage{cfg: cfg, in: in, outs: outs, writer: writer, runID: runID, log: monitoring.Stage("stats")}
}

func (s *Stage) Name() string { return "stats" }

// Run mirrors queue.RunLoop's drain/dispatch/forward-QUIT contract, but
// additionally finalizes the open window (if non-empty) before
// terminating, per spec.md §4.6 ("On QUIT: finalize the current window
// if it has any frames") — a hook queue.RunLoop has no place for.
func (s *Stage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch := s.in.Collect()
		if len(batch) == 0 {
			queue.Sleep()
			continue
		}

		for _, env := range batch {
			if env.IsQuit() {
				if err := s.finalizeIfNonempty(); err != nil {
					s.log.Critical(err)
					return err
				}
				for _, o := range s.outs {
					o.Push(env)
				}
				s.log.Infof("drained, terminating")
				return nil
			}
			if err := s.handle(env); err != nil {
				s.log.Critical(err)
				return err
			}
		}
	}
}

func (s *Stage) handle(env model.Envelope) error {
	switch env.Kind {
	case model.EnvelopePackage:
		return s.finalizeIfNotEmitted()
	case model.EnvelopeImage:
		return s.observe(env.Img)
	default:
		return nil
	}
}

// observe implements spec.md §4.6 steps 1-3.
func (s *Stage) observe(img *model.Image) error {
	windowMillis := s.cfg.Stats.WindowMillis()
	start := img.File.DT.Timestamp().WindowStart(windowMillis)

	if s.cur == nil {
		s.cur = &window{start: start}
	} else if start != s.cur.start {
		if err := s.finalize(); err != nil {
			return err
		}
		s.cur = &window{start: start}
	}

	s.cur.frames++
	if img.Status == model.StatusImgSkip {
		s.cur.skipped++
	}
	for _, p := range img.Particles {
		s.cur.diams = append(s.cur.diams, diamOf(p))
	}
	return nil
}

func diamOf(p model.Particle) float64 {
	if p.DiamCorr != 0 {
		return p.DiamCorr
	}
	return p.Diam
}

// finalizeIfNotEmitted implements the Package-boundary rule: finalize the
// current window if it hasn't already been emitted, then drop it so the
// next image opens fresh state.
func (s *Stage) finalizeIfNotEmitted() error {
	if s.cur == nil {
		return nil
	}
	if !s.cur.emitted {
		if err := s.finalize(); err != nil {
			return err
		}
	}
	s.cur = nil
	return nil
}

// finalizeIfNonempty implements the QUIT rule: finalize only if the
// window saw at least one frame.
func (s *Stage) finalizeIfNonempty() error {
	if s.cur == nil || s.cur.emitted || s.cur.frames == 0 {
		return nil
	}
	return s.finalize()
}

// finalize computes and writes the Row for s.cur, per spec.md §4.6's
// "Finalization" rules, then marks it emitted.
func (s *Stage) finalize() error {
	w := s.cur
	frames := w.frames
	if s.cfg.Stats.Frames > 0 {
		frames = s.cfg.Stats.Frames
	}
	frames -= w.skipped

	row := Row{
		RunID:       s.runID,
		WindowStart: w.start,
		Frames:      frames,
		Particles:   len(w.diams),
		Temp:        s.cfg.Stats.Temp,
		Wind:        s.cfg.Stats.Wind,
	}

	if len(w.diams) > 0 && frames > 0 {
		v := measurementVolume(s.cfg)
		sorted := append([]float64(nil), w.diams...)
		sort.Float64s(sorted)

		vols := make([]float64, len(sorted))
		var total float64
		for i, d := range sorted {
			vols[i] = (4.0 / 3.0) * math.Pi * math.Pow(d/2, 3)
			total += vols[i]
		}

		row.LWC = total * 1e6 / (v * float64(frames))
		row.Conc = float64(len(sorted)) / (v * float64(frames))
		row.MVD = medianVolumeDiameter(sorted, vols, total)
	}

	w.emitted = true
	return s.writer.WriteStats(row)
}

// measurementVolume computes the truncated-cone volume between the
// particle acceptance z-planes, per spec.md §4.6.
func measurementVolume(cfg *config.Config) float64 {
	aPx := float64((cfg.Image.W - 2*cfg.Image.IgnoreX) * (cfg.Image.H - 2*cfg.Image.IgnoreY))
	areaAt := func(z float64) float64 {
		eff := cfg.Hologram.PixelSize / hologram.Magn(cfg.Hologram.Distance, z)
		return aPx * eff * eff
	}
	a0 := areaAt(cfg.Particle.ZMin)
	a1 := areaAt(cfg.Particle.ZMax)
	h := cfg.Particle.ZMax - cfg.Particle.ZMin
	return h * (a0 + math.Sqrt(a0*a1) + a1) / 3
}

// medianVolumeDiameter finds the smallest index k with cumulative volume
// exceeding half the total, then linearly interpolates on cumulative
// volume fraction between D_{k-1} and D_k (the direct cumulative-sorted
// variant; see SPEC_FULL.md's resolution of this Open Question).
func medianVolumeDiameter(sorted, vols []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	half := total / 2
	var cum float64
	for k, v := range vols {
		cum += v
		if cum > half {
			if k == 0 {
				return sorted[0]
			}
			prevCum := cum - v
			frac := (half - prevCum) / v
			return sorted[k-1] + frac*(sorted[k]-sorted[k-1])
		}
	}
	return sorted[len(sorted)-1]
}
