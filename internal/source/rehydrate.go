package source

import (
	"context"

	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/monitoring"
	"github.com/icemet/icemet-server/internal/queue"
)

// ParticleReader is the read side of internal/storage needed by
// stats-only (-s) mode: replay previously-persisted particles as
// synthetic Image envelopes so they can be re-windowed by a
// differently-configured Stats stage, without re-running Preproc/Recon/
// Analysis. internal/storage.DB satisfies this.
type ParticleReader interface {
	ReadParticleGroups(runID string) ([]model.ParticleGroup, error)
}

// RehydrateStage replaces the directory watcher when -s is given: it
// reads every persisted particle for runID once, replays each frame as
// an Image envelope carrying just the Particles Stats needs, then emits
// QUIT. Per internal/storage's ReadParticleGroups doc, frames with zero
// accepted particles are not recoverable this way — they were never
// written — so recomputed frame counts reflect only particle-bearing
// frames.
type RehydrateStage struct {
	reader ParticleReader
	runID  string
	out    *queue.Queue
	log    *monitoring.StageLogger
}

func NewRehydrate(reader ParticleReader, runID string, out *queue.Queue) *RehydrateStage {
	return &RehydrateStage{reader: reader, runID: runID, out: out, log: monitoring.Stage("source")}
}

func (s *RehydrateStage) Name() string { return "source" }

func (s *RehydrateStage) Run(ctx context.Context) error {
	groups, err := s.reader.ReadParticleGroups(s.runID)
	if err != nil {
		s.log.Critical(err)
		return err
	}
	for _, g := range groups {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		dt := model.DateTimeFromTimestamp(model.Timestamp(g.TSMillis))
		img := model.NewImage(model.File{Sensor: g.Sensor, DT: dt, Frame: g.Frame})
		img.Particles = g.Particles
		img.Status = model.StatusImgNotEmpty
		s.out.Push(model.NewImageEnvelope(img))
	}
	s.out.Push(model.QuitEnvelope())
	s.log.Infof("drained, terminating")
	return nil
}
