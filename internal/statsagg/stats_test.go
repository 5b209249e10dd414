package statsagg

import (
	"testing"

	"github.com/icemet/icemet-server/internal/config"
	"github.com/icemet/icemet-server/internal/model"
)

type fakeWriter struct {
	rows []Row
}

func (f *fakeWriter) WriteStats(row Row) error {
	f.rows = append(f.rows, row)
	return nil
}

func baseConfig() *config.Config {
	return &config.Config{
		Image:    config.Image{W: 100, H: 100},
		Hologram: config.Hologram{PixelSize: 3e-6, Distance: 0},
		Particle: config.Particle{ZMin: 0.1, ZMax: 0.2},
		Stats:    config.Stats{Time: 1}, // 1-second windows
	}
}

func imageAt(millis int64, status model.ImageStatus, diams ...float64) *model.Image {
	dt := model.DateTimeFromTimestamp(model.Timestamp(millis))
	img := model.NewImage(model.File{DT: dt})
	img.Status = status
	for _, d := range diams {
		img.Particles = append(img.Particles, model.Particle{Diam: d})
	}
	return img
}

func TestFinalizesOnWindowCross(t *testing.T) {
	cfg := baseConfig()
	w := &fakeWriter{}
	s := New(cfg, nil, nil, w, "test-run")

	if err := s.observe(imageAt(100, model.StatusImgNotEmpty, 1e-5)); err != nil {
		t.Fatal(err)
	}
	if err := s.observe(imageAt(500, model.StatusImgEmpty)); err != nil {
		t.Fatal(err)
	}
	if len(w.rows) != 0 {
		t.Fatalf("expected no emitted rows yet, got %d", len(w.rows))
	}

	// crosses into the next 1000ms window
	if err := s.observe(imageAt(1200, model.StatusImgEmpty)); err != nil {
		t.Fatal(err)
	}
	if len(w.rows) != 1 {
		t.Fatalf("expected exactly one emitted row after window cross, got %d", len(w.rows))
	}
	if w.rows[0].Frames != 2 {
		t.Fatalf("expected 2 frames in the closed window, got %d", w.rows[0].Frames)
	}
	if w.rows[0].Particles != 1 {
		t.Fatalf("expected 1 particle in the closed window, got %d", w.rows[0].Particles)
	}
}

func TestQuitFinalizesNonemptyWindowOnce(t *testing.T) {
	cfg := baseConfig()
	w := &fakeWriter{}
	s := New(cfg, nil, nil, w, "test-run")

	if err := s.observe(imageAt(100, model.StatusImgNotEmpty, 2e-5)); err != nil {
		t.Fatal(err)
	}
	if err := s.finalizeIfNonempty(); err != nil {
		t.Fatal(err)
	}
	if len(w.rows) != 1 {
		t.Fatalf("expected 1 row after QUIT finalize, got %d", len(w.rows))
	}
	// a second QUIT-style finalize on an already-emitted window must not
	// emit again.
	if err := s.finalizeIfNonempty(); err != nil {
		t.Fatal(err)
	}
	if len(w.rows) != 1 {
		t.Fatalf("expected finalize to be idempotent once emitted, got %d rows", len(w.rows))
	}
}

func TestQuitSkipsEmptyWindow(t *testing.T) {
	cfg := baseConfig()
	w := &fakeWriter{}
	s := New(cfg, nil, nil, w, "test-run")
	s.cur = &window{start: 0} // open window, zero frames

	if err := s.finalizeIfNonempty(); err != nil {
		t.Fatal(err)
	}
	if len(w.rows) != 0 {
		t.Fatalf("expected no row for a zero-frame window, got %d", len(w.rows))
	}
}

func TestPackageBoundaryFinalizesOnce(t *testing.T) {
	cfg := baseConfig()
	w := &fakeWriter{}
	s := New(cfg, nil, nil, w, "test-run")

	if err := s.observe(imageAt(100, model.StatusImgNotEmpty, 1e-5)); err != nil {
		t.Fatal(err)
	}
	if err := s.finalizeIfNotEmitted(); err != nil {
		t.Fatal(err)
	}
	if len(w.rows) != 1 {
		t.Fatalf("expected 1 row after package boundary, got %d", len(w.rows))
	}
	if s.cur != nil {
		t.Fatalf("expected window state cleared after package boundary")
	}
}

func TestMedianVolumeDiameterSingleParticle(t *testing.T) {
	sorted := []float64{1e-5}
	vols := []float64{1}
	got := medianVolumeDiameter(sorted, vols, 1)
	if got != 1e-5 {
		t.Fatalf("expected single-particle MVD to equal its own diameter, got %v", got)
	}
}

func TestMedianVolumeDiameterInterpolates(t *testing.T) {
	// three equal-volume particles: cumulative fractions are 1/3, 2/3, 3/3.
	// half (0.5) falls strictly between the 1st and 2nd, so MVD should
	// land strictly between their diameters.
	sorted := []float64{1, 2, 3}
	vols := []float64{1, 1, 1}
	got := medianVolumeDiameter(sorted, vols, 3)
	if got <= sorted[0] || got >= sorted[1] {
		t.Fatalf("expected MVD in (%v,%v), got %v", sorted[0], sorted[1], got)
	}
}
