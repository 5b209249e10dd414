package saver

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/icemet/icemet-server/internal/config"
	"github.com/icemet/icemet-server/internal/fsutil"
	"github.com/icemet/icemet-server/internal/model"
)

type fakeWriter struct {
	calls []model.Particle
}

func (w *fakeWriter) WriteParticle(runID string, f model.File, p model.Particle) error {
	w.calls = append(w.calls, p)
	return nil
}

func baseConfig(root string) *config.Config {
	return &config.Config{
		Paths: config.Paths{Results: root},
		Image: config.Image{W: 8, H: 8},
		Saves: config.Saves{Results: "opmrtv"},
	}
}

func testFile(t *testing.T, srcDir string) model.File {
	t.Helper()
	f := model.File{
		Sensor: 0,
		DT:     model.DateTime{Year: 2026, Month: 3, Day: 4, Hour: 5, Minute: 6, Second: 7},
		Frame:  1,
		Status: model.StatusThrough,
	}
	path := filepath.Join(srcDir, f.Name()+".png")
	if err := os.WriteFile(path, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.Path = path
	return f
}

func TestProcessMovesOriginalWhenMaskHasO(t *testing.T) {
	root := t.TempDir()
	srcDir := t.TempDir()
	f := testFile(t, srcDir)
	img := model.NewImage(f)
	img.Status = model.StatusImgNotEmpty

	cfg := baseConfig(root)
	w := &fakeWriter{}
	s := New(cfg, nil, nil, w, "run")

	if err := s.process(img); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
		t.Fatalf("expected source file to be moved away, stat err = %v", err)
	}
	dst := filepath.Join(dirFor(root, "original", f.DT), f.Name()+".png")
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected moved file at %s: %v", dst, err)
	}
}

func TestProcessRemovesOriginalWhenMaskLacksO(t *testing.T) {
	root := t.TempDir()
	srcDir := t.TempDir()
	f := testFile(t, srcDir)
	img := model.NewImage(f)
	img.Status = model.StatusImgNotEmpty

	cfg := baseConfig(root)
	cfg.Saves.Results = "prtv" // no 'o'
	w := &fakeWriter{}
	s := New(cfg, nil, nil, w, "run")

	if err := s.process(img); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
		t.Fatalf("expected source file removed, stat err = %v", err)
	}
}

func TestProcessSkipsDerivedSavesForEmptyUnlessFlagged(t *testing.T) {
	root := t.TempDir()
	srcDir := t.TempDir()
	f := testFile(t, srcDir)
	img := model.NewImage(f)
	img.Status = model.StatusImgEmpty
	img.Preproc = image.NewGray(image.Rect(0, 0, 4, 4))

	cfg := baseConfig(root)
	cfg.Saves.Empty = false
	w := &fakeWriter{}
	s := New(cfg, nil, nil, w, "run")

	if err := s.process(img); err != nil {
		t.Fatal(err)
	}
	preprocFile := filepath.Join(dirFor(root, "preproc", f.DT), f.Name()+".png")
	if _, err := os.Stat(preprocFile); !os.IsNotExist(err) {
		t.Fatalf("expected no preproc save for unflagged empty image")
	}
}

func TestProcessSavesDerivedForEmptyWhenFlagged(t *testing.T) {
	root := t.TempDir()
	srcDir := t.TempDir()
	f := testFile(t, srcDir)
	img := model.NewImage(f)
	img.Status = model.StatusImgEmpty
	img.Preproc = image.NewGray(image.Rect(0, 0, 4, 4))

	cfg := baseConfig(root)
	cfg.Saves.Empty = true
	w := &fakeWriter{}
	s := New(cfg, nil, nil, w, "run")

	if err := s.process(img); err != nil {
		t.Fatal(err)
	}
	preprocFile := filepath.Join(dirFor(root, "preproc", f.DT), f.Name()+".png")
	if _, err := os.Stat(preprocFile); err != nil {
		t.Fatalf("expected preproc save for flagged empty image: %v", err)
	}
}

func TestProcessWritesOneParticleRowPerAccepted(t *testing.T) {
	root := t.TempDir()
	srcDir := t.TempDir()
	f := testFile(t, srcDir)
	img := model.NewImage(f)
	img.Status = model.StatusImgNotEmpty
	img.Particles = []model.Particle{{Diam: 1e-5}, {Diam: 2e-5}}

	cfg := baseConfig(root)
	w := &fakeWriter{}
	s := New(cfg, nil, nil, w, "run")

	if err := s.process(img); err != nil {
		t.Fatal(err)
	}
	if len(w.calls) != 2 {
		t.Fatalf("expected 2 particle writes, got %d", len(w.calls))
	}
}

func TestProcessSavesDerivedBuffersAgainstMemoryFileSystem(t *testing.T) {
	f := model.File{
		Sensor: 0,
		DT:     model.DateTime{Year: 2026, Month: 3, Day: 4, Hour: 5, Minute: 6, Second: 7},
		Frame:  1,
		Status: model.StatusThrough,
		Path:   "", // no real source file: exercises only the derived-save path
	}
	img := model.NewImage(f)
	img.Status = model.StatusImgNotEmpty
	img.Preproc = image.NewGray(image.Rect(0, 0, 4, 4))

	cfg := baseConfig("/results")
	w := &fakeWriter{}
	mem := fsutil.NewMemoryFileSystem()
	s := New(cfg, nil, nil, w, "run").WithFileSystem(mem)

	if err := s.process(img); err != nil {
		t.Fatal(err)
	}
	preprocFile := filepath.Join(dirFor("/results", "preproc", f.DT), f.Name()+".png")
	if !mem.Exists(preprocFile) {
		t.Fatalf("expected %s to exist in the in-memory filesystem", preprocFile)
	}
}

func TestOtsuThresholdSplitsBimodalHistogram(t *testing.T) {
	var hist [256]int
	hist[10] = 100
	hist[240] = 100
	th := otsuThreshold(hist, 200)
	if th < 10 || th > 240 {
		t.Fatalf("threshold %d out of expected bimodal range", th)
	}
}
