// Package source implements the Source stage: a polling directory
// watcher and archive-package reader producing Image/Package envelopes,
// per spec.md §3/§6. No fsnotify-class dependency appears anywhere in
// the example pack, so the watcher polls — a documented stdlib-only
// boundary (see DESIGN.md).
package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/icemet/icemet-server/internal/config"
	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/monitoring"
	"github.com/icemet/icemet-server/internal/queue"
	"github.com/icemet/icemet-server/internal/timeutil"
)

// PollInterval is the sleep between directory scans while waiting for
// new files to appear.
const PollInterval = 200 * time.Millisecond

// Stage is the Source worker.
type Stage struct {
	cfg        *config.Config
	out        *queue.Queue
	nonWaiting bool // -Q: drain existing inputs and exit

	seen  map[string]bool
	log   *monitoring.StageLogger
	clock timeutil.Clock
}

func New(cfg *config.Config, out *queue.Queue, nonWaiting bool) *Stage {
	return &Stage{cfg: cfg, out: out, nonWaiting: nonWaiting, seen: make(map[string]bool), log: monitoring.Stage("source"), clock: timeutil.RealClock{}}
}

// WithClock overrides the polling clock, letting tests run the scan loop
// against timeutil.MockClock without real 200ms sleeps.
func (s *Stage) WithClock(c timeutil.Clock) *Stage {
	s.clock = c
	return s
}

func (s *Stage) Name() string { return "source" }

// Run implements spec.md §3's Source contract: scan, ingest, and either
// loop forever (waiting mode) or emit QUIT once the directory is fully
// drained (-Q / non-waiting mode).
func (s *Stage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		files, err := s.scan()
		if err != nil {
			s.log.Errorf("scan %s: %v", s.cfg.Paths.Watch, err)
		}
		for _, f := range files {
			s.ingest(f)
		}

		if s.nonWaiting {
			s.out.Push(model.QuitEnvelope())
			s.log.Infof("drained, terminating")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(PollInterval):
		}
	}
}

// scan lists path_watch once, skipping files already seen, and parses
// each new name against the canonical file-name grammar. An invalid
// filename is logged and ignored; the watcher keeps running (spec.md §7:
// "Invalid filename: ignore that file, continue watching").
func (s *Stage) scan() ([]model.File, error) {
	entries, err := os.ReadDir(s.cfg.Paths.Watch)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var files []model.File
	for _, name := range names {
		path := filepath.Join(s.cfg.Paths.Watch, name)
		if s.seen[path] {
			continue
		}
		s.seen[path] = true
		f, err := model.ParseFile(path)
		if err != nil {
			s.log.Warnf("invalid filename %q: %v", name, err)
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

// ingest decodes one discovered File into the envelope(s) it produces.
func (s *Stage) ingest(f model.File) {
	if f.Kind() == model.KindPackage {
		pkg, imgs, err := OpenPackage(f.Path)
		if err != nil {
			// spec.md §7: "Corrupt package: fatal for that package; process continues".
			s.log.Errorf("corrupt package %s: %v", f.Path, err)
			return
		}
		s.out.Push(model.NewPackageEnvelope(pkg))
		for _, img := range imgs {
			s.out.Push(model.NewImageEnvelope(img))
		}
		return
	}

	img := model.NewImage(f)
	gray, err := DecodeImage(f.Path)
	if err != nil {
		// spec.md §7: "Unreadable image: emit empty Image (status EMPTY)".
		s.log.Warnf("unreadable image %s: %v", f.Path, err)
		img.Status = model.StatusImgEmpty
	} else {
		img.Original = gray
	}
	s.out.Push(model.NewImageEnvelope(img))
}
