// Package saver implements the Saver pipeline stage: persists an Image's
// derived buffers to the results tree per the save_results mask, moves
// (or removes) the original source file, and writes one particle row per
// accepted particle. Grounded on the original implementation's saver.cpp,
// translated from per-format cv::imwrite calls to stdlib image/png and
// image/jpeg encoders (no CV codec dependency appears anywhere in the
// example pack).
package saver

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/icemet/icemet-server/internal/config"
	"github.com/icemet/icemet-server/internal/fsutil"
	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/monitoring"
	"github.com/icemet/icemet-server/internal/queue"
)

// Writer persists one accepted particle. internal/storage implements
// this; the interface lives here, the consumer side, so saver never
// imports storage.
type Writer interface {
	WriteParticle(runID string, f model.File, p model.Particle) error
}

// Stage is the Saver worker. It is a sink: outs exists only to forward
// the QUIT marker.
type Stage struct {
	cfg    *config.Config
	in     *queue.Queue
	outs   []*queue.Queue
	writer Writer
	runID  string
	log    *monitoring.StageLogger
	fs     fsutil.FileSystem
}

func New(cfg *config.Config, in *queue.Queue, outs []*queue.Queue, writer Writer, runID string) *Stage {
	return &Stage{cfg: cfg, in: in, outs: outs, writer: writer, runID: runID, log: monitoring.Stage("saver"), fs: fsutil.OSFileSystem{}}
}

// WithFileSystem overrides the filesystem used for derived saves and the
// original-file move/remove, letting tests exercise process() against
// fsutil.MemoryFileSystem instead of the real disk.
func (s *Stage) WithFileSystem(fs fsutil.FileSystem) *Stage {
	s.fs = fs
	return s
}

func (s *Stage) Name() string { return "saver" }

func (s *Stage) Run(ctx context.Context) error {
	return queue.RunLoop(ctx, s.Name(), s.in, s.outs, s.handle)
}

func (s *Stage) handle(env model.Envelope) ([]model.Envelope, error) {
	if env.Kind != model.EnvelopeImage {
		return nil, nil
	}
	img := env.Img
	s.log.Debugf("saving %s", img.File.Name())
	if err := s.process(img); err != nil {
		return nil, err
	}
	return nil, nil
}

// process implements the original saver.cpp's per-image save sequence,
// generalized to the mask characters spec.md adds (`m` for the min
// projection, which the original never saved).
func (s *Stage) process(img *model.Image) error {
	mask := s.cfg.Saves.Results
	root := s.cfg.Paths.Results

	if err := s.saveOrRemoveOriginal(img, mask, root); err != nil {
		return err
	}

	// save_empty/save_skipped gate every derived save and particle row;
	// the original file move/removal above is unconditional.
	if img.Status == model.StatusImgEmpty && !s.cfg.Saves.Empty {
		return nil
	}
	if img.Status == model.StatusImgSkip && !s.cfg.Saves.Skipped {
		return nil
	}

	if strings.IndexByte(mask, 'p') >= 0 && img.Preproc != nil {
		if err := s.savePNG(img.Preproc, dirFor(root, "preproc", img.File.DT), img.File.Name()+".png"); err != nil {
			return err
		}
	}
	if strings.IndexByte(mask, 'm') >= 0 && img.Min != nil {
		if err := s.savePNG(img.Min, dirFor(root, "min", img.File.DT), img.File.Name()+".png"); err != nil {
			return err
		}
	}
	if strings.IndexByte(mask, 'r') >= 0 {
		for i, seg := range img.Segments {
			if seg.Focused == nil {
				continue
			}
			name := fmt.Sprintf("%s_%d.png", img.File.Name(), i+1)
			if err := s.savePNG(seg.Focused, dirFor(root, "recon", img.File.DT), name); err != nil {
				return err
			}
		}
	}
	if strings.IndexByte(mask, 't') >= 0 {
		for i, p := range img.Particles {
			if p.Mask == nil {
				continue
			}
			name := fmt.Sprintf("%s_%d.png", img.File.Name(), i+1)
			if err := s.savePNG(p.Mask, dirFor(root, "threshold", img.File.DT), name); err != nil {
				return err
			}
		}
	}
	if strings.IndexByte(mask, 'v') >= 0 {
		if err := s.savePreview(img, root); err != nil {
			return err
		}
	}

	for _, p := range img.Particles {
		if err := s.writer.WriteParticle(s.runID, img.File, p); err != nil {
			return err
		}
	}
	return nil
}

// saveOrRemoveOriginal moves the source file into original/YY/MM/DD/HH
// when 'o' is set, otherwise removes it, per saver.cpp's move-or-delete
// rule (unconditional on empty/skip status — only derived saves are
// gated).
func (s *Stage) saveOrRemoveOriginal(img *model.Image, mask, root string) error {
	src := img.File.Path
	if src == "" {
		return nil // synthetic (e.g. package-extracted) frame, nothing on disk to move
	}
	if strings.IndexByte(mask, 'o') < 0 {
		if err := s.fs.Remove(src); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("saver: remove original %s: %w", src, err)
		}
		return nil
	}
	dir := dirFor(root, "original", img.File.DT)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("saver: mkdir %s: %w", dir, err)
	}
	dst := filepath.Join(dir, img.File.Name()+filepath.Ext(src))
	if err := s.fs.Rename(src, dst); err != nil {
		return fmt.Errorf("saver: move original %s -> %s: %w", src, dst, err)
	}
	return nil
}

// dirFor builds the "YY/MM/DD/HH" layout spec.md §6 requires under root/kind.
func dirFor(root, kind string, dt model.DateTime) string {
	return filepath.Join(root, kind,
		fmt.Sprintf("%02d", dt.Year%100),
		fmt.Sprintf("%02d", dt.Month),
		fmt.Sprintf("%02d", dt.Day),
		fmt.Sprintf("%02d", dt.Hour))
}

func (s *Stage) savePNG(img *image.Gray, dir, name string) error {
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("saver: mkdir %s: %w", dir, err)
	}
	f, err := s.fs.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("saver: create %s: %w", name, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("saver: encode %s: %w", name, err)
	}
	return nil
}

// savePreview composites every segment's focused tile onto a full-frame
// canvas, contrast-stretched by Otsu threshold, mirroring saver.cpp's
// preview construction (cv::threshold + icemet::adjust there; an inline
// Otsu pass + linear stretch here, since no CV dependency is in the pack).
func (s *Stage) savePreview(img *model.Image, root string) error {
	w, h := s.cfg.Image.W, s.cfg.Image.H
	canvas := image.NewGray(image.Rect(0, 0, w, h))
	for _, seg := range img.Segments {
		if seg.Focused == nil {
			continue
		}
		stretched := otsuStretch(seg.Focused)
		r := seg.RectPad.Intersect(canvas.Bounds())
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				canvas.SetGray(x, y, stretched.GrayAt(x-seg.RectPad.Min.X, y-seg.RectPad.Min.Y))
			}
		}
	}
	dir := dirFor(root, "preview", img.File.DT)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("saver: mkdir %s: %w", dir, err)
	}
	f, err := s.fs.Create(filepath.Join(dir, img.File.Name()+".jpg"))
	if err != nil {
		return fmt.Errorf("saver: create preview: %w", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, canvas, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("saver: encode preview: %w", err)
	}
	return nil
}

// otsuStretch inverts src (matching saver.cpp's bitwise_not), picks an
// Otsu threshold on the inverted histogram, and linearly stretches values
// above that threshold into the full [0,255] range, zeroing the rest.
func otsuStretch(src *image.Gray) *image.Gray {
	inv := image.NewGray(src.Bounds())
	var hist [256]int
	for i, v := range src.Pix {
		iv := 255 - v
		inv.Pix[i] = iv
		hist[iv]++
	}
	th := otsuThreshold(hist, len(src.Pix))

	out := image.NewGray(src.Bounds())
	span := 255 - int(th)
	for i, v := range inv.Pix {
		if int(v) <= int(th) || span <= 0 {
			out.Pix[i] = 0
			continue
		}
		scaled := (int(v) - int(th)) * 255 / span
		out.Pix[i] = clampByte(scaled)
	}
	return out
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// otsuThreshold implements the standard between-class-variance maximizing
// threshold search over a 256-bin histogram.
func otsuThreshold(hist [256]int, total int) uint8 {
	if total == 0 {
		return 0
	}
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}

	var sumB, wB float64
	var best float64
	var bestTh int
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			bestTh = t
		}
	}
	return uint8(bestTh)
}
