package preproc

import (
	"image"
	"testing"

	"github.com/icemet/icemet-server/internal/config"
	"github.com/icemet/icemet-server/internal/model"
)

func baseConfig() *config.Config {
	return &config.Config{
		Image:    config.Image{X: 0, Y: 0, W: 20, H: 20, IgnoreX: 0, IgnoreY: 0},
		BGSub:    config.BGSub{StackLen: 3},
		Empty:    config.EmptyChecks{OriginalTh: 1, PreprocTh: 1, ReconTh: 0},
		Noisy:    config.NoisyChecks{ReconTh: 0},
		Hologram: config.Hologram{Z0: 0.2, Z1: 0.21, DZ0: 0.001, DZ1: 0.001, PixelSize: 3e-6, Lambda: 6.6e-7, ReconStep: 10},
		Segment:  config.Segment{ThFactor: 0.8},
	}
}

func noisyGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 250)
	}
	return img
}

func TestPreprocEmptyOnBlackFrame(t *testing.T) {
	cfg := baseConfig()
	s, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := model.NewImage(model.File{})
	img.Original = image.NewGray(image.Rect(0, 0, 20, 20)) // all zero => dynrange 0
	out := s.process(img)
	if out.Status != model.StatusImgEmpty {
		t.Fatalf("expected EMPTY, got %v", out.Status)
	}
}

// TestPreprocWarmupDelaysByFloorNOver2 pins down spec.md §3/§8's fixed
// floor(N/2)-frame lag for StackLen=3 (floor(3/2)=1): the wait queue holds
// back floor(N/2)+1=2 inputs before releasing anything, so the 1st push
// emits nothing, the 2nd releases the 1st pushed frame as SKIP (ring not
// yet full), and the 3rd releases the 2nd pushed frame - not the 3rd, the
// one that was just pushed - once the ring fills.
func TestPreprocWarmupDelaysByFloorNOver2(t *testing.T) {
	cfg := baseConfig() // StackLen: 3
	s, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	var emitted []*model.Image
	for i := 0; i < 3; i++ {
		img := model.NewImage(model.File{Frame: uint32(i)})
		img.Original = noisyGray(20, 20)
		if out := s.process(img); out != nil {
			emitted = append(emitted, out)
		}
	}
	if len(emitted) != 2 {
		t.Fatalf("expected exactly 2 emissions (1 SKIP + 1 real) from 3 pushes with StackLen 3, got %d", len(emitted))
	}
	if emitted[0].Status != model.StatusImgSkip {
		t.Fatalf("expected the first emission to be SKIP during warmup, got %v", emitted[0].Status)
	}
	if emitted[0].File.Frame != 0 {
		t.Fatalf("expected the SKIP emission to carry the first pushed frame's identity (0), got %d", emitted[0].File.Frame)
	}
	if emitted[1].Status == model.StatusImgSkip {
		t.Fatalf("expected the second emission to be classified once the ring fills, got SKIP")
	}
	if emitted[1].File.Frame != 1 {
		t.Fatalf("expected the real emission to lag by floor(3/2)=1 frame behind the 3rd push and carry "+
			"frame 1's identity, not the just-pushed frame 2 (zero-lag bug), got %d", emitted[1].File.Frame)
	}
}

// TestPreprocWarmupDelayScalesWithStackLen repeats the check for
// StackLen=5 (floor(5/2)=2): two SKIPs, then a third emission tied to the
// frame pushed 2 frames ago (frame index 2 of 0,1,2,3,4), not the frame
// just pushed.
func TestPreprocWarmupDelayScalesWithStackLen(t *testing.T) {
	cfg := baseConfig()
	cfg.BGSub.StackLen = 5
	s, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	var emitted []*model.Image
	for i := 0; i < 5; i++ {
		img := model.NewImage(model.File{Frame: uint32(i)})
		img.Original = noisyGray(20, 20)
		if out := s.process(img); out != nil {
			emitted = append(emitted, out)
		}
	}
	if len(emitted) != 3 {
		t.Fatalf("expected exactly 3 emissions (2 SKIPs + 1 real) from 5 pushes with StackLen 5, got %d", len(emitted))
	}
	if emitted[0].Status != model.StatusImgSkip || emitted[1].Status != model.StatusImgSkip {
		t.Fatalf("expected the first two emissions to be SKIP during warmup, got %v, %v", emitted[0].Status, emitted[1].Status)
	}
	if emitted[0].File.Frame != 0 || emitted[1].File.Frame != 1 {
		t.Fatalf("expected the SKIP emissions to carry frames 0 and 1 in push order, got %d, %d", emitted[0].File.Frame, emitted[1].File.Frame)
	}
	if emitted[2].Status == model.StatusImgSkip {
		t.Fatalf("expected the third emission to be classified once the ring fills, got SKIP")
	}
	if emitted[2].File.Frame != 2 {
		t.Fatalf("expected the real emission to lag by floor(5/2)=2 frames behind the 5th push and carry "+
			"frame 2's identity, not the just-pushed frame 4, got %d", emitted[2].File.Frame)
	}
}
