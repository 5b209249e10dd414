package imgproc

import (
	"image"
	"testing"
)

func square(w, h, x0, y0, x1, y1 int, fg uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.Pix[img.PixOffset(x, y)] = fg
		}
	}
	return img
}

func TestThresholdInv(t *testing.T) {
	src := square(4, 4, 1, 1, 3, 3, 10)
	mask := ThresholdInv(src, 50)
	for _, v := range mask.Pix {
		if v != 255 {
			t.Fatalf("expected all pixels foreground under th=50, got %d", v)
		}
	}
}

func TestFindExternalContoursBasic(t *testing.T) {
	mask := square(10, 10, 2, 2, 6, 6, 255)
	cs := FindExternalContours(mask)
	if len(cs) != 1 {
		t.Fatalf("expected 1 contour, got %d", len(cs))
	}
	if cs[0].Area() != 16 {
		t.Fatalf("expected area 16, got %d", cs[0].Area())
	}
	if cs[0].Rect != image.Rect(2, 2, 6, 6) {
		t.Fatalf("unexpected rect: %v", cs[0].Rect)
	}
}

func TestFindExternalContoursTwoBlobs(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 10))
	for y := 1; y < 3; y++ {
		for x := 1; x < 3; x++ {
			img.Pix[img.PixOffset(x, y)] = 255
		}
	}
	for y := 1; y < 4; y++ {
		for x := 10; x < 14; x++ {
			img.Pix[img.PixOffset(x, y)] = 255
		}
	}
	cs := FindExternalContours(img)
	if len(cs) != 2 {
		t.Fatalf("expected 2 contours, got %d", len(cs))
	}
}

func TestLanczosUpscaleSizeAndRange(t *testing.T) {
	src := square(8, 8, 2, 2, 6, 6, 200)
	out := LanczosUpscale(src, 2.0)
	b := out.Bounds()
	if b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("expected 16x16, got %dx%d", b.Dx(), b.Dy())
	}
	for _, v := range out.Pix {
		if v > 255 {
			t.Fatalf("pixel overflow: %d", v)
		}
	}
}

func TestMedianGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 5))
	vals := []uint8{10, 20, 30, 40, 50}
	for i, v := range vals {
		img.Pix[i] = v
	}
	if got := MedianGray(img); got != 30 {
		t.Fatalf("expected median 30, got %d", got)
	}
}
