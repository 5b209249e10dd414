package hologram

import "testing"

func TestSearch1DReturnsWithinBounds(t *testing.T) {
	// unimodal function peaking at index 7
	f := func(i int) float64 {
		d := i - 7
		return -float64(d * d)
	}
	r := Search1D(0, 20, f)
	if r.Index < 0 || r.Index > 20 {
		t.Fatalf("index out of bounds: %d", r.Index)
	}
	if r.Index < 5 || r.Index > 9 {
		t.Errorf("expected index near peak 7, got %d", r.Index)
	}
}

func TestSearch1DTieBreaksSmallerIndex(t *testing.T) {
	// flat function: every index scores identically, so refinement should
	// never move away from the starting (smallest) candidate.
	f := func(i int) float64 { return 1.0 }
	r := Search1D(0, 10, f)
	if r.Index != 0 {
		t.Errorf("expected tie-break at smallest index 0, got %d", r.Index)
	}
}
