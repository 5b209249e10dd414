package model

import "testing"

func TestZRangeMonotonicAndBounded(t *testing.T) {
	r := NewZRange(0.2, 0.4, 0.0005, 0.002)
	if r.Len() == 0 {
		t.Fatal("expected non-empty schedule")
	}
	for i := 1; i < r.Len(); i++ {
		if r.Z[i] <= r.Z[i-1] {
			t.Fatalf("schedule not strictly increasing at %d: %v <= %v", i, r.Z[i], r.Z[i-1])
		}
		if r.DZ[i-1] <= 0 {
			t.Fatalf("dz must be positive at %d", i-1)
		}
	}
	if r.Z[r.Len()-1] >= 0.4 {
		t.Fatalf("schedule should be truncated below z1, got %v", r.Z[r.Len()-1])
	}
	if got := r.DZ[0]; got < 0.0005*0.5 || got > 0.0005*1.5 {
		t.Errorf("dz at z0 far from dz0: got %v want ~%v", got, 0.0005)
	}
}

func TestZRangeSlabs(t *testing.T) {
	r := NewZRange(0.2, 0.4, 0.001, 0.001)
	slabs := r.Slabs(10)
	total := 0
	for _, s := range slabs {
		total += s.Len()
	}
	if total != r.Len() {
		t.Fatalf("slab lengths don't sum to total: %d != %d", total, r.Len())
	}
}
