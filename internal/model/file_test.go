package model

import "testing"

func TestFileNameRoundTrip(t *testing.T) {
	f := File{
		Sensor: 0x1A,
		DT:     DateTime{Year: 2026, Month: 3, Day: 14, Hour: 9, Minute: 5, Second: 2, Millisecond: 123},
		Frame:  4521,
		Status: StatusThrough,
	}
	name := f.Name()
	got, err := ParseName(name)
	if err != nil {
		t.Fatalf("ParseName(%q): %v", name, err)
	}
	if got.Sensor != f.Sensor || got.Frame != f.Frame || got.Status != f.Status || got.DT != f.DT {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestFileOrdering(t *testing.T) {
	a := File{Sensor: 1, DT: DateTime{Year: 2026, Month: 1, Day: 1}, Frame: 5}
	b := File{Sensor: 1, DT: DateTime{Year: 2026, Month: 1, Day: 1}, Frame: 6}
	c := File{Sensor: 2, DT: DateTime{Year: 2026, Month: 1, Day: 1}, Frame: 0}

	if !a.Less(b) {
		t.Errorf("expected a < b by frame")
	}
	if !b.Less(c) {
		t.Errorf("expected b < c by sensor")
	}
	if a.Compare(a) != 0 {
		t.Errorf("expected a == a")
	}
}

func TestParseNameInvalid(t *testing.T) {
	cases := []string{
		"",
		"00_010124_000000000_000001",     // missing status
		"ZZ_010124_000000000_000001_X",   // bad sensor hex
		"00_010124_000000000_000001_Q",   // bad status char
	}
	for _, c := range cases {
		if _, err := ParseName(c); err == nil {
			t.Errorf("ParseName(%q): expected error, got nil", c)
		}
	}
}
