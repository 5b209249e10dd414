package model

import "testing"

func TestDateTimeStringRoundTrip(t *testing.T) {
	d := DateTime{Year: 2026, Month: 7, Day: 31, Hour: 23, Minute: 59, Second: 1, Millisecond: 7}
	s := d.String()
	got, err := ParseDateTime(s)
	if err != nil {
		t.Fatalf("ParseDateTime(%q): %v", s, err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, d)
	}
}

func TestWindowStart(t *testing.T) {
	ts := Timestamp(125_000) // 125s
	ws := ts.WindowStart(60_000)
	if ws != 120_000 {
		t.Fatalf("expected window start 120000, got %d", ws)
	}
}
