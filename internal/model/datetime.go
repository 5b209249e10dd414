package model

import (
	"fmt"
	"time"
)

// DateTime is a broken-down UTC instant with millisecond resolution. It
// round-trips with the canonical string format "YYYY-MM-DD HH:MM:SS.mmm"
// and with the compact filename fragment "DDMMYY_HHMMSSmmm".
type DateTime struct {
	Year, Month, Day       int
	Hour, Minute, Second   int
	Millisecond            int
}

// DateTimeFromTimestamp decomposes a Timestamp into its UTC components.
func DateTimeFromTimestamp(ts Timestamp) DateTime {
	t := ts.Time()
	return DateTime{
		Year:        t.Year(),
		Month:       int(t.Month()),
		Day:         t.Day(),
		Hour:        t.Hour(),
		Minute:      t.Minute(),
		Second:      t.Second(),
		Millisecond: t.Nanosecond() / int(time.Millisecond),
	}
}

// Timestamp recomposes the DateTime into a Timestamp.
func (d DateTime) Timestamp() Timestamp {
	t := time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, d.Second,
		d.Millisecond*int(time.Millisecond), time.UTC)
	return TimestampFromTime(t)
}

// String renders the canonical "YYYY-MM-DD HH:MM:SS.mmm" form used by the
// database layer and log output.
func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%03d",
		d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second, d.Millisecond)
}

// ParseDateTime parses the canonical "YYYY-MM-DD HH:MM:SS.mmm" string.
func ParseDateTime(s string) (DateTime, error) {
	var d DateTime
	_, err := fmt.Sscanf(s, "%04d-%02d-%02d %02d:%02d:%02d.%03d",
		&d.Year, &d.Month, &d.Day, &d.Hour, &d.Minute, &d.Second, &d.Millisecond)
	if err != nil {
		return DateTime{}, fmt.Errorf("model: parse datetime %q: %w", s, err)
	}
	return d, nil
}

// filenameString renders the compact "DDMMYY_HHMMSSmmm" fragment used in
// File names. Years are two-digit, offset from 2000 per spec.
func (d DateTime) filenameString() string {
	yy := d.Year - 2000
	if yy < 0 || yy > 99 {
		yy = yy % 100
		if yy < 0 {
			yy += 100
		}
	}
	return fmt.Sprintf("%02d%02d%02d_%02d%02d%02d%03d",
		d.Day, d.Month, yy, d.Hour, d.Minute, d.Second, d.Millisecond)
}

// parseFilenameDateTime parses the compact "DDMMYY_HHMMSSmmm" fragment.
func parseFilenameDateTime(s string) (DateTime, error) {
	var dd, mm, yy, hh, mi, ss, ms int
	_, err := fmt.Sscanf(s, "%02d%02d%02d_%02d%02d%02d%03d", &dd, &mm, &yy, &hh, &mi, &ss, &ms)
	if err != nil {
		return DateTime{}, fmt.Errorf("model: parse filename datetime %q: %w", s, err)
	}
	return DateTime{
		Year: 2000 + yy, Month: mm, Day: dd,
		Hour: hh, Minute: mi, Second: ss, Millisecond: ms,
	}, nil
}

// Before reports whether d occurs strictly before o.
func (d DateTime) Before(o DateTime) bool {
	return d.Timestamp() < o.Timestamp()
}

// Compare returns -1, 0, or 1 as d is less than, equal to, or greater than o.
func (d DateTime) Compare(o DateTime) int {
	a, b := d.Timestamp(), o.Timestamp()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
