// Package model holds the data types shared across every pipeline stage:
// timestamps, file identity, the Image/Segment/Particle records, the
// non-uniform ZRange depth schedule, and the tagged Envelope the worker
// framework passes between stages.
package model

import "time"

// Timestamp is a UTC millisecond instant, matching the wire/DB precision
// used throughout the pipeline (DateTime strings carry millisecond digits).
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UTC().UnixMilli())
}

// TimestampFromTime converts a time.Time to a Timestamp, truncating to
// millisecond precision in UTC.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(t.UTC().UnixMilli())
}

// Time converts back to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// Add returns t shifted by d.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return Timestamp(int64(t) + d.Milliseconds())
}

// WindowStart floors t to the start of the window of length windowMillis,
// aligned to wall-clock epoch: floor(t / windowMillis) * windowMillis.
func (t Timestamp) WindowStart(windowMillis int64) Timestamp {
	if windowMillis <= 0 {
		return t
	}
	v := int64(t)
	start := (v / windowMillis) * windowMillis
	if v < 0 && v%windowMillis != 0 {
		start -= windowMillis
	}
	return Timestamp(start)
}
