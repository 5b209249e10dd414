package model

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Status is the one-character classification carried in a File name.
type Status byte

const (
	StatusNone    Status = 'X' // not yet classified
	StatusThrough Status = 'T' // accepted, passed through full analysis
	StatusFail    Status = 'F' // explicitly failed/rejected
	StatusSkip    Status = 'S' // skipped (noisy check, or bgsub warm-up)
)

// ParseStatus validates a status character.
func ParseStatus(c byte) (Status, error) {
	switch Status(c) {
	case StatusNone, StatusThrough, StatusFail, StatusSkip:
		return Status(c), nil
	default:
		return 0, fmt.Errorf("model: invalid status char %q", c)
	}
}

// Kind classifies a File's extension as an image frame or an archive package.
type Kind int

const (
	KindImage Kind = iota
	KindPackage
)

var imageExts = map[string]bool{
	".png": true, ".bmp": true, ".tif": true, ".tiff": true, ".jpg": true, ".jpeg": true,
}

var packageExts = map[string]bool{
	".iv1": true, ".ip1": true,
}

// File is the canonical identity of one hologram frame (or package): a
// sensor id, a timestamp, a frame number, a status, and the path it was
// discovered at. File name format is exactly
//
//	SS_DDMMYY_HHMMSSmmm_FFFFFF_C
//
// where SS is two hex digits (sensor), FFFFFF is six decimal digits
// (frame), and C is one of X T F S.
type File struct {
	Sensor uint8
	DT     DateTime
	Frame  uint32
	Status Status
	Path   string
}

// Name renders the canonical filename stem (without directory or extension).
func (f File) Name() string {
	return fmt.Sprintf("%02X_%s_%06d_%c", f.Sensor, f.DT.filenameString(), f.Frame, f.Status)
}

// Ext returns the file extension (including the leading dot) taken from Path.
func (f File) Ext() string {
	return strings.ToLower(filepath.Ext(f.Path))
}

// Kind classifies the file by extension as an image frame or a package archive.
func (f File) Kind() Kind {
	if packageExts[f.Ext()] {
		return KindPackage
	}
	return KindImage
}

// ParseName parses a canonical filename stem of the form
// "SS_DDMMYY_HHMMSSmmm_FFFFFF_C" (no directory, no extension) into its
// components. The Path field is left empty; callers typically use
// ParseFile to populate it from a full path.
func ParseName(name string) (File, error) {
	// The DT fragment itself contains an embedded underscore
	// ("DDMMYY_HHMMSSmmm"), so the full stem splits into 5 fields, not 4:
	// sensor, DDMMYY, HHMMSSmmm, frame, status.
	parts := strings.Split(name, "_")
	if len(parts) != 5 {
		return File{}, fmt.Errorf("model: invalid file name %q: expected 5 underscore-separated fields", name)
	}
	sensor, err := strconv.ParseUint(parts[0], 16, 8)
	if err != nil {
		return File{}, fmt.Errorf("model: invalid sensor field %q: %w", parts[0], err)
	}
	dt, err := parseFilenameDateTime(parts[1] + "_" + parts[2])
	if err != nil {
		return File{}, err
	}
	frame, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return File{}, fmt.Errorf("model: invalid frame field %q: %w", parts[3], err)
	}
	if len(parts[4]) != 1 {
		return File{}, fmt.Errorf("model: invalid status field %q", parts[4])
	}
	status, err := ParseStatus(parts[4][0])
	if err != nil {
		return File{}, err
	}
	return File{
		Sensor: uint8(sensor),
		DT:     dt,
		Frame:  uint32(frame),
		Status: status,
	}, nil
}

// ParseFile parses a full filesystem path; the stem (minus extension) must
// follow the canonical name grammar.
func ParseFile(path string) (File, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	f, err := ParseName(stem)
	if err != nil {
		return File{}, err
	}
	f.Path = path
	return f, nil
}

// Compare implements the total ordering on (Sensor, DateTime, Frame),
// ignoring Status and Path.
func (f File) Compare(o File) int {
	if f.Sensor != o.Sensor {
		if f.Sensor < o.Sensor {
			return -1
		}
		return 1
	}
	if c := f.DT.Compare(o.DT); c != 0 {
		return c
	}
	if f.Frame != o.Frame {
		if f.Frame < o.Frame {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether f sorts before o under Compare.
func (f File) Less(o File) bool { return f.Compare(o) < 0 }
