package model

// ZRange is a non-uniform depth schedule: parallel arrays of z[i] and
// dz[i], generated from the closed form dz(z) = a*z^2 + b with a, b fixed
// so that dz(z0) = dz0 and dz(z1) = dz1. The schedule is truncated once
// z >= z1.
type ZRange struct {
	Z  []float64
	DZ []float64
}

// NewZRange builds the schedule described above.
func NewZRange(z0, z1, dz0, dz1 float64) ZRange {
	if z1 <= z0 {
		return ZRange{}
	}
	// dz(z) = a*z^2 + b, dz(z0) = dz0, dz(z1) = dz1
	denom := z1*z1 - z0*z0
	var a, b float64
	if denom == 0 {
		a, b = 0, dz0
	} else {
		a = (dz1 - dz0) / denom
		b = dz0 - a*z0*z0
	}
	dz := func(z float64) float64 {
		v := a*z*z + b
		if v <= 0 {
			v = dz0
		}
		return v
	}

	var zs, dzs []float64
	z := z0
	for z < z1 {
		step := dz(z)
		zs = append(zs, z)
		dzs = append(dzs, step)
		z += step
	}
	return ZRange{Z: zs, DZ: dzs}
}

// Len returns the number of depth steps.
func (r ZRange) Len() int { return len(r.Z) }

// Slice returns the sub-schedule [start,end) as its own ZRange, sharing
// backing arrays (no copy).
func (r ZRange) Slice(start, end int) ZRange {
	if start < 0 {
		start = 0
	}
	if end > len(r.Z) {
		end = len(r.Z)
	}
	if start >= end {
		return ZRange{}
	}
	return ZRange{Z: r.Z[start:end], DZ: r.DZ[start:end]}
}

// Slabs partitions r into consecutive slabs of length step indices each
// (the last slab may be shorter).
func (r ZRange) Slabs(step int) []ZRange {
	if step <= 0 {
		step = 1
	}
	var slabs []ZRange
	for i := 0; i < len(r.Z); i += step {
		end := i + step
		if end > len(r.Z) {
			end = len(r.Z)
		}
		slabs = append(slabs, r.Slice(i, end))
	}
	return slabs
}
