package model

// ParticleGroup is one frame's worth of previously-persisted Particles,
// as read back from internal/storage for the Source stage's stats-only
// (-s) rehydration mode.
type ParticleGroup struct {
	Sensor    uint8
	TSMillis  int64
	Frame     uint32
	Particles []Particle
}
