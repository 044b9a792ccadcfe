package core

// MotionModel advances a body's animation state by one tick.
type MotionModel interface {
	Advance(b *Body)
}

// StaticMotionModel leaves the body where it is.
type StaticMotionModel struct{}

// Advance for static motion does nothing.
func (m *StaticMotionModel) Advance(b *Body) {
	// no-op
}

// SampledOrbitModel moves a body along its precomputed orbit path. The
// body's angle grows by its speed every tick and the path is sampled at the
// resulting fraction of a revolution. The body's spin advances by SpinStep
// regardless of where it sits on the path.
type SampledOrbitModel struct{}

// Advance applies one tick to b.
func (m *SampledOrbitModel) Advance(b *Body) {
	b.Angle += b.Speed
	if p, ok := Sample(b.Path, b.Angle); ok {
		b.Position = p
	}
	b.Spin += SpinStep
}

// NewMotionModel chooses a MotionModel for a body. Anything that can orbit
// gets the sampled model, even with an empty path: the path stays empty and
// only the spin moves.
func NewMotionModel(orbits bool) MotionModel {
	if orbits {
		return &SampledOrbitModel{}
	}
	return &StaticMotionModel{}
}
