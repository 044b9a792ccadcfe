package core

import "github.com/signalsfoundry/orrery/model"

// SunName is the name used for the central body.
const SunName = "Sun"

// SunRadius is the display radius of the central body.
const SunRadius = 30.0

// Body is the per-instance animation record for one rendered body. The
// owning scene manager is its only writer; Path is shared with the
// descriptor it came from and is never modified.
type Body struct {
	Name   string
	Kind   model.BodyKind
	Radius float64
	Speed  float64
	Path   []model.Point

	Angle    float64
	Spin     float64
	Position model.Point

	motion MotionModel
}

// NewPlanet builds an orbiting body from a descriptor. The body starts at
// angle 0, which places it on the first point of its path.
func NewPlanet(desc model.PlanetDescriptor, speed float64) *Body {
	b := &Body{
		Name:   desc.Name,
		Kind:   model.BodyKindPlanet,
		Radius: desc.Radius,
		Speed:  speed,
		Path:   desc.Orbit,
		motion: NewMotionModel(true),
	}
	if p, ok := Sample(b.Path, 0); ok {
		b.Position = p
	}
	return b
}

// NewSun builds the static central body at the origin.
func NewSun() *Body {
	return &Body{
		Name:   SunName,
		Kind:   model.BodyKindStar,
		Radius: SunRadius,
		motion: NewMotionModel(false),
	}
}

// Advance applies one tick using the body's motion model.
func (b *Body) Advance() {
	if b.motion == nil {
		b.motion = NewMotionModel(b.Kind == model.BodyKindPlanet)
	}
	b.motion.Advance(b)
}

// Snapshot returns a copy of b that is safe to hand to readers on other
// goroutines. The path slice is shared since nothing writes to it.
func (b *Body) Snapshot() Body {
	return Body{
		Name:     b.Name,
		Kind:     b.Kind,
		Radius:   b.Radius,
		Speed:    b.Speed,
		Path:     b.Path,
		Angle:    b.Angle,
		Spin:     b.Spin,
		Position: b.Position,
	}
}
