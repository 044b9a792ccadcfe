package model

// Point is one vertex of a precomputed orbit path, in scene units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PlanetDescriptor is a body as delivered by the planet data source.
// Orbit is a closed curve sampled over one revolution; the first and last
// points need not coincide. Descriptors are treated as read-only once
// received.
type PlanetDescriptor struct {
	Name   string  `json:"name"`
	Radius float64 `json:"radius"`
	Orbit  []Point `json:"orbit"`
}

// BodyKind distinguishes the central body from orbiting ones.
type BodyKind int

const (
	BodyKindPlanet BodyKind = iota
	BodyKindStar
)

func (k BodyKind) String() string {
	switch k {
	case BodyKindStar:
		return "star"
	default:
		return "planet"
	}
}
