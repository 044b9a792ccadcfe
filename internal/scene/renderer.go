package scene

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/orrery/model"
)

// Renderer is the declarative scene boundary. The composer declares what
// exists in a frame; the renderer decides how it is drawn or encoded.
type Renderer interface {
	Camera(CameraSpec)
	Light(LightSpec)
	Sphere(SphereSpec)
	Polyline(PolylineSpec)
}

// Quat is a rotation quaternion in x, y, z, w order as browsers expect.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// SpinQuat returns the rotation of a body spun by angle radians about +Y.
func SpinQuat(angle float64) Quat {
	q := mgl64.QuatRotate(angle, mgl64.Vec3{0, 1, 0})
	return Quat{X: q.V[0], Y: q.V[1], Z: q.V[2], W: q.W}
}

// CameraSpec declares the viewer. Controls names the interactive controller
// the client should attach; the service never drives it.
type CameraSpec struct {
	Position model.Point `json:"position"`
	FOV      float64     `json:"fov"`
	Near     float64     `json:"near"`
	Far      float64     `json:"far"`
	Controls string      `json:"controls"`
}

// Light kinds.
const (
	LightAmbient = "ambient"
	LightPoint   = "point"
)

// LightSpec declares a light source. Position is ignored for ambient light.
type LightSpec struct {
	Kind      string       `json:"kind"`
	Intensity float64      `json:"intensity"`
	Position  *model.Point `json:"position,omitempty"`
}

// SphereSpec declares a solid-colour sphere.
type SphereSpec struct {
	Name     string      `json:"name"`
	Kind     string      `json:"kind"`
	Radius   float64     `json:"radius"`
	Segments int         `json:"segments"`
	Color    string      `json:"color"`
	Position model.Point `json:"position"`
	Rotation Quat        `json:"rotation"`
}

// PolylineSpec declares a line through an ordered sequence of points.
type PolylineSpec struct {
	Name        string        `json:"name"`
	Points      []model.Point `json:"points"`
	Color       string        `json:"color"`
	Opacity     float64       `json:"opacity"`
	Transparent bool          `json:"transparent"`
	Width       float64       `json:"width"`
}
