package scene

import (
	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/appearance"
	"github.com/signalsfoundry/orrery/model"
)

// Fixed scene parameters.
const (
	CameraDistance = 600.0
	CameraFOV      = 50.0
	CameraNear     = 0.1
	CameraFar      = 100000.0
	CameraControls = "orbit"

	AmbientIntensity = 0.5
	PointIntensity   = 1.5

	SphereSegments = 32

	SunColor      = "yellow"
	OrbitColor    = "white"
	OrbitOpacity  = 0.7
	OrbitWidth    = 1.0
	orbitLineName = "-orbit"
)

// Compose declares one frame of snap to r: the camera, the lights, the sun
// and, once populated, a sphere and an orbit line per body.
func Compose(snap Snapshot, colors appearance.ColorTable, r Renderer) {
	r.Camera(CameraSpec{
		Position: model.Point{Z: CameraDistance},
		FOV:      CameraFOV,
		Near:     CameraNear,
		Far:      CameraFar,
		Controls: CameraControls,
	})
	r.Light(LightSpec{Kind: LightAmbient, Intensity: AmbientIntensity})
	r.Light(LightSpec{Kind: LightPoint, Intensity: PointIntensity, Position: &model.Point{}})

	r.Sphere(sphereFor(snap.Sun, colorHex(SunColor)))

	switch st := snap.State.(type) {
	case Loading:
		// sun only until the planets arrive
	case Populated:
		for _, b := range st.Bodies {
			r.Sphere(sphereFor(b, colors.Hex(b.Name)))
			r.Polyline(PolylineSpec{
				Name:        b.Name + orbitLineName,
				Points:      b.Path,
				Color:       colorHex(OrbitColor),
				Opacity:     OrbitOpacity,
				Transparent: true,
				Width:       OrbitWidth,
			})
		}
	}
}

func sphereFor(b core.Body, color string) SphereSpec {
	return SphereSpec{
		Name:     b.Name,
		Kind:     b.Kind.String(),
		Radius:   b.Radius,
		Segments: SphereSegments,
		Color:    color,
		Position: b.Position,
		Rotation: SpinQuat(b.Spin),
	}
}

func colorHex(name string) string {
	c, err := appearance.ParseColor(name)
	if err != nil {
		return name
	}
	return c.Hex()
}
