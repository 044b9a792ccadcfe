package scene

// Frame is the JSON encoding of one composed scene, as sent to browsers.
type Frame struct {
	Tick      uint64         `json:"tick"`
	Phase     string         `json:"phase"`
	Camera    *CameraSpec    `json:"camera,omitempty"`
	Lights    []LightSpec    `json:"lights,omitempty"`
	Spheres   []SphereSpec   `json:"spheres"`
	Polylines []PolylineSpec `json:"polylines,omitempty"`
}

// FrameBuilder is a Renderer that records declarations into a Frame.
type FrameBuilder struct {
	frame     Frame
	polylines bool
	statics   bool
}

// BuildOption configures a FrameBuilder.
type BuildOption func(*FrameBuilder)

// WithoutPolylines drops orbit lines, which never change within a session.
func WithoutPolylines() BuildOption {
	return func(b *FrameBuilder) { b.polylines = false }
}

// WithoutStatics drops the camera and lights.
func WithoutStatics() BuildOption {
	return func(b *FrameBuilder) { b.statics = false }
}

// NewFrameBuilder starts a frame for the given snapshot header.
func NewFrameBuilder(tick uint64, phase Phase, opts ...BuildOption) *FrameBuilder {
	b := &FrameBuilder{
		frame:     Frame{Tick: tick, Phase: phase.String(), Spheres: []SphereSpec{}},
		polylines: true,
		statics:   true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *FrameBuilder) Camera(c CameraSpec) {
	if !b.statics {
		return
	}
	b.frame.Camera = &c
}

func (b *FrameBuilder) Light(l LightSpec) {
	if !b.statics {
		return
	}
	b.frame.Lights = append(b.frame.Lights, l)
}

func (b *FrameBuilder) Sphere(s SphereSpec) {
	b.frame.Spheres = append(b.frame.Spheres, s)
}

func (b *FrameBuilder) Polyline(p PolylineSpec) {
	if !b.polylines {
		return
	}
	b.frame.Polylines = append(b.frame.Polylines, p)
}

// Frame returns the recorded frame.
func (b *FrameBuilder) Frame() Frame {
	return b.frame
}

// BuildFrame snapshots m and composes it into a Frame.
func BuildFrame(m *Manager, opts ...BuildOption) Frame {
	snap := m.Snapshot()
	b := NewFrameBuilder(snap.Tick, snap.State.Phase(), opts...)
	Compose(snap, m.Tables().Colors, b)
	return b.Frame()
}
