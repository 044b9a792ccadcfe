package scene

import (
	"errors"
	"strings"
	"sync"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/appearance"
	"github.com/signalsfoundry/orrery/model"
)

// ErrAlreadyPopulated is returned when Populate is called a second time.
var ErrAlreadyPopulated = errors.New("scene already populated")

// MetricsRecorder receives lifecycle changes.
type MetricsRecorder interface {
	SetScene(populated bool, bodies int)
}

// Manager owns every live body and is the only thing that advances them.
// Tick is expected to be called from a single goroutine (the frame clock);
// readers on other goroutines go through Snapshot and friends.
type Manager struct {
	mu sync.RWMutex

	tables appearance.Tables

	populated bool
	sun       *core.Body
	bodies    []*core.Body
	planets   []model.PlanetDescriptor
	ticks     uint64

	metrics   MetricsRecorder
	listeners []func(Populated)
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetricsRecorder reports lifecycle changes to rec.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(m *Manager) {
		m.metrics = rec
	}
}

// NewManager returns a Manager in the Loading state.
func NewManager(tables appearance.Tables, opts ...Option) *Manager {
	m := &Manager{
		tables: tables,
		sun:    core.NewSun(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics != nil {
		m.metrics.SetScene(false, 0)
	}
	return m
}

// Tables returns the appearance tables the manager was built with.
func (m *Manager) Tables() appearance.Tables {
	return m.tables
}

// OnTransition registers fn to run after the scene becomes populated. It
// must be registered before Populate is called.
func (m *Manager) OnTransition(fn func(Populated)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Populate moves the scene from Loading to Populated with one body per
// descriptor. Speeds come from the speed table; bodies keep descriptor
// order. A nil or empty list still completes the transition.
func (m *Manager) Populate(planets []model.PlanetDescriptor) error {
	m.mu.Lock()
	if m.populated {
		m.mu.Unlock()
		return ErrAlreadyPopulated
	}

	bodies := make([]*core.Body, 0, len(planets))
	for _, p := range planets {
		bodies = append(bodies, core.NewPlanet(p, m.tables.Speeds.Lookup(p.Name)))
	}
	m.bodies = bodies
	m.planets = planets
	m.populated = true

	state := m.populatedLocked()
	listeners := append([]func(Populated){}, m.listeners...)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetScene(true, len(bodies))
	}
	for _, fn := range listeners {
		fn(state)
	}
	return nil
}

// Tick advances every body by one frame, in descriptor order, and returns
// the new tick count. While loading only the counter moves.
func (m *Manager) Tick() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ticks++
	m.sun.Advance()
	for _, b := range m.bodies {
		b.Advance()
	}
	return m.ticks
}

// TickCount returns the number of ticks applied so far.
func (m *Manager) TickCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ticks
}

// State returns the current lifecycle variant.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

// Snapshot returns a consistent copy of the scene.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Tick:  m.ticks,
		Sun:   m.sun.Snapshot(),
		State: m.stateLocked(),
	}
}

// Body returns a copy of the named body. Names match case-insensitively.
func (m *Manager) Body(name string) (core.Body, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bodies {
		if strings.EqualFold(b.Name, name) {
			return b.Snapshot(), true
		}
	}
	return core.Body{}, false
}

// Planets returns the descriptors the scene was populated with, or nil
// while loading.
func (m *Manager) Planets() []model.PlanetDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.planets
}

func (m *Manager) stateLocked() State {
	if !m.populated {
		return Loading{}
	}
	return m.populatedLocked()
}

func (m *Manager) populatedLocked() Populated {
	bodies := make([]core.Body, len(m.bodies))
	for i, b := range m.bodies {
		bodies[i] = b.Snapshot()
	}
	return Populated{Bodies: bodies}
}
