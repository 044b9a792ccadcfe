// Package scene owns the live bodies of the visualization, their lifecycle
// from loading to populated, and the declarative description of each frame.
package scene

import "github.com/signalsfoundry/orrery/core"

// Phase names a lifecycle state.
type Phase int

const (
	PhaseLoading Phase = iota
	PhasePopulated
)

func (p Phase) String() string {
	switch p {
	case PhasePopulated:
		return "populated"
	default:
		return "loading"
	}
}

// State is the scene lifecycle as a closed set of variants: Loading before
// the planet data has resolved, Populated afterwards. Code that renders a
// scene switches on the concrete type.
type State interface {
	Phase() Phase
	isState()
}

// Loading is the state before planet data has been received.
type Loading struct{}

func (Loading) Phase() Phase { return PhaseLoading }
func (Loading) isState()     {}

// Populated holds copies of the orbiting bodies in descriptor order. It may
// hold zero bodies when the fetch failed.
type Populated struct {
	Bodies []core.Body
}

func (Populated) Phase() Phase { return PhasePopulated }
func (Populated) isState()     {}

// Snapshot is a consistent read of the scene at one tick.
type Snapshot struct {
	Tick  uint64
	Sun   core.Body
	State State
}
