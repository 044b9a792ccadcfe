package core

import (
	"math"

	"github.com/signalsfoundry/orrery/model"
)

// FullTurn is one revolution in radians.
const FullTurn = 2 * math.Pi

// SpinStep is the fixed per-tick increment of a body's own rotation.
const SpinStep = 0.01

// SampleIndex maps an accumulated angle onto an index into an orbit path of
// n points. The angle is normalised into [0, 2π) and read as the fraction of
// one revolution completed. ok is false when the path is empty.
func SampleIndex(angle float64, n int) (idx int, ok bool) {
	if n <= 0 {
		return 0, false
	}

	a := math.Mod(angle, FullTurn)
	if a < 0 {
		a += FullTurn
	}

	idx = int(a / FullTurn * float64(n))
	// a/FullTurn can round up to exactly 1.0 for angles just below 2π.
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx, true
}

// Sample returns the point of path that corresponds to angle.
func Sample(path []model.Point, angle float64) (model.Point, bool) {
	idx, ok := SampleIndex(angle, len(path))
	if !ok {
		return model.Point{}, false
	}
	return path[idx], true
}
