// Package sim is the simulation engine: it owns the kinematic state of the
// moving source, the live wavefronts and the pending echoes, and advances
// them on a simulated clock.
package sim

import (
	"math"

	"github.com/signalsfoundry/doppler-simulator/model"
)

// trackLength is the length of the wrapping track in track-percent.
const trackLength = 100.0

// maxTrackPosition is the largest position strictly below trackLength.
var maxTrackPosition = math.Nextafter(trackLength, 0)

// State is the mutable kinematic state of a single source/observer pair.
type State struct {
	SourcePosition          float64            `json:"source_position"`
	ObserverPosition        float64            `json:"observer_position"`
	Speed                   float64            `json:"speed"`
	SourceFrequency         float64            `json:"source_frequency"`
	VehicleClass            model.VehicleClass `json:"vehicle_class"`
	ManualFrequencyOverride bool               `json:"manual_frequency_override"`
	Paused                  bool               `json:"paused"`
}

// wrapPosition maps p onto [0, 100). Non-finite positions collapse to 0.
func wrapPosition(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	p = math.Mod(p, trackLength)
	if p < 0 {
		p += trackLength
	}
	if p >= trackLength {
		// math.Mod of a tiny negative number can round up to 100.
		p = 0
	}
	return p
}

// clampTrack limits a dragged position to the visible track.
func clampTrack(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(p, maxTrackPosition))
}

// sanitizeSpeed maps malformed speed input to a usable value: non-finite and
// negative speeds become 0 and anything above max is clamped to max.
func sanitizeSpeed(v, max float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return math.Min(v, max)
}

// sanitizeFrequency maps malformed frequency input to a usable value:
// non-finite input falls back to def and anything below min is raised to min.
func sanitizeFrequency(f, def, min float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	if f < min {
		return min
	}
	return f
}
