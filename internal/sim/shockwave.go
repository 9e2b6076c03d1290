package sim

import (
	"math"

	"github.com/signalsfoundry/doppler-simulator/core"
	"github.com/signalsfoundry/doppler-simulator/model"
)

// ShockwaveDetector decides when the edge of the Mach cone sweeps over the
// observer. Hysteresis on source position and a minimum interval keep a
// single crossing from firing more than once.
type ShockwaveDetector struct {
	SpeedOfSound         float64 // m/s
	ConeWidth            float64 // track-percent
	ProximityThreshold   float64 // track-percent
	MinShockwaveInterval float64 // seconds

	hasShock     bool
	lastPosition float64
	lastTime     float64
}

// Cone is the Mach-cone geometry for the current tick.
type Cone struct {
	Apex     float64 `json:"apex"`
	Edge     float64 `json:"edge"`
	AngleRad float64 `json:"angle_rad"`
	AngleDeg float64 `json:"angle_deg"`
}

// ShockwaveMemory is the detector's record of the last shockwave.
type ShockwaveMemory struct {
	LastShockPosition model.Reading `json:"last_shock_position"`
	LastShockTime     float64       `json:"last_shock_time"`
}

// Active reports whether the supersonic regime applies to speed and class.
func (d *ShockwaveDetector) Active(speed float64, class model.VehicleClass) bool {
	return speed >= d.SpeedOfSound && class.Supersonic()
}

// ConeAt returns the cone trailing a source at source moving at speed. ok is
// false when the Mach angle is undefined, including exactly at the speed of
// sound.
func (d *ShockwaveDetector) ConeAt(source, speed float64) (Cone, bool) {
	theta, err := core.MachAngle(d.SpeedOfSound, speed)
	if err != nil {
		return Cone{}, false
	}
	return Cone{
		Apex:     source,
		Edge:     source - d.ConeWidth*math.Cos(theta),
		AngleRad: theta,
		AngleDeg: theta * 180 / math.Pi,
	}, true
}

// Evaluate checks the crossing conditions for cone at simulated time now and
// records the shockwave when it fires.
func (d *ShockwaveDetector) Evaluate(cone Cone, observer, now float64) bool {
	if math.Abs(observer-cone.Edge) >= d.ProximityThreshold {
		return false
	}
	if d.hasShock {
		if math.Abs(cone.Apex-d.lastPosition) <= d.ConeWidth/2 {
			return false
		}
		if now-d.lastTime <= d.MinShockwaveInterval {
			return false
		}
	}
	d.hasShock = true
	d.lastPosition = cone.Apex
	d.lastTime = now
	return true
}

// Reset forgets the last shockwave so the next crossing fires immediately.
func (d *ShockwaveDetector) Reset() {
	d.hasShock = false
	d.lastPosition = 0
	d.lastTime = 0
}

// Memory returns the detector's current memory.
func (d *ShockwaveDetector) Memory() ShockwaveMemory {
	m := ShockwaveMemory{LastShockTime: d.lastTime}
	if d.hasShock {
		m.LastShockPosition = model.Applicable(d.lastPosition)
	}
	return m
}
