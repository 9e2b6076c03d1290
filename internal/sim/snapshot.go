package sim

import (
	"github.com/signalsfoundry/doppler-simulator/core"
	"github.com/signalsfoundry/doppler-simulator/model"
)

// Snapshot is a consistent, read-only view of the engine after a tick.
// Slices are copies and may be retained by the caller.
type Snapshot struct {
	Tick    uint64  `json:"tick"`
	SimTime float64 `json:"sim_time"`
	State

	// MachAngle is defined only in the supersonic regime.
	MachAngle   model.Reading   `json:"mach_angle"`
	Cone        *Cone           `json:"cone,omitempty"`
	Shockwave   ShockwaveMemory `json:"shockwave"`
	MarkerScale float64         `json:"marker_scale"`

	ActiveWavefronts []model.Wavefront   `json:"active_wavefronts"`
	PendingEchoes    []model.PendingEcho `json:"pending_echoes"`

	Audio   core.AudioTarget    `json:"audio"`
	Metrics core.DisplayMetrics `json:"metrics"`
}

// CountKind returns how many active wavefronts are of kind k.
func (s Snapshot) CountKind(k model.WaveKind) int {
	n := 0
	for _, w := range s.ActiveWavefronts {
		if w.Kind == k {
			n++
		}
	}
	return n
}
