package model

import "fmt"

// WaveKind distinguishes the origin of a wavefront.
type WaveKind int

const (
	WaveNormal    WaveKind = iota // periodic emission from the source
	WaveReflected                 // echo arriving at the observer
	WaveShockwave                 // Mach-cone edge crossing the observer
	WaveRipple                    // secondary echo drawn around the observer
)

var waveKindNames = [...]string{
	WaveNormal:    "normal",
	WaveReflected: "reflected",
	WaveShockwave: "shockwave",
	WaveRipple:    "ripple",
}

func (k WaveKind) String() string {
	if k < 0 || int(k) >= len(waveKindNames) {
		return fmt.Sprintf("WaveKind(%d)", int(k))
	}
	return waveKindNames[k]
}

func (k WaveKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *WaveKind) UnmarshalText(text []byte) error {
	for i, n := range waveKindNames {
		if n == string(text) {
			*k = WaveKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown wave kind %q", string(text))
}

// Echo reports whether waves of this kind are produced by a scheduled echo
// rather than by the source itself.
func (k WaveKind) Echo() bool {
	return k == WaveReflected || k == WaveShockwave || k == WaveRipple
}

// Wavefront is one emitted pulse. Times are simulated seconds since the
// engine started.
type Wavefront struct {
	ID             uint64   `json:"id"`
	Kind           WaveKind `json:"kind"`
	OriginPosition float64  `json:"origin_position"`
	EmissionTime   float64  `json:"emission_time"`
	Expiry         float64  `json:"expiry"`
}

// Expired reports whether the wavefront has outlived its lifetime at now.
func (w Wavefront) Expired(now float64) bool {
	return now >= w.Expiry
}

// Age returns the seconds elapsed since emission, never negative.
func (w Wavefront) Age(now float64) float64 {
	if now < w.EmissionTime {
		return 0
	}
	return now - w.EmissionTime
}

// PendingEcho is a delayed reflected or shockwave event waiting to fire.
// Its positions are captured at scheduling time and become stale on any
// discontinuous change of the simulation state.
type PendingEcho struct {
	CancelToken                string   `json:"cancel_token"`
	Kind                       WaveKind `json:"kind"`
	FireTime                   float64  `json:"fire_time"`
	ObserverPositionAtSchedule float64  `json:"observer_position_at_schedule"`
	SourcePositionAtSchedule   float64  `json:"source_position_at_schedule"`
	// EchoPosition is where the fired wavefront is placed: the observer for
	// reflections, the cone edge for shockwaves.
	EchoPosition float64 `json:"echo_position"`
}
