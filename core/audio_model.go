package core

import (
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/doppler-simulator/model"
)

// ApproachPhase tracks where the source is relative to the observer. It only
// selects the sign of the relative velocity used for the Doppler shift.
type ApproachPhase int

const (
	PhaseIdle ApproachPhase = iota
	PhaseApproaching
	PhaseAtObserver
	PhaseReceding
)

func (p ApproachPhase) String() string {
	switch p {
	case PhaseApproaching:
		return "approaching"
	case PhaseAtObserver:
		return "at_observer"
	case PhaseReceding:
		return "receding"
	default:
		return "idle"
	}
}

func (p ApproachPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *ApproachPhase) UnmarshalText(text []byte) error {
	for _, candidate := range []ApproachPhase{PhaseIdle, PhaseApproaching, PhaseAtObserver, PhaseReceding} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown approach phase %q", string(text))
}

// AudioTarget is what an external tone generator should ramp towards. The
// model never produces samples.
type AudioTarget struct {
	Class     model.VehicleClass `json:"class"`
	Phase     ApproachPhase      `json:"phase"`
	Waveform  Waveform           `json:"waveform,omitempty"`
	Frequency float64            `json:"frequency"`
	Gain      float64            `json:"gain"`
	Ramp      time.Duration      `json:"ramp"`
	// Modulation is set for sirens; Frequency then already includes the
	// instantaneous wobble for generators without their own LFO.
	Modulation *Siren `json:"modulation,omitempty"`
}

// Silent reports whether the target asks for no sound.
func (t AudioTarget) Silent() bool {
	return t.Waveform == WaveformSilent || t.Gain == 0
}

// AudioModel maps the kinematic state to continuous audio control targets.
type AudioModel struct {
	SpeedOfSound     float64 // m/s
	MetersPerPercent float64 // metres per track-percent
	MinDistance      float64 // metres; distance floor for the gain law
	SilenceThreshold float64 // metres; gain is forced to zero beyond this
	// AtObserverTolerance is the track-percent band treated as "at the observer".
	AtObserverTolerance float64
}

// NewAudioModel returns a model with the default distance constants.
func NewAudioModel(speedOfSound, metersPerPercent float64) *AudioModel {
	return &AudioModel{
		SpeedOfSound:        speedOfSound,
		MetersPerPercent:    metersPerPercent,
		MinDistance:         1,
		SilenceThreshold:    20,
		AtObserverTolerance: 1e-9,
	}
}

// Distance returns the metres between source and observer, floored at
// MinDistance.
func (m *AudioModel) Distance(source, observer float64) float64 {
	return math.Max(math.Abs(source-observer)*m.MetersPerPercent, m.MinDistance)
}

// Gain applies the inverse-square law to the distance and scales it for the
// class, returning zero beyond the silence threshold.
func (m *AudioModel) Gain(distance, classScale float64) float64 {
	if distance > m.SilenceThreshold {
		return 0
	}
	d := math.Max(distance, m.MinDistance)
	return math.Min(1, 1/(d*d)) * classScale
}

// Phase classifies the source position relative to the observer. A source
// out of earshot or standing still is idle.
func (m *AudioModel) Phase(source, observer, speed float64) ApproachPhase {
	diff := source - observer
	switch {
	case speed <= 0:
		return PhaseIdle
	case math.Abs(diff) <= m.AtObserverTolerance:
		return PhaseAtObserver
	case math.Abs(diff)*m.MetersPerPercent > m.SilenceThreshold:
		return PhaseIdle
	case diff < 0:
		return PhaseApproaching
	default:
		return PhaseReceding
	}
}

// RelativeVelocity returns the source velocity along the line of sight,
// positive while approaching.
func RelativeVelocity(phase ApproachPhase, speed float64) float64 {
	switch phase {
	case PhaseApproaching:
		return speed
	case PhaseReceding:
		return -speed
	default:
		return 0
	}
}

// Update computes the audio target for the given state. t is the simulated
// time in seconds and only drives the siren wobble.
func (m *AudioModel) Update(class model.VehicleClass, source, observer, speed, t float64) AudioTarget {
	profile := Profile(class)
	phase := m.Phase(source, observer, speed)
	target := AudioTarget{Class: class, Phase: phase}
	if !profile.Voiced() {
		return target
	}

	target.Waveform = profile.Waveform
	target.Ramp = profile.Ramp
	target.Gain = m.Gain(m.Distance(source, observer), profile.GainScale)

	if s := profile.Siren; s != nil {
		siren := *s
		target.Modulation = &siren
		target.Frequency = s.Carrier + s.Depth*triangle(s.Rate*t)
		return target
	}

	carrier := profile.Engine.Carrier(speed)
	vRel := RelativeVelocity(phase, speed)
	if phase == PhaseIdle && speed > 0 {
		// Out of earshot: keep the side-based sign so the target does not
		// jump when the source comes back into range.
		vRel = speed
		if source > observer {
			vRel = -speed
		}
	}
	target.Frequency = ObservedFrequency(carrier, m.SpeedOfSound, vRel, 0).Or(carrier)
	return target
}

// triangle is a unit triangle wave in [-1, 1] with period 1 in x.
func triangle(x float64) float64 {
	frac := x - math.Floor(x)
	return 1 - 4*math.Abs(frac-0.5)
}
