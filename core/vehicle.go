package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/doppler-simulator/model"
)

// Waveform names the oscillator shape an audio collaborator should use.
type Waveform string

const (
	WaveformSilent   Waveform = ""
	WaveformSine     Waveform = "sine"
	WaveformSquare   Waveform = "square"
	WaveformTriangle Waveform = "triangle"
)

// EngineTone describes a speed-dependent engine carrier:
// clamp(Base + Scale*speed, Low, High).
type EngineTone struct {
	Base  float64
	Scale float64
	Low   float64
	High  float64
}

// Carrier returns the clamped carrier frequency for speed.
func (t EngineTone) Carrier(speed float64) float64 {
	return math.Max(t.Low, math.Min(t.Base+t.Scale*speed, t.High))
}

// Siren is a fixed carrier wobbled by a low-frequency oscillator.
type Siren struct {
	Carrier  float64  // Hz
	Rate     float64  // LFO frequency, Hz
	Depth    float64  // LFO amplitude, Hz
	Waveform Waveform // LFO shape
}

// ClassProfile holds everything that depends on the vehicle class.
type ClassProfile struct {
	Class model.VehicleClass

	// Speed band (m/s). A speed v belongs to the band when
	// v > MinSpeed (or v >= MinSpeed if MinInclusive) and
	// v <= MaxSpeed (or v < MaxSpeed if !MaxInclusive).
	MinSpeed     float64
	MinInclusive bool
	MaxSpeed     float64
	MaxInclusive bool

	// DefaultFrequency is assigned to the source on entering the class unless
	// the user set the frequency by hand. Zero keeps the current frequency.
	DefaultFrequency float64

	// MarkerScale is the final scale of a wavefront marker for renderers.
	MarkerScale float64

	Waveform  Waveform
	GainScale float64
	Ramp      time.Duration
	Engine    *EngineTone
	Siren     *Siren
}

func (p ClassProfile) contains(v float64) bool {
	if p.MinInclusive {
		if v < p.MinSpeed {
			return false
		}
	} else if v <= p.MinSpeed {
		return false
	}
	if p.MaxInclusive {
		return v <= p.MaxSpeed
	}
	return v < p.MaxSpeed
}

// Voiced reports whether the class has a continuous engine or siren tone.
func (p ClassProfile) Voiced() bool {
	return p.Engine != nil || p.Siren != nil
}

// classTable is ordered by speed band. The 39–50 m/s gap is deliberately
// mapped to VehicleNone.
var classTable = []ClassProfile{
	{
		Class:    model.VehicleCar,
		MinSpeed: math.Inf(-1), MaxSpeed: 20, MaxInclusive: true,
		DefaultFrequency: 2500,
		MarkerScale:      30,
		Waveform:         WaveformSquare,
		GainScale:        0.3,
		Ramp:             20 * time.Millisecond,
		Engine:           &EngineTone{Base: 80, Scale: 0.6, Low: 50, High: 220},
	},
	{
		Class:    model.VehicleAmbulance,
		MinSpeed: 20, MaxSpeed: 39, MaxInclusive: true,
		DefaultFrequency: 2500,
		MarkerScale:      40,
		Waveform:         WaveformSquare,
		GainScale:        0.06,
		Ramp:             30 * time.Millisecond,
		Siren:            &Siren{Carrier: 700, Rate: 5, Depth: 250, Waveform: WaveformTriangle},
	},
	{
		Class:    model.VehicleNone,
		MinSpeed: 39, MaxSpeed: 50, MaxInclusive: true,
		MarkerScale: 30,
	},
	{
		Class:    model.VehicleSport,
		MinSpeed: 50, MaxSpeed: 117, MaxInclusive: true,
		DefaultFrequency: 3500,
		MarkerScale:      50,
		Waveform:         WaveformSquare,
		GainScale:        0.3,
		Ramp:             20 * time.Millisecond,
		Engine:           &EngineTone{Base: 30, Scale: 0.11, Low: 20, High: 52},
	},
	{
		Class:    model.VehicleJet,
		MinSpeed: 117, MaxSpeed: 664,
		DefaultFrequency: 4500,
		MarkerScale:      60,
	},
	{
		Class:    model.VehicleMissile,
		MinSpeed: 664, MinInclusive: true, MaxSpeed: math.Inf(1), MaxInclusive: true,
		MarkerScale: 60,
	},
}

var profileByClass = func() map[model.VehicleClass]ClassProfile {
	m := make(map[model.VehicleClass]ClassProfile, len(classTable))
	for _, p := range classTable {
		m[p.Class] = p
	}
	return m
}()

// Classify maps a speed in m/s to its vehicle class. Negative and NaN speeds
// are treated as zero.
func Classify(speed float64) model.VehicleClass {
	if math.IsNaN(speed) || speed < 0 {
		speed = 0
	}
	for _, p := range classTable {
		if p.contains(speed) {
			return p.Class
		}
	}
	return model.VehicleNone
}

// Profile returns the parameters of a vehicle class.
func Profile(c model.VehicleClass) ClassProfile {
	if p, ok := profileByClass[c]; ok {
		return p
	}
	return profileByClass[model.VehicleNone]
}
