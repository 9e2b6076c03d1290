package core

import (
	"math"

	"github.com/signalsfoundry/doppler-simulator/model"
)

const (
	mpsToKmh = 3.6
	mpsToMph = 2.23694

	minAudibleHz = 20
	maxAudibleHz = 20000
)

// RelativePosition describes which side of the observer the source is on.
type RelativePosition string

const (
	AheadOfObserver  RelativePosition = "ahead"  // source before the observer
	BehindObserver   RelativePosition = "behind" // source past the observer
	AtObserverOffset RelativePosition = "at_observer"
)

// DisplayMetrics are the derived numbers shown next to the animation.
type DisplayMetrics struct {
	SpeedKmh          float64          `json:"speed_kmh"`
	SpeedMph          float64          `json:"speed_mph"`
	MachNumber        float64          `json:"mach_number"`
	Wavelength        model.Reading    `json:"wavelength"`
	ObservedFrequency model.Reading    `json:"observed_frequency"`
	DeltaF            model.Reading    `json:"delta_f"`
	DopplerCoeff      model.Reading    `json:"doppler_coefficient"`
	MachAngleDeg      model.Reading    `json:"mach_angle_deg"`
	MachAngleRad      model.Reading    `json:"mach_angle_rad"`
	OffsetPercent     float64          `json:"offset_percent"`
	Position          RelativePosition `json:"position"`
	DistanceMeters    float64          `json:"distance_meters"`
	TimeToObserver    float64          `json:"time_to_observer"`
	TimeToObserverPct float64          `json:"time_to_observer_percent"`
	PhaseShift        float64          `json:"phase_shift"`
	RelativeEnergy    float64          `json:"relative_energy"`
	Audible           bool             `json:"audible"`
}

// MetricsInput is the state the display metrics are derived from.
type MetricsInput struct {
	SourcePosition   float64
	ObserverPosition float64
	Speed            float64
	SourceFrequency  float64
	SpeedOfSound     float64
	MetersPerPercent float64
	SpeedOfSoundSim  float64 // track-percent per second
}

// ComputeDisplayMetrics derives the display metrics. It never fails; values
// that are undefined for the state are reported as not applicable.
func ComputeDisplayMetrics(in MetricsInput) DisplayMetrics {
	c := in.SpeedOfSound
	f0 := in.SourceFrequency
	offset := in.SourcePosition - in.ObserverPosition
	distance := math.Abs(offset) * in.MetersPerPercent

	out := DisplayMetrics{
		SpeedKmh:       in.Speed * mpsToKmh,
		SpeedMph:       in.Speed * mpsToMph,
		MachNumber:     MachNumber(in.Speed, c),
		OffsetPercent:  offset,
		DistanceMeters: distance,
		Audible:        f0 >= minAudibleHz && f0 <= maxAudibleHz,
	}
	if c > 0 {
		out.TimeToObserver = distance / c
	}
	out.TimeToObserverPct = timeToObserverPercent(math.Abs(offset), in.Speed, c, in.SpeedOfSoundSim)

	switch {
	case offset < 0:
		out.Position = AheadOfObserver
	case offset > 0:
		out.Position = BehindObserver
	default:
		out.Position = AtObserverOffset
	}

	lambda := 1.0
	if l, err := Wavelength(f0, c); err == nil {
		out.Wavelength = model.Applicable(l)
		if l > 0 {
			lambda = l
		}
	}
	out.PhaseShift = 2 * math.Pi * distance / lambda

	d := math.Max(distance, 1)
	out.RelativeEnergy = 1 / (d * d)

	vRel := -in.Speed
	if in.SourcePosition < in.ObserverPosition {
		vRel = in.Speed
	}
	out.ObservedFrequency = ObservedFrequency(f0, c, vRel, 0)
	if fObs, ok := out.ObservedFrequency.Get(); ok {
		out.DeltaF = model.Applicable(fObs - f0)
		if f0 != 0 {
			out.DopplerCoeff = model.Applicable(fObs / f0)
		}
	}

	if theta, err := MachAngle(c, in.Speed); err == nil {
		out.MachAngleRad = model.Applicable(theta)
		out.MachAngleDeg = model.Applicable(theta * 180 / math.Pi)
	}
	return out
}

// minClosingSim keeps the supersonic closing speed away from zero.
const minClosingSim = 0.001

// timeToObserverPercent is the time in seconds for sound to cover the
// track distance in percent. Above c the closing speed is the source's
// excess over sound, both in track-percent per second.
func timeToObserverPercent(distancePct, speed, c, cSim float64) float64 {
	if cSim <= 0 || c <= 0 {
		return 0
	}
	if speed < c {
		return distancePct / cSim
	}
	speedSim := speed / c * cSim
	return distancePct / math.Max(speedSim-cSim, minClosingSim)
}
