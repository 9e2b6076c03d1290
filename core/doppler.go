package core

import (
	"errors"
	"math"

	"github.com/signalsfoundry/doppler-simulator/model"
)

var (
	// ErrZeroFrequency is returned when a wavelength is requested for a
	// source that does not oscillate.
	ErrZeroFrequency = errors.New("source frequency must be non-zero")
	// ErrNoMachCone is returned when a Mach angle is requested for a source
	// that is not faster than sound.
	ErrNoMachCone = errors.New("mach cone requires source speed above the speed of sound")
)

// Wavelength returns λ = c/f in metres.
func Wavelength(f, c float64) (float64, error) {
	if f == 0 {
		return 0, ErrZeroFrequency
	}
	return c / f, nil
}

// ObservedFrequency returns the classical Doppler-shifted frequency
//
//	f' = f0 * (c + vObs) / (c - vRel)
//
// where vRel is positive while the source approaches the observer and vObs is
// positive while the observer moves towards the source. Once |vRel| reaches c
// the formula stops describing anything audible and the result is
// model.NotApplicable.
func ObservedFrequency(f0, c, vRel, vObs float64) model.Reading {
	if math.Abs(vRel) >= c {
		return model.NotApplicable
	}
	return model.Applicable(f0 * (c + vObs) / (c - vRel))
}

// MachAngle returns the half-angle of the Mach cone, asin(c/v), in radians.
func MachAngle(c, v float64) (float64, error) {
	if !(v > c) || c <= 0 {
		return 0, ErrNoMachCone
	}
	return math.Asin(c / v), nil
}

// MachNumber returns v/c.
func MachNumber(v, c float64) float64 {
	if c == 0 {
		return 0
	}
	return v / c
}

// SourceVelocity solves the stationary-observer Doppler equation for the
// source speed that turns f0 into fObs.
func SourceVelocity(f0, fObs, c float64) float64 {
	return c * (1 - f0/fObs)
}

// ObserverVelocity solves the stationary-source Doppler equation for the
// observer speed that turns f0 into fObs.
func ObserverVelocity(f0, fObs, c float64) float64 {
	return c * (fObs/f0 - 1)
}

// Redshift is the fractional frequency drop (fObs - f0) / f0.
func Redshift(f0, fObs float64) float64 {
	return (fObs - f0) / f0
}

// Blueshift is the fractional frequency rise (f0 - fObs) / f0.
func Blueshift(f0, fObs float64) float64 {
	return (f0 - fObs) / f0
}
