package sim

// WaveEmissionScheduler decides when the source emits its next normal
// wavefront. The emission period is scaleFactor/frequency seconds, so the
// animation stays readable at audible frequencies.
type WaveEmissionScheduler struct {
	scaleFactor float64
	last        float64
}

// NewWaveEmissionScheduler returns a scheduler whose last emission is at
// start.
func NewWaveEmissionScheduler(scaleFactor, start float64) *WaveEmissionScheduler {
	return &WaveEmissionScheduler{scaleFactor: scaleFactor, last: start}
}

// Period returns the emission period in simulated seconds for frequency.
func (s *WaveEmissionScheduler) Period(frequency float64) float64 {
	return 1 / (frequency / s.scaleFactor)
}

// Due reports whether a wavefront should be emitted at now.
func (s *WaveEmissionScheduler) Due(now, frequency float64) bool {
	return now-s.last >= s.Period(frequency)
}

// Mark records an emission at now. Emission times never go backwards.
func (s *WaveEmissionScheduler) Mark(now float64) {
	if now > s.last {
		s.last = now
	}
}

// Last returns the time of the most recent emission.
func (s *WaveEmissionScheduler) Last() float64 {
	return s.last
}

// Reset restarts the period count at now.
func (s *WaveEmissionScheduler) Reset(now float64) {
	s.last = now
}
