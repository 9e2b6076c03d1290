package sim

import (
	"time"

	"github.com/signalsfoundry/doppler-simulator/model"
)

// MetricsRecorder receives engine counters and gauges. The observability
// package provides a Prometheus implementation.
type MetricsRecorder interface {
	ObserveTick(d time.Duration)
	IncWavefront(kind model.WaveKind)
	SetLiveWavefronts(n int)
	IncEchoScheduled(kind model.WaveKind)
	IncEchoFired(kind model.WaveKind)
	AddEchoesCancelled(n int)
	IncShockwave()
	IncClassChange(from, to model.VehicleClass)
	IncCollaboratorFailure(collaborator string)
	SetKinematics(speed, mach float64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(time.Duration)                             {}
func (noopMetrics) IncWavefront(model.WaveKind)                           {}
func (noopMetrics) SetLiveWavefronts(int)                                 {}
func (noopMetrics) IncEchoScheduled(model.WaveKind)                       {}
func (noopMetrics) IncEchoFired(model.WaveKind)                           {}
func (noopMetrics) AddEchoesCancelled(int)                                {}
func (noopMetrics) IncShockwave()                                         {}
func (noopMetrics) IncClassChange(model.VehicleClass, model.VehicleClass) {}
func (noopMetrics) IncCollaboratorFailure(string)                         {}
func (noopMetrics) SetKinematics(float64, float64)                        {}
