package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/doppler-simulator/model"
)

// SimCollector exposes simulation engine metrics and the request metrics of
// the gRPC control surface. It satisfies sim.MetricsRecorder.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Ticks                prometheus.Counter
	TickDuration         prometheus.Histogram
	WavefrontsEmitted    *prometheus.CounterVec
	WavefrontsLive       prometheus.Gauge
	EchoesScheduled      *prometheus.CounterVec
	EchoesFired          *prometheus.CounterVec
	EchoesCancelled      prometheus.Counter
	Shockwaves           prometheus.Counter
	ClassChanges         *prometheus.CounterVec
	CollaboratorFailures *prometheus.CounterVec
	SourceSpeed          prometheus.Gauge
	SourceMach           prometheus.Gauge

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewSimCollector registers engine metrics against the provided registerer.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SimCollector{gatherer: gatherer}
	var err error

	if c.Ticks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doppler_ticks_total",
		Help: "Number of engine ticks advanced.",
	})); err != nil {
		return nil, err
	}
	if c.TickDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "doppler_tick_duration_seconds",
		Help:    "Wall-clock time spent computing one engine tick.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})); err != nil {
		return nil, err
	}
	if c.WavefrontsEmitted, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doppler_wavefronts_emitted_total",
		Help: "Wavefronts added to the registry, labeled by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.WavefrontsLive, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "doppler_wavefronts_live",
		Help: "Wavefronts currently alive.",
	})); err != nil {
		return nil, err
	}
	if c.EchoesScheduled, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doppler_echoes_scheduled_total",
		Help: "Echoes scheduled, labeled by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.EchoesFired, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doppler_echoes_fired_total",
		Help: "Echoes that reached their fire time, labeled by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.EchoesCancelled, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doppler_echoes_cancelled_total",
		Help: "Pending echoes dropped by a state discontinuity.",
	})); err != nil {
		return nil, err
	}
	if c.Shockwaves, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doppler_shockwaves_total",
		Help: "Mach-cone crossings detected at the observer.",
	})); err != nil {
		return nil, err
	}
	if c.ClassChanges, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doppler_vehicle_class_changes_total",
		Help: "Vehicle class transitions, labeled by from and to class.",
	}, []string{"from", "to"})); err != nil {
		return nil, err
	}
	if c.CollaboratorFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doppler_collaborator_failures_total",
		Help: "Renderer and audio collaborator calls that returned an error or panicked.",
	}, []string{"collaborator"})); err != nil {
		return nil, err
	}
	if c.SourceSpeed, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "doppler_source_speed_mps",
		Help: "Current source speed in metres per second.",
	})); err != nil {
		return nil, err
	}
	if c.SourceMach, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "doppler_source_mach",
		Help: "Current source Mach number.",
	})); err != nil {
		return nil, err
	}
	if c.Requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doppler_rpc_requests_total",
		Help: "Control RPCs handled, labeled by method and gRPC status code.",
	}, []string{"method", "code"})); err != nil {
		return nil, err
	}
	if c.RequestDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "doppler_rpc_request_duration_seconds",
		Help:    "Control RPC latency in seconds, labeled by method.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.25, 1},
	}, []string{"method"})); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveTick counts a tick and records how long it took.
func (c *SimCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(d.Seconds())
}

func (c *SimCollector) IncWavefront(kind model.WaveKind) {
	if c == nil {
		return
	}
	c.WavefrontsEmitted.WithLabelValues(kind.String()).Inc()
}

func (c *SimCollector) SetLiveWavefronts(n int) {
	if c == nil {
		return
	}
	c.WavefrontsLive.Set(float64(n))
}

func (c *SimCollector) IncEchoScheduled(kind model.WaveKind) {
	if c == nil {
		return
	}
	c.EchoesScheduled.WithLabelValues(kind.String()).Inc()
}

func (c *SimCollector) IncEchoFired(kind model.WaveKind) {
	if c == nil {
		return
	}
	c.EchoesFired.WithLabelValues(kind.String()).Inc()
}

func (c *SimCollector) AddEchoesCancelled(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.EchoesCancelled.Add(float64(n))
}

func (c *SimCollector) IncShockwave() {
	if c == nil {
		return
	}
	c.Shockwaves.Inc()
}

func (c *SimCollector) IncClassChange(from, to model.VehicleClass) {
	if c == nil {
		return
	}
	c.ClassChanges.WithLabelValues(from.String(), to.String()).Inc()
}

func (c *SimCollector) IncCollaboratorFailure(collaborator string) {
	if c == nil {
		return
	}
	c.CollaboratorFailures.WithLabelValues(collaborator).Inc()
}

// SetKinematics updates the speed and Mach gauges.
func (c *SimCollector) SetKinematics(speed, mach float64) {
	if c == nil {
		return
	}
	c.SourceSpeed.Set(speed)
	c.SourceMach.Set(mach)
}
