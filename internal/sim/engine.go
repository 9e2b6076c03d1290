package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/doppler-simulator/core"
	"github.com/signalsfoundry/doppler-simulator/internal/config"
	"github.com/signalsfoundry/doppler-simulator/internal/logging"
	"github.com/signalsfoundry/doppler-simulator/internal/sched"
	"github.com/signalsfoundry/doppler-simulator/model"
	"github.com/signalsfoundry/doppler-simulator/timectrl"
)

const tracerName = "github.com/signalsfoundry/doppler-simulator/internal/sim"

// simEpoch is the wall-clock instant the simulated clock starts from. Only
// differences from it are meaningful.
var simEpoch = time.Unix(0, 0).UTC()

// Engine advances a single source/observer pair on a simulated clock.
//
// Engine is not safe for concurrent use. Callers own it on one goroutine
// and interleave Advance and HandleInput; see Runner.
type Engine struct {
	cfg     config.Config
	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer

	renderer Renderer
	tone     ToneGenerator
	cues     CuePlayer

	clock       *timectrl.ManualClock
	state       State
	audio       *core.AudioModel
	registry    *WavefrontRegistry
	emission    *WaveEmissionScheduler
	reflections *ReflectionScheduler
	shock       *ShockwaveDetector

	// classPending forces the class default frequency on the next tick even
	// when the class is unchanged.
	classPending bool
	// tickClass is the class assigned by the last tick.
	tickClass  model.VehicleClass
	supersonic bool
	tick       uint64

	collaboratorFailures int
}

// Option customises Engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer used for input spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithRenderer attaches a renderer that receives every tick's snapshot.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithToneGenerator attaches the continuous-tone audio collaborator.
func WithToneGenerator(g ToneGenerator) Option {
	return func(e *Engine) { e.tone = g }
}

// WithCuePlayer attaches the one-shot sound collaborator.
func WithCuePlayer(p CuePlayer) Option {
	return func(e *Engine) { e.cues = p }
}

// NewEngine builds an engine in the initial state described by cfg. cfg must
// already be valid; see config.Config.Validate.
func NewEngine(cfg config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		log:     logging.Noop(),
		metrics: noopMetrics{},
		tracer:  otel.Tracer(tracerName),
		clock:   timectrl.NewManualClock(simEpoch),
		audio: &core.AudioModel{
			SpeedOfSound:        cfg.SpeedOfSound,
			MetersPerPercent:    cfg.MetersPerPercent,
			MinDistance:         cfg.MinDistance,
			SilenceThreshold:    cfg.SilenceThreshold,
			AtObserverTolerance: 1e-9,
		},
		registry: NewWavefrontRegistry(cfg.MaxWavefronts, cfg.WaveLifetime),
		emission: NewWaveEmissionScheduler(cfg.FrequencyScaleFactor, 0),
		shock: &ShockwaveDetector{
			SpeedOfSound:         cfg.SpeedOfSound,
			ConeWidth:            cfg.ConeWidth,
			ProximityThreshold:   cfg.ProximityThreshold,
			MinShockwaveInterval: cfg.MinShockwaveInterval,
		},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.reflections = NewReflectionScheduler(
		sched.NewEventScheduler(e.clock),
		ReflectionConfig{
			SpeedOfSound:     cfg.SpeedOfSound,
			MetersPerPercent: cfg.MetersPerPercent,
			MaxDelay:         cfg.WaveLifetime * cfg.ReflectionWindow,
		},
		e.materializeEcho,
	)
	e.resetState()
	return e
}

func (e *Engine) resetState() {
	e.state = State{
		SourcePosition:   wrapPosition(e.cfg.InitialSource),
		ObserverPosition: wrapPosition(e.cfg.InitialObserver),
		Speed:            sanitizeSpeed(e.cfg.DefaultSpeed, e.cfg.MaxSpeed),
		SourceFrequency:  sanitizeFrequency(e.cfg.DefaultFrequency, e.cfg.DefaultFrequency, e.cfg.MinFrequency),
		VehicleClass:     model.VehicleNone,
	}
	e.classPending = true
	e.tickClass = model.VehicleNone
	e.supersonic = false
}

// SimTime returns the simulated seconds elapsed since the engine started.
func (e *Engine) SimTime() float64 {
	return e.clock.Elapsed().Seconds()
}

// State returns a copy of the kinematic state.
func (e *Engine) State() State {
	return e.state
}

// CollaboratorFailures returns how many collaborator calls have failed.
func (e *Engine) CollaboratorFailures() int {
	return e.collaboratorFailures
}

// Advance moves the simulation forward by dt and returns the resulting
// snapshot. Negative steps count as zero and steps longer than the
// configured maximum are clipped. A paused engine does not move.
func (e *Engine) Advance(ctx context.Context, dt time.Duration) Snapshot {
	return e.AdvanceSeconds(ctx, dt.Seconds())
}

// AdvanceSeconds is Advance for a step given in seconds. Non-finite steps
// count as zero.
func (e *Engine) AdvanceSeconds(ctx context.Context, dt float64) Snapshot {
	if e.state.Paused {
		return e.Snapshot()
	}
	started := time.Now()

	step := clampStep(dt, e.cfg.MaxTick.Std().Seconds())
	e.clock.Advance(secondsToDuration(step))
	e.tick++
	now := e.SimTime()

	e.move(ctx, step)
	e.reclassify(ctx)

	active := e.shock.Active(e.state.Speed, e.state.VehicleClass)
	if !active && e.supersonic {
		e.shock.Reset()
	}
	e.supersonic = active

	e.emit(now)
	if active {
		e.detectShockwave(ctx, now)
	}

	e.reflections.RunDue()
	e.registry.Expire(now)

	snap := e.Snapshot()
	e.metrics.SetLiveWavefronts(len(snap.ActiveWavefronts))
	e.metrics.SetKinematics(e.state.Speed, snap.Metrics.MachNumber)
	e.publish(ctx, snap)
	e.metrics.ObserveTick(time.Since(started))
	return snap
}

func clampStep(dt, max float64) float64 {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return 0
	}
	return math.Min(dt, max)
}

func (e *Engine) move(ctx context.Context, dt float64) {
	s := &e.state
	s.SourcePosition += (s.Speed / e.cfg.SpeedOfSound) * dt * 10 * e.cfg.PositionScale
	if s.SourcePosition >= trackLength {
		s.SourcePosition = wrapPosition(s.SourcePosition)
		e.shock.Reset()
		e.log.Debug(ctx, "source wrapped", logging.Float64("source_position", s.SourcePosition))
	}
}

func (e *Engine) reclassify(ctx context.Context) {
	s := &e.state
	class := core.Classify(s.Speed)
	if class == s.VehicleClass && !e.classPending {
		return
	}
	s.VehicleClass = class
	e.classPending = false

	if class != e.tickClass {
		e.metrics.IncClassChange(e.tickClass, class)
		e.log.Info(ctx, "vehicle class changed",
			logging.String("from", e.tickClass.String()),
			logging.String("to", class.String()),
			logging.Float64("speed", s.Speed),
		)
		e.tickClass = class
	}
	if def := core.Profile(class).DefaultFrequency; def > 0 && !s.ManualFrequencyOverride {
		s.SourceFrequency = def
	}
}

func (e *Engine) emit(now float64) {
	s := e.state
	// At or above c only the Mach-cone classes emit.
	if s.Speed >= e.cfg.SpeedOfSound && !e.shock.Active(s.Speed, s.VehicleClass) {
		return
	}
	if !e.emission.Due(now, s.SourceFrequency) {
		return
	}
	w, _ := e.registry.Add(model.WaveNormal, s.SourcePosition, now)
	e.emission.Mark(now)
	e.metrics.IncWavefront(model.WaveNormal)

	if s.Speed >= e.cfg.SpeedOfSound {
		return
	}
	for _, echo := range e.reflections.ScheduleReflection(now, w.OriginPosition, s.ObserverPosition, s.SourcePosition) {
		e.metrics.IncEchoScheduled(echo.Kind)
	}
}

func (e *Engine) detectShockwave(ctx context.Context, now float64) {
	s := e.state
	cone, ok := e.shock.ConeAt(s.SourcePosition, s.Speed)
	if !ok {
		return
	}
	if !e.shock.Evaluate(cone, s.ObserverPosition, now) {
		return
	}
	echo := e.reflections.ScheduleShockwave(now, cone.Edge, s.ObserverPosition, s.SourcePosition)
	e.metrics.IncShockwave()
	e.metrics.IncEchoScheduled(echo.Kind)
	e.log.Info(ctx, "shockwave fired",
		logging.Float64("sim_time", now),
		logging.Float64("source_position", s.SourcePosition),
		logging.Float64("edge_position", cone.Edge),
		logging.Float64("observer_position", s.ObserverPosition),
	)
	if e.cues != nil {
		e.callCollaborator(ctx, collaboratorCue, func() error {
			return e.cues.Play(ctx, CueShockwave)
		})
	}
}

// materializeEcho turns a fired echo into a wavefront.
func (e *Engine) materializeEcho(echo model.PendingEcho) {
	e.registry.Add(echo.Kind, echo.EchoPosition, e.SimTime())
	e.metrics.IncWavefront(echo.Kind)
	e.metrics.IncEchoFired(echo.Kind)
}

func (e *Engine) publish(ctx context.Context, snap Snapshot) {
	if e.renderer != nil {
		e.callCollaborator(ctx, collaboratorRenderer, func() error {
			return e.renderer.Render(ctx, snap)
		})
	}
	if e.tone != nil {
		e.callCollaborator(ctx, collaboratorTone, func() error {
			return e.tone.SetTarget(ctx, snap.Audio)
		})
	}
}

// HandleInput applies a user input event. Events that change the speed,
// the frequency or either position cancel every pending echo and remove the
// echo wavefronts already drawn before HandleInput returns.
func (e *Engine) HandleInput(ctx context.Context, ev InputEvent) error {
	ctx, span := e.tracer.Start(ctx, "sim.HandleInput", trace.WithAttributes(
		attribute.String("input.kind", string(ev.Kind)),
		attribute.Float64("input.value", ev.Value),
	))
	defer span.End()

	s := &e.state
	switch ev.Kind {
	case InputSetSpeed:
		s.Speed = sanitizeSpeed(ev.Value, e.cfg.MaxSpeed)
		s.VehicleClass = model.VehicleNone
		e.classPending = true
	case InputSetFrequency:
		s.SourceFrequency = sanitizeFrequency(ev.Value, e.cfg.DefaultFrequency, e.cfg.MinFrequency)
		s.ManualFrequencyOverride = true
	case InputDragSource:
		s.SourcePosition = wrapPosition(clampTrack(ev.Value))
	case InputDragObserver:
		s.ObserverPosition = wrapPosition(clampTrack(ev.Value))
	case InputPause:
		s.Paused = true
	case InputResume:
		s.Paused = false
	case InputReset:
		e.registry.Clear()
		e.shock.Reset()
		e.emission.Reset(e.SimTime())
		e.resetState()
	default:
		err := fmt.Errorf("%w: %q", ErrUnknownInput, ev.Kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if ev.Kind.Mutating() {
		e.invalidateEchoes(ctx, ev.Kind)
	}
	e.log.Debug(ctx, "input applied",
		logging.String("kind", string(ev.Kind)),
		logging.Float64("value", ev.Value),
	)
	return nil
}

// invalidateEchoes cancels every pending echo and removes rendered echo
// artefacts. Their positions were captured before the discontinuity.
func (e *Engine) invalidateEchoes(ctx context.Context, cause InputKind) {
	cancelled := e.reflections.CancelAll()
	cleared := e.registry.ClearKinds(model.WaveReflected, model.WaveRipple, model.WaveShockwave)
	e.metrics.AddEchoesCancelled(cancelled)
	e.metrics.SetLiveWavefronts(e.registry.Len())
	e.log.Debug(ctx, "pending echoes cancelled",
		logging.String("cause", string(cause)),
		logging.Int("cancelled", cancelled),
		logging.Int("cleared", cleared),
	)
}

// Snapshot returns the current view of the engine. Derived values are
// computed from the current state, so a snapshot taken right after an input
// already reflects it.
func (e *Engine) Snapshot() Snapshot {
	s := e.state
	snap := Snapshot{
		Tick:             e.tick,
		SimTime:          e.SimTime(),
		State:            s,
		Shockwave:        e.shock.Memory(),
		MarkerScale:      core.Profile(s.VehicleClass).MarkerScale,
		ActiveWavefronts: e.registry.Active(),
		PendingEchoes:    e.reflections.Pending(),
		Audio:            e.audio.Update(s.VehicleClass, s.SourcePosition, s.ObserverPosition, s.Speed, e.SimTime()),
		Metrics: core.ComputeDisplayMetrics(core.MetricsInput{
			SourcePosition:   s.SourcePosition,
			ObserverPosition: s.ObserverPosition,
			Speed:            s.Speed,
			SourceFrequency:  s.SourceFrequency,
			SpeedOfSound:     e.cfg.SpeedOfSound,
			MetersPerPercent: e.cfg.MetersPerPercent,
			SpeedOfSoundSim:  e.cfg.SpeedOfSoundSim(),
		}),
	}
	if e.shock.Active(s.Speed, s.VehicleClass) {
		if cone, ok := e.shock.ConeAt(s.SourcePosition, s.Speed); ok {
			snap.Cone = &cone
			snap.MachAngle = model.Applicable(cone.AngleRad)
		}
	}
	return snap
}
