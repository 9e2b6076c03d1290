package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/signalsfoundry/doppler-simulator/core"
	"github.com/signalsfoundry/doppler-simulator/internal/config"
	"github.com/signalsfoundry/doppler-simulator/model"
)

type fakeMetrics struct {
	noopMetrics
	wavefronts   map[model.WaveKind]int
	fired        map[model.WaveKind]int
	cancelled    int
	shockwaves   int
	classChanges int
	failures     map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		wavefronts: make(map[model.WaveKind]int),
		fired:      make(map[model.WaveKind]int),
		failures:   make(map[string]int),
	}
}

func (m *fakeMetrics) IncWavefront(k model.WaveKind)                         { m.wavefronts[k]++ }
func (m *fakeMetrics) IncEchoFired(k model.WaveKind)                         { m.fired[k]++ }
func (m *fakeMetrics) AddEchoesCancelled(n int)                              { m.cancelled += n }
func (m *fakeMetrics) IncShockwave()                                         { m.shockwaves++ }
func (m *fakeMetrics) IncClassChange(model.VehicleClass, model.VehicleClass) { m.classChanges++ }
func (m *fakeMetrics) IncCollaboratorFailure(name string)                    { m.failures[name]++ }

func newTestEngine(t *testing.T, mutate func(*config.Config), opts ...Option) *Engine {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return NewEngine(cfg, opts...)
}

func advanceFor(e *Engine, total, step time.Duration) Snapshot {
	var snap Snapshot
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		snap = e.Advance(context.Background(), step)
	}
	return snap
}

func TestEngineAssignsClassDefaultFrequencyOnFirstTick(t *testing.T) {
	e := newTestEngine(t, nil)

	snap := e.Advance(context.Background(), 10*time.Millisecond)
	if snap.VehicleClass != model.VehicleAmbulance {
		t.Fatalf("class at default speed = %v, want ambulance", snap.VehicleClass)
	}
	if snap.SourceFrequency != 2500 {
		t.Fatalf("frequency = %v, want ambulance default 2500", snap.SourceFrequency)
	}
}

func TestEngineManualFrequencySurvivesClassChange(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	if err := e.HandleInput(ctx, SetFrequency(900)); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if err := e.HandleInput(ctx, SetSpeed(60)); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	if got := e.State().VehicleClass; got != model.VehicleNone {
		t.Fatalf("class right after speed input = %v, want none until next tick", got)
	}

	snap := e.Advance(ctx, 10*time.Millisecond)
	if snap.VehicleClass != model.VehicleSport {
		t.Fatalf("class = %v, want sport", snap.VehicleClass)
	}
	if snap.SourceFrequency != 900 {
		t.Fatalf("manual frequency overwritten: got %v", snap.SourceFrequency)
	}

	if err := e.HandleInput(ctx, InputEvent{Kind: InputReset}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap = e.Advance(ctx, 10*time.Millisecond)
	if snap.ManualFrequencyOverride {
		t.Fatalf("reset kept the manual override")
	}
	if snap.SourceFrequency != 2500 || snap.Speed != 25 {
		t.Fatalf("after reset speed=%v frequency=%v, want 25 and 2500", snap.Speed, snap.SourceFrequency)
	}
}

func TestEngineSpeedInputReappliesClassDefault(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	e.Advance(ctx, 10*time.Millisecond)

	// Same class, but the speed input still resets the frequency to the
	// class default on the next tick.
	e.state.SourceFrequency = 1234
	if err := e.HandleInput(ctx, SetSpeed(30)); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	snap := e.Advance(ctx, 10*time.Millisecond)
	if snap.VehicleClass != model.VehicleAmbulance || snap.SourceFrequency != 2500 {
		t.Fatalf("class=%v frequency=%v, want ambulance at 2500", snap.VehicleClass, snap.SourceFrequency)
	}
}

func TestEngineInputFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		ev    InputEvent
		check func(State) bool
	}{
		{"nan speed", SetSpeed(math.NaN()), func(s State) bool { return s.Speed == 0 }},
		{"negative speed", SetSpeed(-5), func(s State) bool { return s.Speed == 0 }},
		{"huge speed", SetSpeed(1e308), func(s State) bool { return s.Speed == config.Default().MaxSpeed }},
		{"infinite frequency", SetFrequency(math.Inf(1)), func(s State) bool { return s.SourceFrequency == 400 && s.ManualFrequencyOverride }},
		{"zero frequency", SetFrequency(0), func(s State) bool { return s.SourceFrequency == 1 }},
		{"source beyond track", DragSource(150), func(s State) bool { return s.SourcePosition < 100 && s.SourcePosition > 99.99 }},
		{"observer before track", DragObserver(-3), func(s State) bool { return s.ObserverPosition == 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, nil)
			if err := e.HandleInput(context.Background(), tt.ev); err != nil {
				t.Fatalf("HandleInput: %v", err)
			}
			if s := e.State(); !tt.check(s) {
				t.Fatalf("unexpected state after %s: %+v", tt.name, s)
			}
		})
	}
}

func TestEngineRejectsUnknownInput(t *testing.T) {
	e := newTestEngine(t, nil)
	err := e.HandleInput(context.Background(), InputEvent{Kind: "teleport"})
	if !errors.Is(err, ErrUnknownInput) {
		t.Fatalf("HandleInput(teleport) = %v, want ErrUnknownInput", err)
	}
}

func TestEnginePauseStopsMotion(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	if err := e.HandleInput(ctx, InputEvent{Kind: InputPause}); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	before := e.State().SourcePosition
	snap := advanceFor(e, 100*time.Millisecond, 10*time.Millisecond)
	if snap.SourcePosition != before || snap.SimTime != 0 {
		t.Fatalf("paused engine moved: position %v -> %v, sim time %v", before, snap.SourcePosition, snap.SimTime)
	}

	if err := e.HandleInput(ctx, InputEvent{Kind: InputResume}); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	snap = e.Advance(ctx, 10*time.Millisecond)
	if snap.SourcePosition <= before {
		t.Fatalf("resumed engine did not move")
	}
}

func TestEngineMovesAndWraps(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.InitialSource = 99.9
		c.DefaultSpeed = 343
	})

	// 343 m/s at scale 1.5 covers 15 track-percent per second.
	snap := e.Advance(context.Background(), 10*time.Millisecond)
	if snap.SourcePosition < 0 || snap.SourcePosition >= 100 {
		t.Fatalf("position %v outside [0, 100)", snap.SourcePosition)
	}
	if !scalar.EqualWithinAbs(snap.SourcePosition, 0.05, 1e-9) {
		t.Fatalf("wrapped position = %v, want 0.05", snap.SourcePosition)
	}
}

func TestEngineClampsLongSteps(t *testing.T) {
	e := newTestEngine(t, nil)
	snap := e.Advance(context.Background(), 10*time.Second)
	if !scalar.EqualWithinAbs(snap.SimTime, 0.25, 1e-12) {
		t.Fatalf("sim time after long step = %v, want 0.25", snap.SimTime)
	}
	snap = e.AdvanceSeconds(context.Background(), math.NaN())
	if !scalar.EqualWithinAbs(snap.SimTime, 0.25, 1e-12) {
		t.Fatalf("NaN step advanced the clock to %v", snap.SimTime)
	}
}

func TestEngineEmissionPeriod(t *testing.T) {
	metrics := newFakeMetrics()
	e := newTestEngine(t, nil, WithMetrics(metrics))
	ctx := context.Background()

	// 1000 Hz with scale factor 1000 gives one wavefront per second.
	if err := e.HandleInput(ctx, SetFrequency(1000)); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	snap := advanceFor(e, 3*time.Second, 100*time.Millisecond)

	if got := metrics.wavefronts[model.WaveNormal]; got != 3 {
		t.Fatalf("normal wavefronts emitted = %d, want 3", got)
	}
	last := math.Inf(-1)
	for _, w := range snap.ActiveWavefronts {
		if w.EmissionTime < last {
			t.Fatalf("emission times not monotonic: %v after %v", w.EmissionTime, last)
		}
		last = w.EmissionTime
	}
}

func TestEngineReflectionFiresAfterTravelTime(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.InitialSource = 40
		c.DefaultSpeed = 10
	})
	ctx := context.Background()
	const step = time.Millisecond

	var pending []model.PendingEcho
	for i := 0; i < 1000 && len(pending) == 0; i++ {
		pending = e.Advance(ctx, step).PendingEchoes
	}
	if len(pending) != 2 {
		t.Fatalf("expected reflected and ripple echoes, got %+v", pending)
	}
	fireTime := pending[0].FireTime

	var reflected *model.Wavefront
	for i := 0; i < 1000 && reflected == nil; i++ {
		snap := e.Advance(ctx, step)
		for _, w := range snap.ActiveWavefronts {
			if w.Kind == model.WaveReflected {
				w := w
				reflected = &w
			}
		}
	}
	if reflected == nil {
		t.Fatalf("reflected wavefront never appeared")
	}
	if lag := reflected.EmissionTime - fireTime; lag < -1e-9 || lag > 1e-3+1e-9 {
		t.Fatalf("reflection fired %.6fs after its fire time, want within 1ms", lag)
	}
	if reflected.OriginPosition != 50 {
		t.Fatalf("reflected wavefront at %v, want observer position 50", reflected.OriginPosition)
	}
}

func TestEngineDiscontinuityCancelsEchoes(t *testing.T) {
	inputs := []InputEvent{
		SetSpeed(12),
		SetFrequency(2000),
		DragSource(30),
		DragObserver(70),
		{Kind: InputReset},
	}
	for _, ev := range inputs {
		t.Run(string(ev.Kind), func(t *testing.T) {
			metrics := newFakeMetrics()
			e := newTestEngine(t, func(c *config.Config) {
				c.InitialSource = 40
				c.DefaultSpeed = 10
			}, WithMetrics(metrics))
			ctx := context.Background()

			// Run until one echo pair has already fired and the next pair is
			// still pending.
			ready := func(s Snapshot) bool {
				return len(s.PendingEchoes) > 0 && s.CountKind(model.WaveReflected) > 0
			}
			for i := 0; i < 2000 && !ready(e.Snapshot()); i++ {
				e.Advance(ctx, time.Millisecond)
			}
			if !ready(e.Snapshot()) {
				t.Fatalf("never had fired and pending echoes at the same time")
			}
			firedBefore := metrics.fired[model.WaveReflected]

			if err := e.HandleInput(ctx, ev); err != nil {
				t.Fatalf("HandleInput: %v", err)
			}
			snap := e.Snapshot()
			if len(snap.PendingEchoes) != 0 {
				t.Fatalf("%d echoes still pending after %s", len(snap.PendingEchoes), ev.Kind)
			}
			if metrics.cancelled != 2 {
				t.Fatalf("cancelled = %d, want 2", metrics.cancelled)
			}
			for _, k := range []model.WaveKind{model.WaveReflected, model.WaveRipple, model.WaveShockwave} {
				if n := snap.CountKind(k); n != 0 {
					t.Fatalf("%d %s wavefronts survived %s", n, k, ev.Kind)
				}
			}

			// The cancelled echoes were due ~0.1s later; nothing new is
			// emitted within the next 0.2s.
			advanceFor(e, 200*time.Millisecond, time.Millisecond)
			if metrics.fired[model.WaveReflected] != firedBefore {
				t.Fatalf("cancelled echo fired")
			}
		})
	}
}

func TestEngineSupersonicSnapshot(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) { c.DefaultSpeed = 700 })

	snap := e.Advance(context.Background(), 10*time.Millisecond)
	if snap.VehicleClass != model.VehicleMissile {
		t.Fatalf("class = %v, want missile", snap.VehicleClass)
	}
	theta, ok := snap.MachAngle.Get()
	if !ok || snap.Cone == nil {
		t.Fatalf("expected a Mach cone at 700 m/s")
	}
	if deg := theta * 180 / math.Pi; !scalar.EqualWithinAbs(deg, 29.33, 0.1) {
		t.Fatalf("Mach angle = %.3f°, want 29.33°", deg)
	}
	if snap.Metrics.ObservedFrequency.Valid {
		t.Fatalf("observed frequency should be not applicable, got %v", snap.Metrics.ObservedFrequency)
	}
	if len(snap.PendingEchoes) != 0 {
		t.Fatalf("supersonic emission scheduled reflections: %+v", snap.PendingEchoes)
	}
}

func TestEngineAtSpeedOfSoundHasNoCone(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) { c.DefaultSpeed = 343 })
	snap := advanceFor(e, time.Second, 10*time.Millisecond)
	if snap.VehicleClass != model.VehicleJet {
		t.Fatalf("class = %v, want jet", snap.VehicleClass)
	}
	if snap.Cone != nil || snap.MachAngle.Valid {
		t.Fatalf("cone defined exactly at the speed of sound: %+v", snap.Cone)
	}
}

func TestEngineSnapshotTrackTimeToObserver(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.InitialSource = 30
		c.InitialObserver = 50
	})
	snap := e.Snapshot()
	// 20% of track at 100%/s with the default 343 m/s over 3.43 m/%.
	if !scalar.EqualWithinAbs(snap.Metrics.TimeToObserverPct, 0.2, 1e-9) {
		t.Fatalf("track time to observer = %v, want 0.2", snap.Metrics.TimeToObserverPct)
	}
}

func TestEngineFastNonConeClassDoesNotEmit(t *testing.T) {
	metrics := newFakeMetrics()
	// With c lowered to 30 m/s an ambulance at 35 m/s is past the speed of
	// sound without being a Mach-cone class.
	e := newTestEngine(t, func(c *config.Config) {
		c.SpeedOfSound = 30
		c.DefaultSpeed = 35
	}, WithMetrics(metrics))

	snap := advanceFor(e, 2*time.Second, 10*time.Millisecond)
	if snap.VehicleClass != model.VehicleAmbulance {
		t.Fatalf("class = %v, want ambulance", snap.VehicleClass)
	}
	if n := snap.CountKind(model.WaveNormal); n != 0 || metrics.wavefronts[model.WaveNormal] != 0 {
		t.Fatalf("emitted %d live / %d total normal wavefronts, want none", n, metrics.wavefronts[model.WaveNormal])
	}

	if err := e.HandleInput(context.Background(), SetSpeed(10)); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	advanceFor(e, 2*time.Second, 10*time.Millisecond)
	if metrics.wavefronts[model.WaveNormal] == 0 {
		t.Fatalf("subsonic source did not emit")
	}
}

func TestEngineShockwaveFiresOncePerCrossing(t *testing.T) {
	metrics := newFakeMetrics()
	cues := &countingCues{}
	// Mach 2 gives a 30° cone whose edge trails the source by ~26 %.
	e := newTestEngine(t, func(c *config.Config) { c.DefaultSpeed = 686 },
		WithMetrics(metrics), WithCuePlayer(cues))
	ctx := context.Background()

	// The source covers 30 %/s: it crosses the observer's proximity band at
	// about t=0.6s and wraps at about t=1.7s.
	var sawShockwave bool
	for elapsed := time.Duration(0); elapsed < 1500*time.Millisecond; elapsed += 10 * time.Millisecond {
		snap := e.Advance(ctx, 10*time.Millisecond)
		if snap.CountKind(model.WaveShockwave) > 0 {
			sawShockwave = true
		}
	}
	if metrics.shockwaves != 1 || cues.plays[CueShockwave] != 1 {
		t.Fatalf("shockwaves=%d cues=%d during one crossing, want 1", metrics.shockwaves, cues.plays[CueShockwave])
	}
	if !sawShockwave {
		t.Fatalf("zero-delay shockwave echo never materialized")
	}
	if !e.Snapshot().Shockwave.LastShockPosition.Valid {
		t.Fatalf("shockwave memory not recorded")
	}

	// Wrapping forgets the memory, so the next crossing fires again even
	// though fewer than five seconds have passed.
	snap := advanceFor(e, 500*time.Millisecond, 10*time.Millisecond)
	if snap.Shockwave.LastShockPosition.Valid {
		t.Fatalf("memory survived the wrap: %+v", snap.Shockwave)
	}
	advanceFor(e, 3*time.Second, 10*time.Millisecond)
	if metrics.shockwaves != 2 {
		t.Fatalf("shockwaves after second crossing = %d, want 2", metrics.shockwaves)
	}
}

func TestEngineLeavingSupersonicResetsShockMemory(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) { c.DefaultSpeed = 686 })
	ctx := context.Background()
	advanceFor(e, time.Second, 10*time.Millisecond)
	if !e.Snapshot().Shockwave.LastShockPosition.Valid {
		t.Fatalf("expected a recorded shockwave")
	}

	if err := e.HandleInput(ctx, SetSpeed(100)); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	snap := e.Advance(ctx, 10*time.Millisecond)
	if snap.Shockwave.LastShockPosition.Valid {
		t.Fatalf("memory kept after leaving the supersonic regime")
	}
}

type countingCues struct {
	plays map[Cue]int
}

func (c *countingCues) Play(_ context.Context, cue Cue) error {
	if c.plays == nil {
		c.plays = make(map[Cue]int)
	}
	c.plays[cue]++
	return nil
}

type failingTone struct{}

func (failingTone) SetTarget(context.Context, core.AudioTarget) error {
	panic("audio device gone")
}

func TestEngineSurvivesCollaboratorFailures(t *testing.T) {
	metrics := newFakeMetrics()
	renderErr := errors.New("canvas lost")
	var rendered int
	e := newTestEngine(t, nil,
		WithMetrics(metrics),
		WithRenderer(RendererFunc(func(context.Context, Snapshot) error {
			rendered++
			return renderErr
		})),
		WithToneGenerator(failingTone{}),
	)

	start := e.State().SourcePosition
	snap := advanceFor(e, 100*time.Millisecond, 10*time.Millisecond)

	if snap.Tick != 10 || rendered != 10 {
		t.Fatalf("tick=%d rendered=%d, want 10 each", snap.Tick, rendered)
	}
	if snap.SourcePosition <= start {
		t.Fatalf("engine stopped moving after collaborator failures")
	}
	if got := e.CollaboratorFailures(); got != 20 {
		t.Fatalf("CollaboratorFailures() = %d, want 20", got)
	}
	if metrics.failures[collaboratorRenderer] != 10 || metrics.failures[collaboratorTone] != 10 {
		t.Fatalf("failure counts = %v", metrics.failures)
	}
}

func TestEngineAudioTargetFollowsClass(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.DefaultSpeed = 10
		c.InitialSource = 48
	})
	snap := e.Advance(context.Background(), 10*time.Millisecond)
	if snap.Audio.Class != model.VehicleCar || snap.Audio.Phase != core.PhaseApproaching {
		t.Fatalf("audio target = %+v, want approaching car", snap.Audio)
	}
	if snap.Audio.Gain <= 0 {
		t.Fatalf("gain within earshot = %v, want > 0", snap.Audio.Gain)
	}

	jet := newTestEngine(t, func(c *config.Config) { c.DefaultSpeed = 200 })
	if snap := jet.Advance(context.Background(), 10*time.Millisecond); !snap.Audio.Silent() {
		t.Fatalf("jet should have a silent continuous target, got %+v", snap.Audio)
	}
}
