package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. The event scheduler
// and the engine depend on it rather than on a concrete clock so tests can
// drive time explicitly.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// ManualClock is a SimClock that only moves when told to. The engine owns
// one and advances it by each tick's dt, so simulated time is independent of
// wall-clock jitter.
type ManualClock struct {
	mu    sync.RWMutex
	start time.Time
	now   time.Time
}

// NewManualClock returns a clock positioned at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{start: start, now: start}
}

// Now implements SimClock.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Elapsed returns the simulated time since the clock was created.
func (c *ManualClock) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now.Sub(c.start)
}

// Mode describes how the TimeController paces ticks.
type Mode int

const (
	// RealTime waits for wall-clock ticks and reports the true elapsed time
	// between them as dt.
	RealTime Mode = iota
	// Accelerated runs as quickly as the loop can and reports a fixed dt of
	// Tick per step.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TickFunc receives the simulation time reached and the step that led to it.
type TickFunc func(simTime time.Time, dt time.Duration)

// TimeController drives simulation time and notifies registered listeners.
// It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// currentTime tracks the current simulation time. It is updated
	// as the controller advances time.
	currentTime time.Time

	listeners []TickFunc

	// wallNow is replaceable in tests.
	wallNow func() time.Time
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
		wallNow:     time.Now,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime overrides the current simulation time.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked on every tick. Listeners run on
// the controller goroutine, one after another.
func (tc *TimeController) AddListener(fn TickFunc) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified duration of simulation time
// (zero means until ctx is cancelled) in a separate goroutine. It returns a
// channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.mu.Unlock()

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Tick)
			defer ticker.Stop()
		}

		elapsed := time.Duration(0)
		lastWall := tc.wallNow()

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			dt := tc.Tick
			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				now := tc.wallNow()
				dt = now.Sub(lastWall)
				lastWall = now
			} else if ctx.Err() != nil {
				return
			}
			if duration > 0 && elapsed+dt > duration {
				dt = duration - elapsed
			}

			simTime = simTime.Add(dt)
			elapsed += dt

			tc.mu.Lock()
			tc.currentTime = simTime
			listeners := append([]TickFunc(nil), tc.listeners...)
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(simTime, dt)
			}
		}
	}()
	return done
}
