package sim

import (
	"math"
	"sort"
	"time"

	"github.com/signalsfoundry/doppler-simulator/internal/sched"
	"github.com/signalsfoundry/doppler-simulator/model"
)

// ReflectionScheduler turns emitted wavefronts and shockwave crossings into
// delayed echo events on the simulated clock.
//
// Every pending echo is tracked by its cancel token so a discontinuity in the
// state can drop all of them at once. Echoes fire from RunDue on the engine
// goroutine.
type ReflectionScheduler struct {
	events sched.EventScheduler

	speedOfSound     float64
	metersPerPercent float64
	// maxDelay gates subsonic echoes; 0 schedules every echo.
	maxDelay float64

	seq     uint64
	pending map[string]pendingEntry
	onFire  func(model.PendingEcho)
}

type pendingEntry struct {
	seq  uint64
	echo model.PendingEcho
}

// ReflectionConfig holds the physical constants used to compute echo delays.
type ReflectionConfig struct {
	SpeedOfSound     float64
	MetersPerPercent float64
	// MaxDelay is the longest delay, in seconds, for which a reflection is
	// still scheduled. Zero disables the limit.
	MaxDelay float64
}

// NewReflectionScheduler creates a scheduler on top of events. onFire is
// invoked for each echo when it becomes due.
func NewReflectionScheduler(events sched.EventScheduler, cfg ReflectionConfig, onFire func(model.PendingEcho)) *ReflectionScheduler {
	if onFire == nil {
		onFire = func(model.PendingEcho) {}
	}
	return &ReflectionScheduler{
		events:           events,
		speedOfSound:     cfg.SpeedOfSound,
		metersPerPercent: cfg.MetersPerPercent,
		maxDelay:         cfg.MaxDelay,
		pending:          make(map[string]pendingEntry),
		onFire:           onFire,
	}
}

// Delay returns the travel time in seconds from emission to observer.
func (r *ReflectionScheduler) Delay(emission, observer float64) float64 {
	return math.Abs(observer-emission) * r.metersPerPercent / r.speedOfSound
}

// ScheduleReflection schedules the reflected echo and its ripple for a
// wavefront emitted at emission. now is the current simulated time in
// seconds. It returns the scheduled echoes, or nil when the wavefront would
// expire before reaching the observer.
func (r *ReflectionScheduler) ScheduleReflection(now, emission, observer, source float64) []model.PendingEcho {
	delay := r.Delay(emission, observer)
	if r.maxDelay > 0 && delay > r.maxDelay {
		return nil
	}
	at := r.events.Now().Add(secondsToDuration(delay))
	out := make([]model.PendingEcho, 0, 2)
	for _, kind := range []model.WaveKind{model.WaveReflected, model.WaveRipple} {
		out = append(out, r.schedule(at, model.PendingEcho{
			Kind:                       kind,
			FireTime:                   now + delay,
			ObserverPositionAtSchedule: observer,
			SourcePositionAtSchedule:   source,
			EchoPosition:               observer,
		}))
	}
	return out
}

// ScheduleShockwave schedules a zero-delay shockwave echo placed at the cone
// edge.
func (r *ReflectionScheduler) ScheduleShockwave(now, edge, observer, source float64) model.PendingEcho {
	return r.schedule(r.events.Now(), model.PendingEcho{
		Kind:                       model.WaveShockwave,
		FireTime:                   now,
		ObserverPositionAtSchedule: observer,
		SourcePositionAtSchedule:   source,
		EchoPosition:               edge,
	})
}

func (r *ReflectionScheduler) schedule(at time.Time, echo model.PendingEcho) model.PendingEcho {
	var token string
	token = r.events.Schedule(at, func() { r.fire(token) })
	echo.CancelToken = token
	r.seq++
	r.pending[token] = pendingEntry{seq: r.seq, echo: echo}
	return echo
}

func (r *ReflectionScheduler) fire(token string) {
	entry, ok := r.pending[token]
	if !ok {
		return
	}
	delete(r.pending, token)
	r.onFire(entry.echo)
}

// Cancel drops a single pending echo. Cancelling an echo that already fired
// is a no-op.
func (r *ReflectionScheduler) Cancel(token string) bool {
	if _, ok := r.pending[token]; !ok {
		return false
	}
	delete(r.pending, token)
	return r.events.Cancel(token)
}

// CancelAll drops every pending echo and returns how many there were.
func (r *ReflectionScheduler) CancelAll() int {
	n := len(r.pending)
	r.events.CancelAll()
	r.pending = make(map[string]pendingEntry)
	return n
}

// RunDue fires every echo whose time has come and returns how many fired.
func (r *ReflectionScheduler) RunDue() int {
	return r.events.RunDue()
}

// PendingCount returns the number of outstanding echoes.
func (r *ReflectionScheduler) PendingCount() int {
	return len(r.pending)
}

// Pending returns the outstanding echoes ordered by fire time.
func (r *ReflectionScheduler) Pending() []model.PendingEcho {
	entries := make([]pendingEntry, 0, len(r.pending))
	for _, e := range r.pending {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].echo.FireTime != entries[j].echo.FireTime {
			return entries[i].echo.FireTime < entries[j].echo.FireTime
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]model.PendingEcho, len(entries))
	for i, e := range entries {
		out[i] = e.echo
	}
	return out
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
