// Package sched provides a logical priority queue of callbacks keyed by
// simulation time. Nothing here touches the wall clock: events become due
// when the SimClock they are bound to is advanced past their fire time.
package sched

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/doppler-simulator/timectrl"
)

// EventScheduler schedules callbacks to run at specific simulation times
// based on a SimClock implementation.
//
// The engine loop advances its clock and then calls RunDue; callbacks run
// synchronously inside RunDue on the caller's goroutine.
type EventScheduler interface {
	// Schedule registers a callback f to run at simulation time 'at'.
	// It returns an opaque cancel token.
	Schedule(at time.Time, f func()) (token string)

	// Cancel attempts to cancel a previously scheduled event. It reports
	// whether an event was cancelled; unknown or already-run tokens are a
	// no-op.
	Cancel(token string) bool

	// CancelAll cancels every outstanding event and returns how many there
	// were.
	CancelAll() int

	// Pending returns the number of outstanding events.
	Pending() int

	// Now returns the current simulation time of the underlying SimClock.
	Now() time.Time

	// RunDue executes all events whose scheduled time is <= Now(), in time
	// order, and returns how many ran. Events scheduled by a callback run in
	// the same call if they are already due.
	RunDue() int
}

// scheduledEvent represents a single scheduled callback.
type scheduledEvent struct {
	token     string
	when      time.Time
	f         func()
	cancelled bool
}

// eventScheduler stores events ordered by scheduled time, ties broken by
// insertion order.
type eventScheduler struct {
	clock timectrl.SimClock

	mu     sync.Mutex
	events []*scheduledEvent // ordered by when, then insertion
	index  map[string]*scheduledEvent
}

// NewEventScheduler creates a new event scheduler backed by the given SimClock.
func NewEventScheduler(clock timectrl.SimClock) EventScheduler {
	return &eventScheduler{
		clock: clock,
		index: make(map[string]*scheduledEvent),
	}
}

// Schedule registers a callback to run at the specified simulation time.
func (s *eventScheduler) Schedule(at time.Time, f func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := &scheduledEvent{
		token: uuid.NewString(),
		when:  at,
		f:     f,
	}
	s.addEventLocked(ev)
	s.index[ev.token] = ev
	return ev.token
}

// addEventLocked inserts an event keeping the slice ordered.
// Caller must hold s.mu lock.
func (s *eventScheduler) addEventLocked(ev *scheduledEvent) {
	// Events sharing a fire time keep insertion order, so search for the
	// first event strictly after ev.when.
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(ev.when)
	})

	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
}

// Cancel attempts to cancel a previously scheduled event.
func (s *eventScheduler) Cancel(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[token]
	if !ok {
		return false
	}
	ev.cancelled = true
	delete(s.index, token)
	// Removal from s.events is lazy; RunDue skips cancelled events.
	return true
}

// CancelAll cancels every outstanding event.
func (s *eventScheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.index)
	for _, ev := range s.events {
		ev.cancelled = true
	}
	s.events = s.events[:0]
	s.index = make(map[string]*scheduledEvent)
	return n
}

// Pending returns the number of outstanding events.
func (s *eventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Now returns the current simulation time from the underlying clock.
func (s *eventScheduler) Now() time.Time {
	return s.clock.Now()
}

// popNextLocked removes and returns the earliest non-cancelled due event, or
// nil if none is due. Caller must hold s.mu lock.
func (s *eventScheduler) popNextLocked(now time.Time) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if ev.when.After(now) {
			// Ordered by time, so everything after this is in the future too.
			return nil
		}
		s.events = s.events[1:]
		return ev
	}
	return nil
}

// RunDue executes all events whose scheduled time is <= Now().
func (s *eventScheduler) RunDue() int {
	ran := 0
	for {
		s.mu.Lock()
		ev := s.popNextLocked(s.clock.Now())
		if ev == nil {
			s.mu.Unlock()
			return ran
		}
		delete(s.index, ev.token)
		s.mu.Unlock()

		// Execute the callback outside the lock so it may schedule or cancel.
		if ev.f != nil {
			ev.f()
		}
		ran++
	}
}
