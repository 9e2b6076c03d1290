package sched

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/doppler-simulator/timectrl"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestEventScheduler_SingleEvent(t *testing.T) {
	clock := timectrl.NewManualClock(testStart)
	sched := NewEventScheduler(clock)

	var counter int
	t1 := testStart.Add(10 * time.Second)

	token := sched.Schedule(t1, func() {
		counter++
	})
	if token == "" {
		t.Fatalf("Schedule returned empty token")
	}

	// Call RunDue at t0 - event should not run yet
	if ran := sched.RunDue(); ran != 0 || counter != 0 {
		t.Fatalf("expected nothing to run before time advance, ran=%d counter=%d", ran, counter)
	}

	clock.Advance(t1.Sub(testStart))
	if ran := sched.RunDue(); ran != 1 || counter != 1 {
		t.Fatalf("expected one run after time advance, ran=%d counter=%d", ran, counter)
	}

	// RunDue again - event should not run twice
	sched.RunDue()
	if counter != 1 {
		t.Fatalf("expected counter=1 after second RunDue (event should not run twice), got %d", counter)
	}
}

func TestEventScheduler_MultipleEventsInOrder(t *testing.T) {
	clock := timectrl.NewManualClock(testStart)
	sched := NewEventScheduler(clock)

	var order []string
	sched.Schedule(testStart.Add(3*time.Second), func() { order = append(order, "c") })
	sched.Schedule(testStart.Add(1*time.Second), func() { order = append(order, "a") })
	sched.Schedule(testStart.Add(2*time.Second), func() { order = append(order, "b1") })
	sched.Schedule(testStart.Add(2*time.Second), func() { order = append(order, "b2") })

	clock.Advance(5 * time.Second)
	sched.RunDue()

	if diff := cmp.Diff([]string{"a", "b1", "b2", "c"}, order); diff != "" {
		t.Fatalf("execution order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventScheduler_Cancel(t *testing.T) {
	clock := timectrl.NewManualClock(testStart)
	sched := NewEventScheduler(clock)

	var ran bool
	token := sched.Schedule(testStart.Add(time.Second), func() { ran = true })

	if !sched.Cancel(token) {
		t.Fatalf("Cancel returned false for a pending event")
	}
	if sched.Cancel(token) {
		t.Fatalf("second Cancel should be a no-op")
	}

	clock.Advance(2 * time.Second)
	sched.RunDue()
	if ran {
		t.Fatalf("cancelled event ran")
	}
}

func TestEventScheduler_CancelAfterFireIsNoop(t *testing.T) {
	clock := timectrl.NewManualClock(testStart)
	sched := NewEventScheduler(clock)

	token := sched.Schedule(testStart, func() {})
	sched.RunDue()

	if sched.Cancel(token) {
		t.Fatalf("Cancel after fire reported a cancellation")
	}
	if sched.Cancel("unknown-token") {
		t.Fatalf("Cancel of unknown token reported a cancellation")
	}
}

func TestEventScheduler_CancelAll(t *testing.T) {
	clock := timectrl.NewManualClock(testStart)
	sched := NewEventScheduler(clock)

	var ran int
	for i := 1; i <= 5; i++ {
		sched.Schedule(testStart.Add(time.Duration(i)*time.Second), func() { ran++ })
	}
	if got := sched.Pending(); got != 5 {
		t.Fatalf("Pending() = %d, want 5", got)
	}

	if n := sched.CancelAll(); n != 5 {
		t.Fatalf("CancelAll() = %d, want 5", n)
	}
	if got := sched.Pending(); got != 0 {
		t.Fatalf("Pending() after CancelAll = %d, want 0", got)
	}

	clock.Advance(10 * time.Second)
	sched.RunDue()
	if ran != 0 {
		t.Fatalf("%d events ran after CancelAll", ran)
	}
}

func TestEventScheduler_CallbackCanScheduleDueEvent(t *testing.T) {
	clock := timectrl.NewManualClock(testStart)
	sched := NewEventScheduler(clock)

	var order []string
	sched.Schedule(testStart, func() {
		order = append(order, "outer")
		sched.Schedule(testStart, func() { order = append(order, "inner") })
	})

	if ran := sched.RunDue(); ran != 2 {
		t.Fatalf("RunDue() = %d, want 2", ran)
	}
	if diff := cmp.Diff([]string{"outer", "inner"}, order); diff != "" {
		t.Fatalf("execution order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventScheduler_TokensAreUnique(t *testing.T) {
	sched := NewEventScheduler(timectrl.NewManualClock(testStart))
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := sched.Schedule(testStart, nil)
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}
