package sim

import (
	"errors"
	"fmt"
	"strings"
)

// InputKind names a user input event.
type InputKind string

const (
	InputSetSpeed     InputKind = "set_speed"
	InputSetFrequency InputKind = "set_frequency"
	InputDragSource   InputKind = "drag_source"
	InputDragObserver InputKind = "drag_observer"
	InputPause        InputKind = "pause"
	InputResume       InputKind = "resume"
	InputReset        InputKind = "reset"
)

var inputKinds = map[InputKind]bool{
	InputSetSpeed:     true,
	InputSetFrequency: true,
	InputDragSource:   true,
	InputDragObserver: true,
	InputPause:        true,
	InputResume:       true,
	InputReset:        true,
}

var (
	// ErrUnknownInput indicates an input event of an unsupported kind.
	ErrUnknownInput = errors.New("unknown input kind")
	// ErrMissingValue indicates a value-carrying input without a value.
	ErrMissingValue = errors.New("input value is required")
)

// InputEvent is a single user interaction. Value is the new speed (m/s),
// frequency (Hz) or position (track-percent) and is ignored by pause, resume
// and reset.
type InputEvent struct {
	Kind  InputKind `json:"kind"`
	Value float64   `json:"value,omitempty"`
}

// SetSpeed returns a speed input event.
func SetSpeed(v float64) InputEvent { return InputEvent{Kind: InputSetSpeed, Value: v} }

// SetFrequency returns a frequency input event.
func SetFrequency(f float64) InputEvent { return InputEvent{Kind: InputSetFrequency, Value: f} }

// DragSource returns a source drag event.
func DragSource(p float64) InputEvent { return InputEvent{Kind: InputDragSource, Value: p} }

// DragObserver returns an observer drag event.
func DragObserver(p float64) InputEvent { return InputEvent{Kind: InputDragObserver, Value: p} }

// NeedsValue reports whether the event kind carries a value.
func (k InputKind) NeedsValue() bool {
	switch k {
	case InputSetSpeed, InputSetFrequency, InputDragSource, InputDragObserver:
		return true
	default:
		return false
	}
}

// Mutating reports whether the event changes a founding value of the
// derived artefacts, which invalidates every pending echo.
func (k InputKind) Mutating() bool {
	return k.NeedsValue() || k == InputReset
}

// ParseInput builds an InputEvent from a kind name and an optional value.
// Kind names are case-insensitive and may use '-' instead of '_'.
func ParseInput(kind string, value *float64) (InputEvent, error) {
	k := InputKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(kind)), "-", "_"))
	if !inputKinds[k] {
		return InputEvent{}, fmt.Errorf("%w: %q", ErrUnknownInput, kind)
	}
	ev := InputEvent{Kind: k}
	if k.NeedsValue() {
		if value == nil {
			return InputEvent{}, fmt.Errorf("%w: %s", ErrMissingValue, k)
		}
		ev.Value = *value
	}
	return ev, nil
}
