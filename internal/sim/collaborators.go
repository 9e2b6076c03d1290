package sim

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/doppler-simulator/core"
	"github.com/signalsfoundry/doppler-simulator/internal/logging"
)

// Renderer draws a snapshot. It never mutates engine state.
type Renderer interface {
	Render(ctx context.Context, snap Snapshot) error
}

// ToneGenerator ramps a continuous tone towards an audio target.
type ToneGenerator interface {
	SetTarget(ctx context.Context, target core.AudioTarget) error
}

// Cue names a one-shot sound.
type Cue string

// CueShockwave is played when the Mach cone crosses the observer.
const CueShockwave Cue = "shockwave"

// CuePlayer plays one-shot sounds.
type CuePlayer interface {
	Play(ctx context.Context, cue Cue) error
}

// Collaborator names used in logs and metrics.
const (
	collaboratorRenderer = "renderer"
	collaboratorTone     = "tone_generator"
	collaboratorCue      = "cue_player"
)

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, snap Snapshot) error

func (f RendererFunc) Render(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

// callCollaborator invokes fn and turns both returned errors and panics into
// a logged, counted failure. The engine keeps running either way.
func (e *Engine) callCollaborator(ctx context.Context, name string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}
	e.collaboratorFailures++
	e.metrics.IncCollaboratorFailure(name)
	e.log.Warn(ctx, "collaborator failed",
		logging.String("collaborator", name),
		logging.Err(err),
	)
}
