package pipeline

import (
	"context"
	"time"

	"github.com/bobarin/gigi/internal/config"
)

// Pause names a GPU recovery wait between two remote calls.
type Pause string

const (
	PauseAfterI2V        Pause = "after_i2v"
	PauseAfterAudio      Pause = "after_audio"
	PauseBetweenScenes   Pause = "between_scenes"
	PauseAfterBackground Pause = "after_background_image"
	PauseAfterCharacter  Pause = "after_character_image"
	PauseAfterEdit       Pause = "after_image_edit"
)

// Throttle decides how long to hold off before the next GPU-bound call.
// The generation services expose no readiness signal, so the default just sleeps;
// a poll-until-ready implementation can replace it without touching the pipeline.
type Throttle interface {
	Wait(ctx context.Context, p Pause) error
}

// FixedThrottle sleeps a configured duration per pause.
type FixedThrottle struct {
	delays config.Delays
}

func NewFixedThrottle(delays config.Delays) *FixedThrottle {
	return &FixedThrottle{delays: delays}
}

func (t *FixedThrottle) Duration(p Pause) time.Duration {
	switch p {
	case PauseAfterI2V:
		return t.delays.AfterI2V
	case PauseAfterAudio:
		return t.delays.AfterAudio
	case PauseBetweenScenes:
		return t.delays.BetweenScenes
	case PauseAfterBackground:
		return t.delays.AfterBackgroundImage
	case PauseAfterCharacter:
		return t.delays.AfterCharacterImage
	case PauseAfterEdit:
		return t.delays.AfterImageEdit
	default:
		return 0
	}
}

func (t *FixedThrottle) Wait(ctx context.Context, p Pause) error {
	d := t.Duration(p)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoThrottle never waits. Used by tests and the dry-run CLI.
type NoThrottle struct{}

func (NoThrottle) Wait(ctx context.Context, _ Pause) error {
	return ctx.Err()
}
