package alert

import (
	"fmt"
	"log/slog"

	"github.com/micutio/aerosync/internal/config"
)

// Notifier plays the audio cue for a severity and reads alert text out loud.
// Implementations may block; the pipeline never waits for them.
type Notifier interface {
	Cue(severity Severity) error
	Speak(text string) error
}

const (
	sideEffectCue    = "cue"
	sideEffectSpeech = "speech"
)

// dispatch fires the enabled side effects, each in its own goroutine.
func (p *Pipeline) dispatch(a Alert, settings config.Settings) {
	if p.notifier == nil || a.Acknowledged {
		return
	}

	if settings.SoundEnabled {
		go p.sideEffect(sideEffectCue, a.ID, func() error { return p.notifier.Cue(a.Severity) })
	}

	if settings.SpeechEnabled {
		go p.sideEffect(sideEffectSpeech, a.ID, func() error { return p.notifier.Speak(a.SpeechText()) })
	}
}

func (p *Pipeline) sideEffect(kind, alertID string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("notifier panicked", "kind", kind, "alert", alertID, slog.Any("panic", r))
			p.recorder.NotifierFailed(kind)
		}
	}()

	if err := fn(); err != nil {
		p.logger.Warn("notifier failed", "kind", kind, "alert", alertID, slog.Any("error", err))
		p.recorder.NotifierFailed(kind)
	}
}

// NotifierFunc adapts two functions to a Notifier. Nil functions are no-ops.
type NotifierFunc struct {
	CueFunc   func(Severity) error
	SpeakFunc func(string) error
}

func (n NotifierFunc) Cue(severity Severity) error {
	if n.CueFunc == nil {
		return nil
	}

	if err := n.CueFunc(severity); err != nil {
		return fmt.Errorf("Cue: %w", err)
	}

	return nil
}

func (n NotifierFunc) Speak(text string) error {
	if n.SpeakFunc == nil {
		return nil
	}

	if err := n.SpeakFunc(text); err != nil {
		return fmt.Errorf("Speak: %w", err)
	}

	return nil
}
