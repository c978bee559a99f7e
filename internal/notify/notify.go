// Package notify delivers alert side effects to the operator: an audio cue chosen by severity and
// a spoken announcement of the alert text.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/micutio/aerosync/internal/alert"
)

const (
	// appIconPath is the file path to the icon png for this application.
	appIconPath = "./assets/icon.png"
	// announcementTitle is shown above spoken alert texts.
	announcementTitle = "aerosync"
)

// cue is one tone of an audio cue.
type cue struct {
	frequency float64 // [Hz]
	duration  int     // [ms]
	repeat    int
}

// cues maps a severity to its tone; higher severities are higher pitched and repeated.
var cues = map[alert.Severity]cue{ //nolint:gochecknoglobals // lookup table
	alert.SeverityLow:      {frequency: 440, duration: 150, repeat: 1},
	alert.SeverityMedium:   {frequency: 660, duration: 200, repeat: 1},
	alert.SeverityHigh:     {frequency: 880, duration: 200, repeat: 2},
	alert.SeverityCritical: {frequency: 1320, duration: 250, repeat: 3},
}

// Desktop plays cues on the system speaker and shows spoken texts as desktop notifications.
// beeep has no speech synthesis, so the announcement is a notification carrying the same text.
type Desktop struct {
	mu     sync.Mutex
	beep   func(freq float64, duration int) error
	notify func(title, message string) error
	pause  time.Duration
}

func NewDesktop(appName string) *Desktop {
	beeep.AppName = appName //nolint:reassign // This is the only way to set app name in beeep.
	return &Desktop{
		mu:     sync.Mutex{},
		beep:   func(freq float64, duration int) error { return beeep.Beep(freq, duration) },
		notify: func(title, message string) error { return beeep.Notify(title, message, appIconPath) },
		pause:  100 * time.Millisecond, //nolint:mnd // gap between repeated tones
	}
}

// Cue plays the tone for the severity. Concurrent cues are played one after another.
func (d *Desktop) Cue(severity alert.Severity) error {
	c, ok := cues[severity]
	if !ok {
		return fmt.Errorf("Cue: %w: %d", alert.ErrInvalidSeverity, int(severity))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range c.repeat {
		if i > 0 {
			time.Sleep(d.pause)
		}
		if err := d.beep(c.frequency, c.duration); err != nil {
			return fmt.Errorf("Cue: %w", err)
		}
	}

	return nil
}

// Speak announces the text.
func (d *Desktop) Speak(text string) error {
	if err := d.notify(announcementTitle, text); err != nil {
		return fmt.Errorf("Speak: %w", err)
	}

	return nil
}

// Log only writes the side effects to the log. The ticker uses it when desktop output is off.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}

	return &Log{logger: logger}
}

func (l *Log) Cue(severity alert.Severity) error {
	l.logger.Info("audio cue", "severity", severity.String())
	return nil
}

func (l *Log) Speak(text string) error {
	l.logger.Info("announcement", "text", text)
	return nil
}
