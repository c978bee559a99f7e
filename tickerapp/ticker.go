package tickerapp

import (
	"log/slog"
	"time"

	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/link"
	"github.com/micutio/aerosync/internal/track"
)

// staleSweepInterval is how often tracks without updates are looked for.
const staleSweepInterval = 5 * time.Second

// core is the part of the session the ticker works with.
type core interface {
	Tracks(filter track.Filter) []track.Track
	Alerts() []alert.Alert
	ExpireStale() []string
}

// ticker runs the periodic work of the ticker app until done is closed.
type ticker struct {
	core            core
	notify          *Notify
	logger          *slog.Logger
	sweepInterval   time.Duration
	summaryInterval time.Duration
}

func (t *ticker) run(done <-chan struct{}) {
	sweepTicker := time.NewTicker(t.sweepInterval)
	defer sweepTicker.Stop()

	summaryTicker := time.NewTicker(t.summaryInterval)
	defer summaryTicker.Stop()

	for {
		select {
		case <-sweepTicker.C:
			if expired := t.core.ExpireStale(); len(expired) > 0 {
				t.logger.Info("removed stale aircraft", "count", len(expired), "ids", expired)
			}
		case at := <-summaryTicker.C:
			t.notify.PrintSummary(at, t.core.Tracks(track.Filter{}), t.core.Alerts()) //nolint:exhaustruct // no filter
		case <-done:
			t.logger.Info("stopping ticker")
			return
		}
	}
}

// statusFilter forwards a status only when the state, the attempt count or the fatal flag changed,
// so heartbeat acknowledgements do not print a line each.
type statusFilter struct {
	last    link.Status
	started bool
	next    func(link.Status)
}

func (f *statusFilter) observe(status link.Status) {
	changed := !f.started ||
		status.State != f.last.State ||
		status.ReconnectAttempts != f.last.ReconnectAttempts ||
		status.Fatal != f.last.Fatal
	f.last = status
	f.started = true

	if changed {
		f.next(status)
	}
}
