// Package tuiapp provides the TUI app which shows the live traffic picture and the alerts,
// updates continuously and can be interacted with.
// Layout:
// +-------------------------------------------------+
// | connection state, attempts, last heartbeat      |
// | tracks, open alerts, own aircraft               |
// | search: ...                                     |
// |  ______________________________________________ |
// | | aircraft table                               | |
// | | ...                                          | |
// |  ---------------------------------------------- |
// |  ______________________________________________ |
// | | alert table                                  | |
// | | ...                                          | |
// |  ---------------------------------------------- |
// | key help                                        |
// +-------------------------------------------------+
// .
package tuiapp

import (
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/config"
	"github.com/micutio/aerosync/internal/link"
	"github.com/micutio/aerosync/internal/session"
	"github.com/micutio/aerosync/internal/track"
)

// core is the part of the session the screen works with.
type core interface {
	Tracks(filter track.Filter) []track.Track
	Selected() (track.Track, bool)
	Select(id string) error
	ClearSelection()
	ExpireStale() []string

	Alerts() []alert.Alert
	UnacknowledgedAlerts() int
	Acknowledge(id string) error
	AcknowledgeAll() int
	RemoveAlert(id string) error

	Settings() config.Settings
	Status() link.Status
	Connect() error
	Disconnect() error
	Reconnect() error
}

// Run starts the session, connects and blocks until the user quits.
func Run(
	appName string,
	cfg config.Config,
	transport link.Transport,
	notifier alert.Notifier,
	logger *slog.Logger,
	opts ...session.Option,
) error {
	sess, err := session.New(cfg, transport, notifier, append(opts, session.WithLogger(logger))...)
	if err != nil {
		return fmt.Errorf("tuiapp.Run: %w", err)
	}
	defer func() {
		if err := sess.Shutdown(); err != nil {
			logger.Warn("session shutdown", slog.Any("error", err))
		}
	}()

	if err := sess.Connect(); err != nil {
		return fmt.Errorf("tuiapp.Run: %w", err)
	}

	p := tea.NewProgram(newModel(appName, sess, logger), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tuiapp.Run: %w", err)
	}

	return nil
}

type Theme struct {
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Green     lipgloss.AdaptiveColor
	Yellow    lipgloss.AdaptiveColor
	Red       lipgloss.AdaptiveColor
}

func newDefaultTheme() Theme {
	return Theme{
		Primary:   lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"},
		Secondary: lipgloss.AdaptiveColor{Light: "#969B86", Dark: "#696969"},
		Highlight: lipgloss.AdaptiveColor{Light: "#8b2def", Dark: "#8b2def"},
		Border:    lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"},
		Green:     lipgloss.AdaptiveColor{Light: "#008000", Dark: "#00FF00"},
		Yellow:    lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFD700"},
		Red:       lipgloss.AdaptiveColor{Light: "#FF0000", Dark: "#FF0000"},
	}
}

// stateColor maps the connection state to the header color.
func (t Theme) stateColor(status link.Status) lipgloss.AdaptiveColor {
	switch {
	case status.Fatal:
		return t.Red
	case status.State == link.StateConnected:
		return t.Green
	case status.State == link.StateDisconnected:
		return t.Secondary
	default:
		return t.Yellow
	}
}
