package tuiapp

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// refreshInterval is how often the screen pulls a new snapshot from the session.
const refreshInterval = time.Second

type RefreshTickMsg time.Time

func refreshTick() tea.Cmd {
	return tea.Every(
		refreshInterval,
		func(t time.Time) tea.Msg {
			return RefreshTickMsg(t)
		},
	)
}

// LinkCommandMsg reports the outcome of a connect, disconnect or reconnect request.
type LinkCommandMsg struct {
	command string
	err     error
}

func linkCommand(command string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return LinkCommandMsg{command: command, err: fn()}
	}
}
