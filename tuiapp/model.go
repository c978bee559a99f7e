package tuiapp

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/link"
	"github.com/micutio/aerosync/internal/track"
)

const (
	headerHeight = 6
	footerHeight = 2
	searchLimit  = 32
)

// model implements the bubbletea.Model interface, which requires three methods:
// - Init() Cmd
// - Update(Msg) (Model, Cmd)
// - View() string
// This forms the base for the TUI app.
type model struct {
	appName string
	core    core
	logger  *slog.Logger
	now     func() time.Time

	width      int
	height     int
	baseStyle  lipgloss.Style
	viewStyle  lipgloss.Style
	theme      Theme
	tableStyle table.Styles

	aircraftTbl autoFormatTable
	alertTbl    autoFormatTable
	search      textinput.Model
	focus       uiState

	// tracks and alerts are in the same order as the rows of their tables.
	tracks      []track.Track
	alerts      []alert.Alert
	status      link.Status
	unacked     int
	lastRefresh time.Time
	// flash is the feedback of the last command, shown in the footer.
	flash string
}

func newModel(appName string, c core, logger *slog.Logger) *model {
	theme := newDefaultTheme()
	tableStyle := table.DefaultStyles()
	tableStyle.Selected = lipgloss.NewStyle().Background(theme.Highlight)

	search := textinput.New()
	search.Prompt = "search: "
	search.Placeholder = "call sign, registration, type or operator"
	search.CharLimit = searchLimit

	m := &model{ //nolint:exhaustruct // the rest is filled by refresh
		appName:     appName,
		core:        c,
		logger:      logger,
		now:         time.Now,
		baseStyle:   lipgloss.NewStyle(),
		viewStyle:   lipgloss.NewStyle(),
		theme:       theme,
		tableStyle:  tableStyle,
		aircraftTbl: newAircraftTable(tableStyle),
		alertTbl:    newAlertTable(tableStyle),
		search:      search,
		focus:       focusAircraft,
	}
	m.refresh()

	return m
}

// Init starts the periodic refresh.
func (m *model) Init() tea.Cmd {
	return refreshTick()
}

// Update takes a tea.Msg as input and uses a type switch to handle different types of messages.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) { //nolint:ireturn // required by interface
	switch thisMsg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = thisMsg.Height
		m.width = thisMsg.Width
		m.layout()

	case tea.KeyMsg:
		return m, m.handleKey(thisMsg)

	case LinkCommandMsg:
		if thisMsg.err != nil {
			m.flash = fmt.Sprintf("%s failed: %v", thisMsg.command, thisMsg.err)
		}
		m.refresh()

	case RefreshTickMsg:
		if expired := m.core.ExpireStale(); len(expired) > 0 {
			m.logger.Debug("removed stale aircraft", "ids", expired)
		}
		m.refresh()
		return m, refreshTick()
	}

	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.focus == focusSearch {
		return m.handleSearchKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case "tab":
		m.setFocus(m.focus.next())
	case "/":
		m.setFocus(focusSearch)
		return m.search.Focus()
	case "enter":
		m.selectAircraft()
	case "esc":
		m.core.ClearSelection()
		m.flash = "selection cleared"
	case "a":
		m.acknowledge()
	case "A":
		m.flash = fmt.Sprintf("acknowledged %d alerts", m.core.AcknowledgeAll())
	case "x":
		m.removeAlert()
	case "c":
		return linkCommand("connect", m.core.Connect)
	case "d":
		return linkCommand("disconnect", m.core.Disconnect)
	case "r":
		return linkCommand("reconnect", m.core.Reconnect)
	default:
		var cmd tea.Cmd
		if m.focus == focusAlerts {
			m.alertTbl.table, cmd = m.alertTbl.table.Update(msg)
		} else {
			m.aircraftTbl.table, cmd = m.aircraftTbl.table.Update(msg)
		}
		return cmd
	}

	m.refresh()
	return nil
}

func (m *model) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit
	case "esc":
		m.search.SetValue("")
		m.setFocus(focusAircraft)
	case "enter", "tab":
		m.setFocus(focusAircraft)
	default:
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.refresh()
		return cmd
	}

	m.refresh()
	return nil
}

func (m *model) setFocus(focus uiState) {
	m.focus = focus
	m.aircraftTbl.table.Blur()
	m.alertTbl.table.Blur()
	m.search.Blur()

	switch focus {
	case focusAircraft:
		m.aircraftTbl.table.Focus()
	case focusAlerts:
		m.alertTbl.table.Focus()
	case focusSearch:
	}
}

func (m *model) selectAircraft() {
	if m.focus != focusAircraft || len(m.tracks) == 0 {
		return
	}

	selected := m.tracks[m.aircraftTbl.table.Cursor()]
	if err := m.core.Select(selected.ID); err != nil {
		m.flash = err.Error()
		return
	}
	m.flash = "own aircraft: " + selected.String()
}

func (m *model) cursorAlert() (alert.Alert, bool) {
	if m.focus != focusAlerts || len(m.alerts) == 0 {
		return alert.Alert{}, false //nolint:exhaustruct // empty
	}

	return m.alerts[m.alertTbl.table.Cursor()], true
}

func (m *model) acknowledge() {
	a, ok := m.cursorAlert()
	if !ok {
		return
	}

	if err := m.core.Acknowledge(a.ID); err != nil {
		m.flash = err.Error()
		return
	}
	m.flash = "acknowledged: " + a.Title
}

func (m *model) removeAlert() {
	a, ok := m.cursorAlert()
	if !ok {
		return
	}

	if err := m.core.RemoveAlert(a.ID); err != nil && !errors.Is(err, alert.ErrAlertNotFound) {
		m.flash = err.Error()
		return
	}
	m.flash = "removed: " + a.Title
}

// refresh pulls a new snapshot from the session into the tables.
func (m *model) refresh() {
	m.lastRefresh = m.now()
	m.status = m.core.Status()
	m.unacked = m.core.UnacknowledgedAlerts()

	filter := m.core.Settings().Filter
	if search := m.search.Value(); search != "" {
		filter.Search = search
	}
	m.tracks = m.core.Tracks(filter)

	var own *track.Track
	if t, ok := m.core.Selected(); ok {
		own = &t
	}

	aircraftRows := make([]table.Row, 0, len(m.tracks))
	for _, t := range m.tracks {
		aircraftRows = append(aircraftRows, trackToRow(t, own))
	}
	m.aircraftTbl.setRows(aircraftRows)

	m.alerts = m.core.Alerts()
	alertRows := make([]table.Row, 0, len(m.alerts))
	for _, a := range m.alerts {
		alertRows = append(alertRows, alertToRow(a, m.lastRefresh))
	}
	m.alertTbl.setRows(alertRows)
}

// layout gives two thirds of the free height to the aircraft and the rest to the alerts.
func (m *model) layout() {
	for _, t := range []*autoFormatTable{&m.aircraftTbl, &m.alertTbl} {
		if err := t.resize(m.width); err != nil {
			m.logger.Error("unable to resize table", slog.Any("error", err))
		}
	}

	free := max(m.height-headerHeight-footerHeight-4, 2) //nolint:mnd // two table headers and borders
	aircraftRows := free * 2 / 3                         //nolint:mnd // two thirds
	m.aircraftTbl.SetHeight(aircraftRows)
	m.alertTbl.SetHeight(free - aircraftRows)
}

func (m *model) View() string {
	column := m.baseStyle.Width(m.width).Render

	return m.baseStyle.
		Width(m.width).
		Height(m.height).
		Render(
			lipgloss.JoinVertical(lipgloss.Left,
				column(m.viewHeader()),
				column(m.search.View()),
				column(m.viewTable(m.aircraftTbl, m.focus == focusAircraft)),
				column(m.viewTable(m.alertTbl, m.focus == focusAlerts)),
				column(m.viewFooter()),
			),
		)
}

func (m *model) viewHeader() string {
	listHeader := m.baseStyle.Bold(true).Render
	listItem := func(key string, value string) string {
		return fmt.Sprintf("%s %s  ", m.baseStyle.Render(key+":"), value)
	}

	state := m.baseStyle.Bold(true).Foreground(m.theme.stateColor(m.status)).Render(m.status.State.String())
	if m.status.Fatal {
		state += m.baseStyle.Foreground(m.theme.Red).Render(" (gave up, press r)")
	}

	heartbeat := "never"
	if !m.status.LastHeartbeat.IsZero() {
		heartbeat = formatAge(m.lastRefresh.Sub(m.status.LastHeartbeat)) + " ago"
	}

	own := "none (enter to select)"
	if t, ok := m.core.Selected(); ok {
		own = t.String()
	}

	lastError := m.status.ErrorString()
	if lastError == "" {
		lastError = "-"
	}

	return m.viewStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			listHeader(m.appName),
			lipgloss.JoinHorizontal(lipgloss.Left,
				listItem("link", state),
				listItem("attempts", fmt.Sprintf("%d", m.status.ReconnectAttempts)),
				listItem("heartbeat", heartbeat),
			),
			listItem("error", lastError),
			lipgloss.JoinHorizontal(lipgloss.Left,
				listItem("aircraft", fmt.Sprintf("%d", len(m.tracks))),
				listItem("alerts", fmt.Sprintf("%d (%d new)", len(m.alerts), m.unacked)),
			),
			listItem("own", own),
		),
	)
}

func (m *model) viewTable(t autoFormatTable, focused bool) string {
	border := m.theme.Border
	if focused {
		border = m.theme.Highlight
	}

	return m.viewStyle.
		Border(lipgloss.NormalBorder()).
		BorderForeground(border).
		Render(t.table.View())
}

func (m *model) viewFooter() string {
	help := m.baseStyle.Foreground(m.theme.Secondary).Render(
		"tab focus • enter select • esc clear • / search • a ack • A ack all • x remove • " +
			"c connect • d disconnect • r reconnect • q quit")

	return lipgloss.JoinVertical(lipgloss.Left, m.flash, help)
}
