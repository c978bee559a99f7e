package tuiapp

// uiState is the part of the screen that receives key presses.
type uiState int

const (
	focusAircraft uiState = iota // aircraft table, enter selects the own aircraft
	focusAlerts                  // alert table, acknowledge and remove
	focusSearch                  // search input, typing edits the filter
)

// next cycles between the two tables. The search input is only entered with '/'.
func (s uiState) next() uiState {
	if s == focusAircraft {
		return focusAlerts
	}

	return focusAircraft
}
