package tuiapp

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/micutio/aerosync/internal"
	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/track"
)

// Error types

var errColumnMismatch = errors.New("number of columns does not match number of format columns")

// Automated Table Formatting

type tableColumnSizingOption int

const (
	// fixed column width, regardless of table width.
	fixed tableColumnSizingOption = iota
	// relative column with, given as percentage of the total table width.
	relative
	// fill columns receive any remaining table space, evenly distributed.
	fill
)

type columnFormat struct {
	option tableColumnSizingOption
	value  float32
}

type tableFormat struct {
	columnSizes        []columnFormat
	fixedWidth         int     // fixedWidth is the total space taken up by all fixed-width columns.
	fillWidthCount     int     // fillWidthCount indicates how many columns have fill width.
	totalRelativeWidth float32 // how much width is taken by relative columns.
}

func newTableFormat(items ...columnFormat) tableFormat {
	var totalRelativeWidth float32
	fixedWidth := 0
	fillWidthCount := 0

	for _, item := range items {
		switch item.option {
		case relative:
			totalRelativeWidth += item.value
		case fixed:
			fixedWidth += int(item.value)
		case fill:
			fillWidthCount++
		}
	}

	return tableFormat{
		columnSizes:        items,
		fixedWidth:         fixedWidth,
		fillWidthCount:     fillWidthCount,
		totalRelativeWidth: totalRelativeWidth,
	}
}

// Integrated Formatted Table Type

const cellPadding = 1

type autoFormatTable struct {
	table  table.Model
	format tableFormat
}

func (aft *autoFormatTable) resize(newWidth int) error {
	columnCount := len(aft.table.Columns())
	if columnCount != len(aft.format.columnSizes) {
		return fmt.Errorf(
			"table.resize: %w -> %d in table, %d in tableFormat",
			errColumnMismatch,
			columnCount,
			len(aft.format.columnSizes))
	}

	adjustedWidth := newWidth - 1 - columnCount
	aft.table.SetWidth(adjustedWidth)
	totalRelativeWidth := int(float32(adjustedWidth) * aft.format.totalRelativeWidth)
	totalFillWidth := adjustedWidth - totalRelativeWidth - aft.format.fixedWidth
	fillPerColumn := 0
	if aft.format.fillWidthCount > 0 {
		fillPerColumn = max(totalFillWidth/aft.format.fillWidthCount, 0)
	}

	// Every cell carries one column of padding on top of its width.
	columns := aft.table.Columns()
	for idx := range columnCount {
		format := aft.format.columnSizes[idx]
		switch format.option {
		case fixed:
			columns[idx].Width = max(int(format.value)-cellPadding, 0)
		case relative:
			columns[idx].Width = max(int(format.value*float32(adjustedWidth))-cellPadding, 0)
		case fill:
			columns[idx].Width = max(fillPerColumn-cellPadding, 0)
		}
	}
	aft.table.SetColumns(columns)

	return nil
}

func (aft *autoFormatTable) SetHeight(height int) {
	aft.table.SetHeight(height)
}

// setRows replaces the rows and keeps the cursor inside the table.
func (aft *autoFormatTable) setRows(rows []table.Row) {
	aft.table.SetRows(rows)
	if aft.table.Cursor() >= len(rows) {
		aft.table.SetCursor(max(len(rows)-1, 0))
	}
}

const (
	distLen     = 7
	callsignLen = 9
	idLen       = 8
	typeLen     = 5
	altLen      = 7
	spdLen      = 5
	emgLen      = 10
	initialRows = 5
)

func newAircraftTable(tableStyle table.Styles) autoFormatTable {
	format := newTableFormat(
		columnFormat{fixed, float32(distLen)},
		columnFormat{fixed, float32(callsignLen)},
		columnFormat{fixed, float32(idLen)},
		columnFormat{fixed, float32(typeLen)},
		columnFormat{fill, 0.0},
		columnFormat{fixed, float32(altLen)},
		columnFormat{fixed, float32(spdLen)},
		columnFormat{fixed, float32(spdLen)},
		columnFormat{fixed, float32(emgLen)},
	)

	aircraftTbl := table.New(
		table.WithColumns(
			[]table.Column{
				{Title: "DST", Width: distLen},
				{Title: "FNO", Width: callsignLen},
				{Title: "ID", Width: idLen},
				{Title: "TID", Width: typeLen},
				{Title: "OPR", Width: 0},
				{Title: "ALT", Width: altLen},
				{Title: "SPD", Width: spdLen},
				{Title: "HDG", Width: spdLen},
				{Title: "EMG", Width: emgLen},
			},
		),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(initialRows),
		table.WithStyles(tableStyle),
	)

	return autoFormatTable{
		table:  aircraftTbl,
		format: format,
	}
}

const (
	sevLen = 9
	catLen = 19
	ackLen = 3
	ageLen = 6
)

func newAlertTable(tableStyle table.Styles) autoFormatTable {
	format := newTableFormat(
		columnFormat{fixed, float32(sevLen)},
		columnFormat{fixed, float32(catLen)},
		columnFormat{fixed, float32(ackLen)},
		columnFormat{fixed, float32(ageLen)},
		columnFormat{fill, 0.0},
	)

	alertTbl := table.New(
		table.WithColumns(
			[]table.Column{
				{Title: "SEV", Width: sevLen},
				{Title: "CAT", Width: catLen},
				{Title: "ACK", Width: ackLen},
				{Title: "AGE", Width: ageLen},
				{Title: "ALERT", Width: 0},
			},
		),
		table.WithRows([]table.Row{}),
		table.WithFocused(false),
		table.WithHeight(initialRows),
		table.WithStyles(tableStyle),
	)

	return autoFormatTable{
		table:  alertTbl,
		format: format,
	}
}

// trackToRow renders a track. The distance column is relative to the selected track, if any.
func trackToRow(t track.Track, own *track.Track) table.Row {
	dist := "    -"
	if own != nil && own.HasPosition && t.HasPosition {
		if own.ID == t.ID {
			dist = "  own"
		} else {
			d := internal.Haversine(
				internal.NewCoordinates(own.Latitude, own.Longitude),
				internal.NewCoordinates(t.Latitude, t.Longitude))
			dist = fmt.Sprintf("%5.1f", d.NauticalMiles())
		}
	}

	emergency := ""
	if t.IsEmergency() {
		emergency = t.Emergency
	}

	return table.Row{
		dist,
		t.CallsignString(),
		t.ID,
		t.AircraftType,
		t.Operator,
		t.AltitudeString(),
		fmt.Sprintf("%3.0f", t.Velocity),
		fmt.Sprintf("%3.0f", t.Heading),
		emergency,
	}
}

func alertToRow(a alert.Alert, now time.Time) table.Row {
	ack := ""
	if a.Acknowledged {
		ack = " ✓"
	}

	text := a.Title
	if a.Message != "" {
		text += ": " + a.Message
	}

	return table.Row{
		a.Severity.String(),
		string(a.Category),
		ack,
		formatAge(now.Sub(a.CreatedAt)),
		text,
	}
}

// formatAge renders a duration in its largest whole unit, e.g. "42s", "5m", "3h".
func formatAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(max(age, 0).Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(age.Hours()))
	}
}
