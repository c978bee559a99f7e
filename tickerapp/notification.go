package tickerapp

import (
	"fmt"
	"io"
	"log" //nolint:depguard // plain lines on stdout, meant to be piped
	"time"

	"github.com/micutio/aerosync/internal"
	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/link"
	"github.com/micutio/aerosync/internal/track"
)

// Notify writes status changes, alerts and summaries as plain lines to the console.
type Notify struct {
	Stdout *log.Logger
}

func NewNotify(consoleOut io.Writer) *Notify {
	return &Notify{
		Stdout: log.New(consoleOut, "", 0),
	}
}

// Status prints a line for a connection status change.
func (notify *Notify) Status(status link.Status) {
	line := "link " + status.State.String()
	if status.ReconnectAttempts > 0 {
		line += fmt.Sprintf(" attempt %d", status.ReconnectAttempts)
	}
	if status.LastError != nil {
		line += ": " + status.ErrorString()
	}
	if status.Fatal {
		line += " (giving up)"
	}

	notify.Stdout.Println(line)
}

func (notify *Notify) AlertCreated(a alert.Alert) {
	notify.Stdout.Printf("new alert %s\n", a.String())
}

func (notify *Notify) AlertResolved(a alert.Alert) {
	notify.Stdout.Printf("resolved %s %s: %s\n", a.Category, a.AircraftID, a.Title)
}

// PrintSummary prints the track count, the highest and fastest aircraft and the open alerts
// per category from least to most common.
func (notify *Notify) PrintSummary(at time.Time, tracks []track.Track, alerts []alert.Alert) {
	notify.Stdout.Printf("=== Summary %s ===\n", at.Format(time.TimeOnly))
	notify.Stdout.Printf("Aircraft: %d\n", len(tracks))

	if highest, ok := pick(tracks, func(a, b track.Track) bool { return a.Altitude > b.Altitude }); ok {
		notify.Stdout.Println("Highest Aircraft:")
		notify.Stdout.Println(highest.String())
	}
	if fastest, ok := pick(tracks, func(a, b track.Track) bool { return a.Velocity > b.Velocity }); ok {
		notify.Stdout.Println("Fastest Aircraft:")
		notify.Stdout.Println(fastest.String())
	}

	categoryCount := make(map[string]int)
	unacked := 0
	for _, a := range alerts {
		categoryCount[string(a.Category)]++
		if !a.Acknowledged {
			unacked++
		}
	}
	notify.Stdout.Printf("Alerts: %d (%d unacknowledged)\n", len(alerts), unacked)
	notify.listByCount(categoryCount)
	notify.Stdout.Println("=== End Summary ===")
}

func (notify *Notify) listByCount(propertyCountMap map[string]int) {
	propertyCounts := internal.GetSortedCountsForProperty(propertyCountMap)
	for j := range propertyCounts {
		notify.Stdout.Printf("%6d - %s\n", propertyCounts[j].Count, propertyCounts[j].Property)
	}
}

// pick returns the track that wins against every other track. Only tracks with a reported
// altitude take part, ground traffic would never win anyway.
func pick(tracks []track.Track, better func(a, b track.Track) bool) (track.Track, bool) {
	var best track.Track
	found := false
	for _, t := range tracks {
		if !t.HasAltitude || t.OnGround {
			continue
		}
		if !found || better(t, best) {
			best = t
			found = true
		}
	}

	return best, found
}
