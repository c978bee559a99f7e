package alert

import (
	"fmt"
	"math"
	"strings"

	"github.com/micutio/aerosync/internal"
	"github.com/micutio/aerosync/internal/config"
	"github.com/micutio/aerosync/internal/track"
)

// Context is the view of the world an evaluation runs against.
type Context struct {
	Tracks   []track.Track // registry snapshot
	Selected *track.Track  // the track the operator is looking at, nil if none
	Settings config.Settings
	// Connected is true while the link is up.
	Connected bool
	// SystemHealthy is false while the last system status frame carried an error.
	SystemHealthy bool
}

func (c Context) track(id string) (track.Track, bool) {
	for _, t := range c.Tracks {
		if t.ID == id {
			return t, true
		}
	}

	return track.Track{}, false
}

// Resolver decides whether the condition behind an auto-resolve alert has cleared.
type Resolver func(a Alert, view Context) bool

func defaultResolvers() map[Category]Resolver {
	return map[Category]Resolver{
		CategoryProximity:         resolveProximity,
		CategoryDataLoss:          func(_ Alert, view Context) bool { return view.Connected },
		CategorySystemError:       func(_ Alert, view Context) bool { return view.SystemHealthy },
		CategoryAltitudeDeviation: resolveTrackGone,
		CategoryCourseDeviation:   resolveTrackGone,
		CategoryAirspaceViolation: resolveTrackGone,
	}
}

func resolveTrackGone(a Alert, view Context) bool {
	if a.AircraftID == "" {
		return false
	}

	_, ok := view.track(a.AircraftID)
	return !ok
}

// resolveProximity clears a proximity alert once the target is gone, has landed or has left the
// envelope around the selected track. Without a selection, remote proximity alerts stay.
func resolveProximity(a Alert, view Context) bool {
	target, ok := view.track(a.AircraftID)
	if !ok || target.OnGround {
		return true
	}

	if view.Selected == nil {
		return a.Origin == OriginLocal
	}

	if view.Selected.ID == target.ID || !view.Selected.HasPosition || !target.HasPosition {
		return false
	}

	sep := separate(*view.Selected, target)
	return !sep.within(view.Settings.ProximityDistanceNM, view.Settings.ProximityAltitudeFt)
}

// separation between the selected track and a target.
type separation struct {
	distanceNM  float64
	bearing     float64
	relativeAlt float64 // target minus own altitude in [feet]
	altKnown    bool
}

func separate(own, target track.Track) separation {
	p := internal.NewCoordinates(own.Latitude, own.Longitude)
	q := internal.NewCoordinates(target.Latitude, target.Longitude)

	return separation{
		distanceNM:  internal.Haversine(p, q).NauticalMiles(),
		bearing:     internal.Bearing(p, q),
		relativeAlt: target.Altitude - own.Altitude,
		altKnown:    own.HasAltitude && target.HasAltitude,
	}
}

// within reports whether the separation is inside the envelope. Unknown altitudes only check
// the lateral distance.
func (s separation) within(distanceNM, altitudeFt float64) bool {
	if s.distanceNM > distanceNM {
		return false
	}

	return !s.altKnown || math.Abs(s.relativeAlt) <= altitudeFt
}

// proximitySpecs runs the local proximity rule: every airborne track around the selected one is
// checked against the collision envelope first and the proximity envelope second.
func proximitySpecs(view Context) []Spec {
	own := view.Selected
	if own == nil || !own.HasPosition || own.OnGround {
		return nil
	}

	settings := view.Settings
	var specs []Spec
	for _, target := range view.Tracks {
		if target.ID == own.ID || !target.HasPosition || target.OnGround {
			continue
		}

		sep := separate(*own, target)
		switch {
		case sep.within(settings.CollisionDistanceNM, settings.CollisionAltitudeFt):
			specs = append(specs, separationSpec(CategoryCollision, SeverityCritical, target, sep))
		case sep.within(settings.ProximityDistanceNM, settings.ProximityAltitudeFt):
			severity := SeverityMedium
			if sep.distanceNM <= settings.ProximityDistanceNM/2 {
				severity = SeverityHigh
			}
			specs = append(specs, separationSpec(CategoryProximity, severity, target, sep))
		}
	}

	return specs
}

func separationSpec(category Category, severity Severity, target track.Track, sep separation) Spec {
	title := "Proximity alert"
	if category == CategoryCollision {
		title = "Collision warning"
	}

	return Spec{
		Category:    category,
		Severity:    severity,
		Title:       fmt.Sprintf("%s: %s", title, strings.TrimSpace(target.CallsignString())),
		Message:     SeparationMessage(target.CallsignString(), sep.distanceNM, sep.bearing, sep.relativeAlt, sep.altKnown),
		AircraftID:  target.ID,
		Position:    &Position{Latitude: target.Latitude, Longitude: target.Longitude},
		AutoResolve: category != CategoryCollision,
		Origin:      OriginLocal,
	}
}

// SeparationMessage renders distance, direction and relative altitude of another aircraft.
func SeparationMessage(callsign string, distanceNM, bearing, relativeAltFt float64, altKnown bool) string {
	msg := fmt.Sprintf("%s %.1f nautical miles %s",
		strings.TrimSpace(callsign), distanceNM, internal.CompassDirection(bearing))
	if !altKnown {
		return msg
	}

	switch {
	case relativeAltFt > 0:
		return fmt.Sprintf("%s, %.0f feet above", msg, relativeAltFt)
	case relativeAltFt < 0:
		return fmt.Sprintf("%s, %.0f feet below", msg, -relativeAltFt)
	default:
		return msg + ", same altitude"
	}
}
