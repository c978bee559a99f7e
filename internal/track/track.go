// Package track maintains the authoritative set of aircraft tracks built from sparse updates.
package track

import (
	"fmt"
	"strings"
	"time"
)

const (
	// altitudeUnknown is what we use for aircraft without a given altitude.
	altitudeUnknown = "  n/a"
	// altitudeGround is shown for aircraft reporting to be on the ground.
	altitudeGround = "ground"
	// callsignUnknown is what we use for aircraft with missing call sign.
	// Note: we're adding space at the end to have a length that is consistent with ICAO call signs.
	callsignUnknown = "unknown "
)

// Track is the current state of one aircraft. Tracks handed out by the Registry are copies.
type Track struct {
	ID           string    // opaque transponder identifier, stable across updates
	Callsign     string    // flight number or call sign
	Registration string    // tail number
	AircraftType string    // ICAO type designator
	Operator     string    // airline or owner
	Latitude     float64   // [decimal degrees]
	Longitude    float64   // [decimal degrees]
	Altitude     float64   // barometric altitude in [feet]
	Velocity     float64   // ground speed in [knots]
	Heading      float64   // true track over ground in [degrees]
	VerticalRate float64   // [feet/minute]
	OnGround     bool      // on-ground flag
	Emergency    string    // emergency status code, e.g. squawk 7700 or "general"
	HasPosition  bool      // whether latitude and longitude have been reported
	HasAltitude  bool      // whether altitude has been reported
	LastUpdate   time.Time // stamped by the registry on every update

	hasLatitude  bool
	hasLongitude bool
}

// Update is a partial track. Nil fields were absent in the frame and leave the stored value as is.
type Update struct {
	ID           string   `json:"id"`
	Callsign     *string  `json:"callsign,omitempty"`
	Registration *string  `json:"registration,omitempty"`
	AircraftType *string  `json:"type,omitempty"`
	Operator     *string  `json:"operator,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Altitude     *float64 `json:"altitude,omitempty"`
	Velocity     *float64 `json:"velocity,omitempty"`
	Heading      *float64 `json:"heading,omitempty"`
	VerticalRate *float64 `json:"verticalRate,omitempty"`
	OnGround     *bool    `json:"onGround,omitempty"`
	Emergency    *string  `json:"emergency,omitempty"`
}

// merge overwrites every field that is present in the update.
func (t *Track) merge(u Update) {
	if u.Callsign != nil {
		t.Callsign = *u.Callsign
	}
	if u.Registration != nil {
		t.Registration = *u.Registration
	}
	if u.AircraftType != nil {
		t.AircraftType = *u.AircraftType
	}
	if u.Operator != nil {
		t.Operator = *u.Operator
	}
	if u.Latitude != nil {
		t.Latitude = *u.Latitude
		t.hasLatitude = true
	}
	if u.Longitude != nil {
		t.Longitude = *u.Longitude
		t.hasLongitude = true
	}
	// A position is only usable once both halves have been seen, possibly in separate updates.
	t.HasPosition = t.hasLatitude && t.hasLongitude
	if u.Altitude != nil {
		t.Altitude = *u.Altitude
		t.HasAltitude = true
	}
	if u.Velocity != nil {
		t.Velocity = *u.Velocity
	}
	if u.Heading != nil {
		t.Heading = *u.Heading
	}
	if u.VerticalRate != nil {
		t.VerticalRate = *u.VerticalRate
	}
	if u.OnGround != nil {
		t.OnGround = *u.OnGround
	}
	if u.Emergency != nil {
		t.Emergency = *u.Emergency
	}
}

// IsEmergency reports whether the aircraft declared an emergency, e.g. squawk 7700 or "general".
func (t *Track) IsEmergency() bool {
	code := strings.TrimSpace(strings.ToLower(t.Emergency))
	if code == "" || code == "none" {
		return false
	}

	return true
}

// AltitudeString formats the altitude without decimal places, 'ground' for aircraft on the
// ground and a placeholder if no altitude was reported yet.
func (t *Track) AltitudeString() string {
	if t.OnGround {
		return altitudeGround
	}

	if !t.HasAltitude {
		return altitudeUnknown
	}

	return fmt.Sprintf("%5.0f", t.Altitude)
}

// CallsignString returns either the call sign or 'unknown ' if it was not transmitted.
func (t *Track) CallsignString() string {
	if strings.TrimSpace(t.Callsign) == "" {
		return callsignUnknown
	}

	return t.Callsign
}

// String generates a one-liner consisting of the most relevant information about the track.
func (t *Track) String() string {
	return fmt.Sprintf("ID %s FNO %s ALT %s SPD %3.0f HDG %3.0f TID %s (%s)",
		t.ID,
		t.CallsignString(),
		t.AltitudeString(),
		t.Velocity,
		t.Heading,
		t.AircraftType,
		t.Registration)
}
