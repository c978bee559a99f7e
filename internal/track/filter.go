package track

import "strings"

// Filter narrows a snapshot down to the tracks a view wants to show. The zero value matches all.
type Filter struct {
	MinAltitude   *float64 `yaml:"min_altitude"   json:"minAltitude,omitempty"`
	MaxAltitude   *float64 `yaml:"max_altitude"   json:"maxAltitude,omitempty"`
	OnGround      *bool    `yaml:"on_ground"      json:"onGround,omitempty"`
	EmergencyOnly bool     `yaml:"emergency_only" json:"emergencyOnly"`
	Search        string   `yaml:"search"         json:"search"`
}

// Match reports whether the track passes every predicate of the filter.
// Tracks without a reported altitude never pass an altitude bound.
func (f Filter) Match(t Track) bool {
	if f.MinAltitude != nil && (!t.HasAltitude || t.Altitude < *f.MinAltitude) {
		return false
	}

	if f.MaxAltitude != nil && (!t.HasAltitude || t.Altitude > *f.MaxAltitude) {
		return false
	}

	if f.OnGround != nil && t.OnGround != *f.OnGround {
		return false
	}

	if f.EmergencyOnly && !t.IsEmergency() {
		return false
	}

	return matchesSearch(t, f.Search)
}

// Apply returns the matching tracks in their original order. The input is not modified.
func (f Filter) Apply(tracks []Track) []Track {
	result := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if f.Match(t) {
			result = append(result, t)
		}
	}

	return result
}

func matchesSearch(t Track, search string) bool {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return true
	}

	for _, field := range []string{t.ID, t.Registration, t.AircraftType, t.Operator, t.Callsign} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}

	return false
}
