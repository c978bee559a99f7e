package config

import (
	"fmt"

	"github.com/micutio/aerosync/internal/track"
)

// Settings is the snapshot of user settings the presentation layer hands to the core.
// It is a value type: a change replaces the whole snapshot.
type Settings struct {
	UpdateIntervalSeconds int     `yaml:"update_interval_seconds" json:"updateIntervalSeconds" env:"AEROSYNC_UPDATE_INTERVAL_SECONDS"`
	ProximityDistanceNM   float64 `yaml:"proximity_distance_nm"   json:"proximityDistanceNM"   env:"AEROSYNC_PROXIMITY_DISTANCE_NM"`
	ProximityAltitudeFt   float64 `yaml:"proximity_altitude_ft"   json:"proximityAltitudeFt"   env:"AEROSYNC_PROXIMITY_ALTITUDE_FT"`
	CollisionDistanceNM   float64 `yaml:"collision_distance_nm"   json:"collisionDistanceNM"   env:"AEROSYNC_COLLISION_DISTANCE_NM"`
	CollisionAltitudeFt   float64 `yaml:"collision_altitude_ft"   json:"collisionAltitudeFt"   env:"AEROSYNC_COLLISION_ALTITUDE_FT"`
	SoundEnabled          bool    `yaml:"sound_enabled"           json:"soundEnabled"          env:"AEROSYNC_SOUND"`
	SpeechEnabled         bool    `yaml:"speech_enabled"          json:"speechEnabled"         env:"AEROSYNC_SPEECH"`

	Filter track.Filter `yaml:"filter" json:"filter"`
}

// DefaultSettings mirrors the defaults of the dashboard settings panel.
func DefaultSettings() Settings {
	return Settings{
		UpdateIntervalSeconds: 5, //nolint:mnd // defaults
		ProximityDistanceNM:   5, //nolint:mnd // defaults
		ProximityAltitudeFt:   1000,
		CollisionDistanceNM:   1,
		CollisionAltitudeFt:   500,
		SoundEnabled:          true,
		SpeechEnabled:         false,
		Filter:                track.Filter{},
	}
}

// Validate checks that thresholds are usable. A collision envelope wider than the proximity
// envelope would never produce proximity alerts, so it is rejected.
func (s Settings) Validate() error {
	switch {
	case s.UpdateIntervalSeconds <= 0:
		return fmt.Errorf("%w: update_interval_seconds must be positive", ErrInvalidConfig)
	case s.ProximityDistanceNM <= 0, s.ProximityAltitudeFt <= 0:
		return fmt.Errorf("%w: proximity thresholds must be positive", ErrInvalidConfig)
	case s.CollisionDistanceNM < 0, s.CollisionAltitudeFt < 0:
		return fmt.Errorf("%w: collision thresholds must not be negative", ErrInvalidConfig)
	case s.CollisionDistanceNM > s.ProximityDistanceNM || s.CollisionAltitudeFt > s.ProximityAltitudeFt:
		return fmt.Errorf("%w: collision envelope exceeds proximity envelope", ErrInvalidConfig)
	}

	return nil
}
