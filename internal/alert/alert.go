// Package alert keeps the set of operator-facing alerts: creation from inbound frames and local
// rules, one-way acknowledgment, auto-resolution and the audio/speech side effects.
package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrAlertNotFound   = errors.New("alert not found")
	ErrInvalidCategory = errors.New("invalid alert category")
	ErrInvalidSeverity = errors.New("invalid alert severity")
)

// Category is one of a closed set of alert kinds.
type Category string

const (
	CategoryCollision         Category = "collision-warning"
	CategoryProximity         Category = "proximity-alert"
	CategoryAltitudeDeviation Category = "altitude-deviation"
	CategoryCourseDeviation   Category = "course-deviation"
	CategoryWeather           Category = "weather-warning"
	CategoryAirspaceViolation Category = "airspace-violation"
	CategorySystemError       Category = "system-error"
	CategoryDataLoss          Category = "data-loss"
	CategoryUserDefined       Category = "user-defined"
)

// Categories lists the taxonomy in display order.
func Categories() []Category {
	return []Category{
		CategoryCollision,
		CategoryProximity,
		CategoryAltitudeDeviation,
		CategoryCourseDeviation,
		CategoryWeather,
		CategoryAirspaceViolation,
		CategorySystemError,
		CategoryDataLoss,
		CategoryUserDefined,
	}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryCollision, CategoryProximity, CategoryAltitudeDeviation, CategoryCourseDeviation,
		CategoryWeather, CategoryAirspaceViolation, CategorySystemError, CategoryDataLoss,
		CategoryUserDefined:
		return true
	}

	return false
}

// Severity is totally ordered. Category does not imply severity.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{ //nolint:gochecknoglobals // lookup table
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

// Severities lists all severities from lowest to highest.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// ParseSeverity accepts the lower case names used on the wire.
func ParseSeverity(s string) (Severity, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for sev, n := range severityNames {
		if n == name {
			return sev, nil
		}
	}

	return 0, fmt.Errorf("ParseSeverity: %w: %q", ErrInvalidSeverity, s)
}

func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}

	return fmt.Sprintf("severity(%d)", int(s))
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("MarshalText: %w: %d", ErrInvalidSeverity, int(s))
	}

	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}

	*s = parsed
	return nil
}

// Origin tells where an alert came from. Resolvers may treat origins differently.
type Origin int

const (
	OriginRemote Origin = iota
	OriginLocal
	OriginUser
)

type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Spec describes an alert to be created, either decoded from an inbound frame or built locally.
type Spec struct {
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	AircraftID  string    `json:"aircraftId,omitempty"`
	Position    *Position `json:"position,omitempty"`
	AutoResolve bool      `json:"autoResolve"`
	Origin      Origin    `json:"-"`
}

// Validate checks category and severity against the closed sets.
func (s Spec) Validate() error {
	if !s.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, s.Category)
	}

	if !s.Severity.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSeverity, int(s.Severity))
	}

	return nil
}

// Alert is a copy of an alert held by the Pipeline.
type Alert struct {
	ID           string
	Category     Category
	Severity     Severity
	Title        string
	Message      string
	CreatedAt    time.Time
	AircraftID   string
	Position     *Position
	Acknowledged bool
	AutoResolve  bool
	ResolvedAt   *time.Time
	Origin       Origin
}

// Key identifies the condition an alert stands for. Alerts with the same key are merged.
func (a *Alert) Key() string {
	return conditionKey(a.Category, a.AircraftID, a.Origin)
}

// conditionKey is category and aircraft. Alerts without an aircraft are told apart by origin, so
// a data source error and a local link failure are separate conditions.
func conditionKey(category Category, aircraftID string, origin Origin) string {
	if aircraftID == "" {
		return fmt.Sprintf("%s/@%d", category, origin)
	}

	return string(category) + "/" + aircraftID
}

// SpeechText is what gets read out loud for the alert.
func (a *Alert) SpeechText() string {
	if a.Message == "" {
		return a.Title
	}

	return a.Message
}

func (a *Alert) String() string {
	ack := " "
	if a.Acknowledged {
		ack = "✓"
	}

	return fmt.Sprintf("[%s] %-8s %-18s %s: %s", ack, a.Severity, a.Category, a.Title, a.Message)
}

func (a *Alert) clone() Alert {
	c := *a
	if a.Position != nil {
		pos := *a.Position
		c.Position = &pos
	}
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		c.ResolvedAt = &at
	}

	return c
}
