package alert

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/micutio/aerosync/internal/config"
)

// Recorder receives counters about the alert set. The metrics package provides one.
type Recorder interface {
	AlertCreated(category Category)
	AlertResolved(category Category)
	ActiveAlerts(counts map[Severity]int)
	NotifierFailed(kind string)
}

type nopRecorder struct{}

func (nopRecorder) AlertCreated(Category)         {}
func (nopRecorder) AlertResolved(Category)        {}
func (nopRecorder) ActiveAlerts(map[Severity]int) {}
func (nopRecorder) NotifierFailed(string)         {}

// Pipeline owns the active alerts. All methods are safe for concurrent use; observers and side
// effects are invoked after the internal lock has been released.
type Pipeline struct {
	mu       sync.Mutex
	alerts   map[string]*Alert
	byKey    map[string]string
	settings config.Settings

	notifier  Notifier
	resolvers map[Category]Resolver
	onCreate  func(Alert)
	onResolve func(Alert)
	recorder  Recorder
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithResolver sets or replaces the auto-resolve check for a category.
func WithResolver(category Category, r Resolver) Option {
	return func(p *Pipeline) { p.resolvers[category] = r }
}

// WithOnCreate registers an observer for newly created alerts. Merged duplicates are not reported.
func WithOnCreate(fn func(Alert)) Option {
	return func(p *Pipeline) { p.onCreate = fn }
}

// WithOnResolve registers an observer for auto-resolved alerts.
func WithOnResolve(fn func(Alert)) Option {
	return func(p *Pipeline) { p.onResolve = fn }
}

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator replaces the uuid based id generation.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func NewPipeline(settings config.Settings, opts ...Option) *Pipeline {
	pipeline := &Pipeline{
		mu:        sync.Mutex{},
		alerts:    make(map[string]*Alert),
		byKey:     make(map[string]string),
		settings:  settings,
		notifier:  nil,
		resolvers: defaultResolvers(),
		onCreate:  nil,
		onResolve: nil,
		recorder:  nopRecorder{},
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(pipeline)
	}

	return pipeline
}

// SetSettings replaces the settings snapshot that gates sound and speech.
func (p *Pipeline) SetSettings(settings config.Settings) {
	p.mu.Lock()
	p.settings = settings
	p.mu.Unlock()
}

// Add creates an alert from the spec. If an unresolved alert with the same key exists, it is
// refreshed instead: message, title and position are replaced, the severity only ever goes up and
// a refresh without auto-resolve makes the alert sticky. A locally detected refresh turns a remote
// alert into a local one.
// Acknowledged alerts are left as they are. A spec for the same condition with a higher severity
// raises a new alert next to the acknowledged one, anything else is already covered by it.
// The returned flag is true for newly created alerts. Side effects fire only for those.
func (p *Pipeline) Add(spec Spec) (Alert, bool, error) {
	if err := spec.Validate(); err != nil {
		return Alert{}, false, fmt.Errorf("Add: %w", err)
	}

	p.mu.Lock()
	created, isNew := p.addLocked(spec)
	settings := p.settings
	counts := p.countsLocked()
	p.mu.Unlock()

	p.recorder.ActiveAlerts(counts)
	if isNew {
		p.announce(created, settings)
	}

	return created, isNew, nil
}

// AddUserAlert creates a user-defined alert. These never resolve on their own.
func (p *Pipeline) AddUserAlert(title, message string, severity Severity) (Alert, error) {
	created, _, err := p.Add(Spec{
		Category:    CategoryUserDefined,
		Severity:    severity,
		Title:       title,
		Message:     message,
		AircraftID:  "",
		Position:    nil,
		AutoResolve: false,
		Origin:      OriginUser,
	})
	if err != nil {
		return Alert{}, fmt.Errorf("AddUserAlert: %w", err)
	}

	return created, nil
}

func (p *Pipeline) addLocked(spec Spec) (Alert, bool) {
	key := conditionKey(spec.Category, spec.AircraftID, spec.Origin)
	if spec.Category != CategoryUserDefined {
		if existing, ok := p.standingLocked(key); ok {
			if spec.Origin == OriginLocal {
				existing.Origin = OriginLocal
			}

			switch {
			case !existing.Acknowledged:
				existing.Title = spec.Title
				existing.Message = spec.Message
				if spec.Position != nil {
					pos := *spec.Position
					existing.Position = &pos
				}
				existing.Severity = max(existing.Severity, spec.Severity)
				existing.AutoResolve = existing.AutoResolve && spec.AutoResolve
				return existing.clone(), false
			case spec.Severity <= existing.Severity:
				return existing.clone(), false
			}
		}
	}

	a := &Alert{
		ID:           p.newID(),
		Category:     spec.Category,
		Severity:     spec.Severity,
		Title:        spec.Title,
		Message:      spec.Message,
		CreatedAt:    p.now(),
		AircraftID:   spec.AircraftID,
		Position:     nil,
		Acknowledged: false,
		AutoResolve:  spec.AutoResolve,
		ResolvedAt:   nil,
		Origin:       spec.Origin,
	}
	if spec.Position != nil {
		pos := *spec.Position
		a.Position = &pos
	}

	p.alerts[a.ID] = a
	if spec.Category != CategoryUserDefined {
		p.byKey[key] = a.ID
	}

	p.logger.Info("new alert",
		"id", a.ID,
		"category", a.Category,
		"severity", a.Severity.String(),
		"aircraft", a.AircraftID)

	return a.clone(), true
}

// standingLocked returns the alert currently registered for the condition key.
func (p *Pipeline) standingLocked(key string) (*Alert, bool) {
	id, ok := p.byKey[key]
	if !ok {
		return nil, false
	}

	a, ok := p.alerts[id]
	return a, ok
}

// announce runs observers and side effects for a newly created alert.
func (p *Pipeline) announce(a Alert, settings config.Settings) {
	p.recorder.AlertCreated(a.Category)
	if p.onCreate != nil {
		p.onCreate(a)
	}

	p.dispatch(a, settings)
}

// Acknowledge marks the alert as acknowledged. Acknowledging twice is not an error.
func (p *Pipeline) Acknowledge(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.alerts[id]
	if !ok {
		return fmt.Errorf("Acknowledge: %w: %s", ErrAlertNotFound, id)
	}

	a.Acknowledged = true
	return nil
}

// AcknowledgeAll acknowledges every alert present at the time of the call and returns how many
// changed state. Alerts added concurrently are either fully before or fully after the call.
func (p *Pipeline) AcknowledgeAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, a := range p.alerts {
		if !a.Acknowledged {
			a.Acknowledged = true
			count++
		}
	}

	return count
}

// Remove deletes the alert on user request.
func (p *Pipeline) Remove(id string) error {
	p.mu.Lock()
	a, ok := p.alerts[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("Remove: %w: %s", ErrAlertNotFound, id)
	}
	p.deleteLocked(a)
	counts := p.countsLocked()
	p.mu.Unlock()

	p.recorder.ActiveAlerts(counts)
	return nil
}

func (p *Pipeline) deleteLocked(a *Alert) {
	delete(p.alerts, a.ID)
	if p.byKey[a.Key()] == a.ID {
		delete(p.byKey, a.Key())
	}
}

// Get returns a copy of the alert.
func (p *Pipeline) Get(id string) (Alert, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.alerts[id]
	if !ok {
		return Alert{}, false
	}

	return a.clone(), true
}

// List returns copies of all active alerts, most severe first and newest first within a severity.
func (p *Pipeline) List() []Alert {
	p.mu.Lock()
	alerts := make([]Alert, 0, len(p.alerts))
	for _, a := range p.alerts {
		alerts = append(alerts, a.clone())
	}
	p.mu.Unlock()

	slices.SortFunc(alerts, func(a, b Alert) int {
		if a.Severity != b.Severity {
			return int(b.Severity) - int(a.Severity)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return b.CreatedAt.Compare(a.CreatedAt)
		}
		return strings.Compare(a.ID, b.ID)
	})

	return alerts
}

// Unacknowledged returns the number of alerts still waiting for acknowledgment.
func (p *Pipeline) Unacknowledged() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, a := range p.alerts {
		if !a.Acknowledged {
			count++
		}
	}

	return count
}

func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.alerts)
}

// Evaluate runs the local proximity rule for the selected track and then re-checks every
// standing auto-resolve alert against the view. It has to be called after every registry change.
func (p *Pipeline) Evaluate(view Context) {
	specs := proximitySpecs(view)

	p.mu.Lock()
	var created []Alert
	for _, spec := range specs {
		if a, isNew := p.addLocked(spec); isNew {
			created = append(created, a)
		}
	}
	resolved := p.sweepLocked(view)
	settings := p.settings
	counts := p.countsLocked()
	p.mu.Unlock()

	for _, a := range created {
		p.announce(a, settings)
	}

	for _, a := range resolved {
		p.logger.Info("alert resolved", "id", a.ID, "category", a.Category, "aircraft", a.AircraftID)
		p.recorder.AlertResolved(a.Category)
		if p.onResolve != nil {
			p.onResolve(a)
		}
	}

	p.recorder.ActiveAlerts(counts)
}

func (p *Pipeline) sweepLocked(view Context) []Alert {
	var resolved []Alert
	for _, a := range p.alerts {
		if !a.AutoResolve {
			continue
		}

		resolver, ok := p.resolvers[a.Category]
		if !ok || !resolver(a.clone(), view) {
			continue
		}

		at := p.now()
		a.ResolvedAt = &at
		p.deleteLocked(a)
		resolved = append(resolved, a.clone())
	}

	slices.SortFunc(resolved, func(a, b Alert) int { return strings.Compare(a.ID, b.ID) })
	return resolved
}

func (p *Pipeline) countsLocked() map[Severity]int {
	counts := make(map[Severity]int, len(severityNames))
	for _, sev := range Severities() {
		counts[sev] = 0
	}
	for _, a := range p.alerts {
		counts[a.Severity]++
	}

	return counts
}
