// Package session ties the connection manager, the track registry and the alert pipeline
// together and is the only thing the front ends talk to.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/config"
	"github.com/micutio/aerosync/internal/frame"
	"github.com/micutio/aerosync/internal/link"
	"github.com/micutio/aerosync/internal/metrics"
	"github.com/micutio/aerosync/internal/track"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Session.
type Option func(*options)

type options struct {
	logger           *slog.Logger
	metrics          *metrics.Metrics
	now              func() time.Time
	newID            func() string
	onStatus         func(link.Status)
	onAlert          func(alert.Alert)
	onResolve        func(alert.Alert)
	onSelectionClear func(id string)
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records into m. Without it the session registers its own collectors on a private
// prometheus registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the alert id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithStatusObserver is told about every connection status change. It runs on the connection
// manager's goroutine and must not block.
func WithStatusObserver(fn func(link.Status)) Option {
	return func(o *options) { o.onStatus = fn }
}

// WithAlertObserver is told about newly created alerts.
func WithAlertObserver(fn func(alert.Alert)) Option {
	return func(o *options) { o.onAlert = fn }
}

// WithResolveObserver is told about auto-resolved alerts.
func WithResolveObserver(fn func(alert.Alert)) Option {
	return func(o *options) { o.onResolve = fn }
}

// WithSelectionObserver is told when the selected track disappeared.
func WithSelectionObserver(fn func(id string)) Option {
	return func(o *options) { o.onSelectionClear = fn }
}

// Session is the core of aerosync. All methods are safe for concurrent use.
type Session struct {
	cfg config.Config

	settingsMu sync.RWMutex
	settings   config.Settings
	// evalMu serializes evaluations, so a view is never evaluated after a newer one.
	evalMu sync.Mutex
	// healthy is false while the last system status frame carried an error.
	healthy atomic.Bool

	registry *track.Registry
	pipeline *alert.Pipeline
	manager  *link.Manager
	metrics  *metrics.Metrics
	logger   *slog.Logger

	onStatus func(link.Status)
	// lastStatus is only touched by the status observer, which runs on the manager's goroutine.
	lastStatus link.Status
}

// New builds the session in the disconnected state. Call Connect to open the channel.
func New(
	cfg config.Config,
	transport link.Transport,
	notifier alert.Notifier,
	opts ...Option,
) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session.New: %w", err)
	}

	o := options{
		logger:           slog.Default(),
		metrics:          nil,
		now:              time.Now,
		newID:            nil,
		onStatus:         nil,
		onAlert:          nil,
		onResolve:        nil,
		onSelectionClear: nil,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(prometheus.NewRegistry())
	}

	s := &Session{ //nolint:exhaustruct // components are set below
		cfg:      cfg,
		settings: cfg.Settings,
		metrics:  o.metrics,
		logger:   o.logger,
		onStatus: o.onStatus,
	}
	s.healthy.Store(true)

	s.registry = track.NewRegistry(
		track.WithClock(o.now),
		track.WithLogger(o.logger),
		track.WithSelectionListener(func(id string) {
			s.logger.Info("selected aircraft is gone", "id", id)
			if o.onSelectionClear != nil {
				o.onSelectionClear(id)
			}
		}),
	)

	pipelineOpts := []alert.Option{
		alert.WithRecorder(o.metrics),
		alert.WithClock(o.now),
		alert.WithLogger(o.logger),
		alert.WithOnCreate(o.onAlert),
		alert.WithOnResolve(o.onResolve),
	}
	if notifier != nil {
		pipelineOpts = append(pipelineOpts, alert.WithNotifier(notifier))
	}
	if o.newID != nil {
		pipelineOpts = append(pipelineOpts, alert.WithIDGenerator(o.newID))
	}
	s.pipeline = alert.NewPipeline(cfg.Settings, pipelineOpts...)

	s.manager = link.NewManager(cfg, transport, s,
		link.WithStatusObserver(s.observeStatus),
		link.WithRecorder(o.metrics),
		link.WithClock(o.now),
		link.WithLogger(o.logger),
	)
	s.lastStatus = s.manager.Status()

	return s, nil
}

// HandleFrame routes a decoded inbound frame. It is called by the connection manager.
func (s *Session) HandleFrame(in frame.Inbound) {
	switch f := in.(type) {
	case frame.AircraftUpdate:
		for _, update := range f.Updates {
			if _, _, err := s.registry.Upsert(update); err != nil {
				s.logger.Warn("dropping aircraft update", slog.Any("error", err))
			}
		}
		s.metrics.Tracks(s.registry.Len())
		s.evaluate()

	case frame.AircraftRemoved:
		if removed, _ := s.registry.Remove(f.ID); removed {
			s.metrics.Tracks(s.registry.Len())
		}
		s.evaluate()

	case frame.AlertNew:
		s.add(f.Alert)

	case frame.ProximityEvent:
		severity := alert.SeverityMedium
		if f.DistanceNM <= s.Settings().ProximityDistanceNM/2 {
			severity = alert.SeverityHigh
		}
		s.add(s.separationSpec(alert.CategoryProximity, severity, f.Separation))

	case frame.CollisionEvent:
		s.add(s.separationSpec(alert.CategoryCollision, alert.SeverityCritical, f.Separation))

	case frame.SystemStatus:
		if f.Error != nil && strings.TrimSpace(*f.Error) != "" {
			s.healthy.Store(false)
			s.add(alert.Spec{
				Category:    alert.CategorySystemError,
				Severity:    alert.SeverityHigh,
				Title:       "Data source error",
				Message:     *f.Error,
				AircraftID:  "",
				Position:    nil,
				AutoResolve: true,
				Origin:      alert.OriginRemote,
			})
			return
		}
		s.healthy.Store(true)
		s.evaluate()

	default:
		s.logger.Debug("ignoring frame", "type", in.Type())
	}
}

// separationSpec turns a remote proximity or collision event into an alert spec, using the
// registry for the call sign and position when the aircraft is known.
func (s *Session) separationSpec(category alert.Category, severity alert.Severity, sep frame.Separation) alert.Spec {
	title := "Proximity alert"
	if category == alert.CategoryCollision {
		title = "Collision warning"
	}

	callsign := sep.AircraftID
	var position *alert.Position
	if t, ok := s.registry.Get(sep.AircraftID); ok {
		if t.Callsign != "" {
			callsign = t.Callsign
		}
		if t.HasPosition {
			position = &alert.Position{Latitude: t.Latitude, Longitude: t.Longitude}
		}
	}

	return alert.Spec{
		Category:    category,
		Severity:    severity,
		Title:       fmt.Sprintf("%s: %s", title, strings.TrimSpace(callsign)),
		Message:     alert.SeparationMessage(callsign, sep.DistanceNM, sep.Bearing, sep.RelativeAltitudeFt, true),
		AircraftID:  sep.AircraftID,
		Position:    position,
		AutoResolve: category != alert.CategoryCollision,
		Origin:      alert.OriginRemote,
	}
}

func (s *Session) add(spec alert.Spec) {
	if _, _, err := s.pipeline.Add(spec); err != nil {
		s.logger.Warn("dropping alert", slog.Any("error", err))
	}
}

// observeStatus raises alerts for link failures and re-evaluates once the link is back.
func (s *Session) observeStatus(status link.Status) {
	prev := s.lastStatus
	s.lastStatus = status

	switch {
	case status.Fatal && !prev.Fatal:
		s.add(alert.Spec{
			Category:    alert.CategorySystemError,
			Severity:    alert.SeverityCritical,
			Title:       "Connection lost",
			Message:     status.ErrorString(),
			AircraftID:  "",
			Position:    nil,
			AutoResolve: false,
			Origin:      alert.OriginLocal,
		})

	case status.State == link.StateReconnecting && prev.State != link.StateReconnecting &&
		status.HeartbeatTimedOut():
		s.add(alert.Spec{
			Category:    alert.CategoryDataLoss,
			Severity:    alert.SeverityMedium,
			Title:       "Data feed interrupted",
			Message:     "No heartbeat from the server, reconnecting",
			AircraftID:  "",
			Position:    nil,
			AutoResolve: true,
			Origin:      alert.OriginLocal,
		})

	case status.Connected && !prev.Connected:
		s.evaluateWith(true)
	}

	if s.onStatus != nil {
		s.onStatus(status)
	}
}

func (s *Session) view(connected bool) alert.Context {
	var selected *track.Track
	if t, ok := s.registry.Selected(); ok {
		selected = &t
	}

	return alert.Context{
		Tracks:        s.registry.Snapshot(),
		Selected:      selected,
		Settings:      s.Settings(),
		Connected:     connected,
		SystemHealthy: s.healthy.Load(),
	}
}

func (s *Session) evaluate() {
	s.evaluateWith(s.manager.Status().Connected)
}

// evaluateWith takes the snapshot and evaluates it under evalMu. Observers run inside, so they must
// not call back into the session.
func (s *Session) evaluateWith(connected bool) {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	s.pipeline.Evaluate(s.view(connected))
}

// Tracks returns the live tracks matching the filter, sorted by id.
func (s *Session) Tracks(filter track.Filter) []track.Track {
	return filter.Apply(s.registry.Snapshot())
}

// Selected returns the selected track, if any.
func (s *Session) Selected() (track.Track, bool) {
	return s.registry.Selected()
}

// Select marks the track the operator is looking at and runs the proximity rule around it.
func (s *Session) Select(id string) error {
	if err := s.registry.Select(id); err != nil {
		return fmt.Errorf("Select: %w", err)
	}

	s.evaluate()
	return nil
}

func (s *Session) ClearSelection() {
	s.registry.ClearSelection()
	s.evaluate()
}

// ExpireStale removes tracks older than the configured staleness limit and returns their ids.
func (s *Session) ExpireStale() []string {
	expired := s.registry.ExpireStale(s.cfg.StaleAfter)
	if len(expired) == 0 {
		return nil
	}

	s.logger.Debug("expired stale tracks", "count", len(expired))
	s.metrics.Expired(len(expired))
	s.metrics.Tracks(s.registry.Len())
	s.evaluate()

	return expired
}

// Alerts returns the active alerts, most severe first.
func (s *Session) Alerts() []alert.Alert {
	return s.pipeline.List()
}

func (s *Session) UnacknowledgedAlerts() int {
	return s.pipeline.Unacknowledged()
}

func (s *Session) Acknowledge(id string) error {
	return s.pipeline.Acknowledge(id)
}

func (s *Session) AcknowledgeAll() int {
	return s.pipeline.AcknowledgeAll()
}

func (s *Session) RemoveAlert(id string) error {
	return s.pipeline.Remove(id)
}

func (s *Session) AddUserAlert(title, message string, severity alert.Severity) (alert.Alert, error) {
	return s.pipeline.AddUserAlert(title, message, severity)
}

// Settings returns the current settings snapshot.
func (s *Session) Settings() config.Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()

	return s.settings
}

// UpdateSettings replaces the settings snapshot, forwards it to the server and re-runs the
// proximity rule with the new thresholds.
func (s *Session) UpdateSettings(settings config.Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("UpdateSettings: %w", err)
	}

	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()

	s.pipeline.SetSettings(settings)
	if err := s.manager.SetSettings(settings); err != nil {
		return fmt.Errorf("UpdateSettings: %w", err)
	}

	s.evaluate()
	return nil
}

func (s *Session) Status() link.Status {
	return s.manager.Status()
}

func (s *Session) Connect() error {
	return s.manager.Connect()
}

func (s *Session) Disconnect() error {
	return s.manager.Disconnect()
}

func (s *Session) Reconnect() error {
	return s.manager.Reconnect()
}

// Send forwards an outbound frame, failing with link.ErrNotConnected while the link is down.
func (s *Session) Send(msg frame.Outbound) error {
	return s.manager.Send(msg)
}

// Shutdown stops the connection manager. The session can not be reused afterwards.
func (s *Session) Shutdown() error {
	return s.manager.Shutdown()
}
