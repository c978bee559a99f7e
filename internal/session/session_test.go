package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/config"
	"github.com/micutio/aerosync/internal/frame"
	"github.com/micutio/aerosync/internal/link"
	"github.com/micutio/aerosync/internal/metrics"
	"github.com/micutio/aerosync/internal/track"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

type fakeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:        make(chan []byte, 64),
		out:       make(chan []byte, 256),
		closed:    make(chan struct{}),
		closeOnce: sync.Once{},
	}
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteFrame(data []byte) error {
	select {
	case c.out <- data:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

var errRefused = errors.New("connection refused")

type fakeTransport struct {
	mu    sync.Mutex
	fail  bool
	conns []*fakeConn
}

func (f *fakeTransport) Dial(_ context.Context, _ string) (link.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return nil, errRefused
	}

	conn := newFakeConn()
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeTransport) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DialTimeout = time.Second
	cfg.HeartbeatInterval = time.Hour
	cfg.HeartbeatCheckInterval = time.Hour
	cfg.HeartbeatTimeout = time.Hour
	cfg.BackoffBase = 5 * time.Millisecond
	cfg.MaxAttempts = 3
	cfg.StaleAfter = time.Minute
	cfg.Settings.SoundEnabled = false
	cfg.Settings.SpeechEnabled = false
	return cfg
}

// alertLog collects observer callbacks, which may arrive from the manager's goroutine.
type alertLog struct {
	mu       sync.Mutex
	created  []alert.Alert
	resolved []alert.Alert
}

func (l *alertLog) onCreate(a alert.Alert) {
	l.mu.Lock()
	l.created = append(l.created, a)
	l.mu.Unlock()
}

func (l *alertLog) onResolve(a alert.Alert) {
	l.mu.Lock()
	l.resolved = append(l.resolved, a)
	l.mu.Unlock()
}

func (l *alertLog) createdIn(category alert.Category) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.created {
		if a.Category == category {
			return true
		}
	}
	return false
}

func (l *alertLog) resolvedIn(category alert.Category) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.resolved {
		if a.Category == category {
			return true
		}
	}
	return false
}

func newTestSession(t *testing.T, cfg config.Config, transport link.Transport, opts ...Option) *Session {
	t.Helper()
	s, err := New(cfg, transport, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func position(id string, lat, lon, alt float64) track.Update {
	return track.Update{
		ID:        id,
		Callsign:  ptr(id + "X"),
		Latitude:  ptr(lat),
		Longitude: ptr(lon),
		Altitude:  ptr(alt),
		OnGround:  ptr(false),
	}
}

func findAlert(alerts []alert.Alert, category alert.Category) (alert.Alert, bool) {
	for _, a := range alerts {
		if a.Category == category {
			return a, true
		}
	}
	return alert.Alert{}, false
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.URL = ""

	_, err := New(cfg, &fakeTransport{}, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestAircraftFramesMaintainTracks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var cleared []string
	s := newTestSession(t, testConfig(), &fakeTransport{},
		WithMetrics(m),
		WithSelectionObserver(func(id string) { cleared = append(cleared, id) }))

	s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{
		position("3C6444", 50, 8, 10000),
		position("4B1814", 47, 8.5, 30000),
		{ID: "  "},
	}})
	s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{{ID: "3C6444", Velocity: ptr(420.0)}}})

	tracks := s.Tracks(track.Filter{})
	require.Len(t, tracks, 2)
	assert.Equal(t, "3C6444", tracks[0].ID)
	assert.InDelta(t, 420.0, tracks[0].Velocity, 1e-9)
	assert.InDelta(t, 10000.0, tracks[0].Altitude, 1e-9, "absent fields keep their value")
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.TrackCount), 1e-9)

	require.NoError(t, s.Select("3C6444"))
	s.HandleFrame(frame.AircraftRemoved{ID: "3C6444"})

	assert.Len(t, s.Tracks(track.Filter{}), 1)
	assert.Equal(t, []string{"3C6444"}, cleared)
	_, selected := s.Selected()
	assert.False(t, selected)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.TrackCount), 1e-9)
}

func TestSelectUnknownTrack(t *testing.T) {
	s := newTestSession(t, testConfig(), &fakeTransport{})
	require.ErrorIs(t, s.Select("nope"), track.ErrTrackNotFound)
}

func TestLocalProximityAlertFollowsTraffic(t *testing.T) {
	alerts := &alertLog{}
	s := newTestSession(t, testConfig(), &fakeTransport{},
		WithAlertObserver(alerts.onCreate), WithResolveObserver(alerts.onResolve))

	s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{
		position("OWN", 50, 8, 10000),
		position("TFC", 50.05, 8, 10300), // 3 NM north
	}})
	require.NoError(t, s.Select("OWN"))

	a, ok := findAlert(s.Alerts(), alert.CategoryProximity)
	require.True(t, ok)
	assert.Equal(t, "TFC", a.AircraftID)
	assert.Equal(t, alert.SeverityMedium, a.Severity)
	assert.Equal(t, alert.OriginLocal, a.Origin)

	s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{{ID: "TFC", Latitude: ptr(50.5), Longitude: ptr(8.0)}}})

	_, ok = findAlert(s.Alerts(), alert.CategoryProximity)
	assert.False(t, ok)
	assert.True(t, alerts.resolvedIn(alert.CategoryProximity))
}

func TestConcurrentSelectionAndTraffic(t *testing.T) {
	s := newTestSession(t, testConfig(), &fakeTransport{})
	s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{
		position("OWN", 50, 8, 10000),
		position("TFC", 50.05, 8, 10300),
	}})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			assert.NoError(t, s.Select("OWN"))
			s.ClearSelection()
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 200 {
			lat := 50.04 + float64(i%2)*0.01
			s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{{ID: "TFC", Latitude: ptr(lat), Longitude: ptr(8.0)}}})
		}
	}()
	wg.Wait()

	// the last evaluation saw no selection, so no local proximity alert may be left behind
	s.ClearSelection()
	_, ok := findAlert(s.Alerts(), alert.CategoryProximity)
	assert.False(t, ok)

	require.NoError(t, s.Select("OWN"))
	_, ok = findAlert(s.Alerts(), alert.CategoryProximity)
	assert.True(t, ok)
}

func TestRemoteAlertFrames(t *testing.T) {
	s := newTestSession(t, testConfig(), &fakeTransport{})
	s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{position("4B1814", 47, 8.5, 30000)}})

	s.HandleFrame(frame.AlertNew{Alert: alert.Spec{
		Category: alert.CategoryWeather, Severity: alert.SeverityLow, Title: "Wind", Message: "gusts",
		AircraftID: "", Position: nil, AutoResolve: false, Origin: alert.OriginRemote,
	}})
	sep := frame.Separation{AircraftID: "4B1814", DistanceNM: 1.5, Bearing: 90, RelativeAltitudeFt: -200}
	s.HandleFrame(frame.ProximityEvent{Separation: sep})
	s.HandleFrame(frame.CollisionEvent{Separation: sep})

	list := s.Alerts()
	require.Len(t, list, 3)

	collision, ok := findAlert(list, alert.CategoryCollision)
	require.True(t, ok)
	assert.Equal(t, alert.SeverityCritical, collision.Severity)
	assert.False(t, collision.AutoResolve)
	assert.Equal(t, "Collision warning: 4B1814X", collision.Title)
	require.NotNil(t, collision.Position)
	assert.InDelta(t, 47.0, collision.Position.Latitude, 1e-9)

	proximity, ok := findAlert(list, alert.CategoryProximity)
	require.True(t, ok)
	assert.Equal(t, alert.SeverityHigh, proximity.Severity, "within half the proximity distance")
	assert.Equal(t, "4B1814X 1.5 nautical miles east, 200 feet below", proximity.Message)
	assert.Equal(t, alert.OriginRemote, proximity.Origin)

	// Without a selection a remote proximity alert stays until the aircraft is gone.
	s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{{ID: "4B1814", Altitude: ptr(31000.0)}}})
	_, ok = findAlert(s.Alerts(), alert.CategoryProximity)
	assert.True(t, ok)

	s.HandleFrame(frame.AircraftRemoved{ID: "4B1814"})
	_, ok = findAlert(s.Alerts(), alert.CategoryProximity)
	assert.False(t, ok)
	_, ok = findAlert(s.Alerts(), alert.CategoryCollision)
	assert.True(t, ok, "collision warnings need an acknowledgement")
}

func TestSystemStatus(t *testing.T) {
	s := newTestSession(t, testConfig(), &fakeTransport{})

	s.HandleFrame(frame.SystemStatus{Error: ptr("receiver offline")})
	a, ok := findAlert(s.Alerts(), alert.CategorySystemError)
	require.True(t, ok)
	assert.Equal(t, alert.SeverityHigh, a.Severity)
	assert.Equal(t, "receiver offline", a.Message)

	s.HandleFrame(frame.SystemStatus{Error: ptr("  ")})
	_, ok = findAlert(s.Alerts(), alert.CategorySystemError)
	assert.False(t, ok)
}

func TestFramesArriveOverTheLink(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, testConfig(), transport)

	require.NoError(t, s.Connect())
	require.Eventually(t, func() bool { return s.Status().Connected }, 2*time.Second, time.Millisecond)

	data, err := frame.Encode(frame.AircraftUpdate{Updates: []track.Update{position("4B1814", 47, 8.5, 30000)}})
	require.NoError(t, err)
	transport.last().in <- data

	require.Eventually(t, func() bool { return len(s.Tracks(track.Filter{})) == 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, s.Send(frame.NewHeartbeat(time.Now())))
}

func TestHeartbeatTimeoutRaisesDataLoss(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatCheckInterval = 5 * time.Millisecond
	cfg.HeartbeatTimeout = 30 * time.Millisecond
	cfg.MaxAttempts = 100

	alerts := &alertLog{}
	s := newTestSession(t, cfg, &fakeTransport{},
		WithAlertObserver(alerts.onCreate), WithResolveObserver(alerts.onResolve))
	require.NoError(t, s.Connect())

	require.Eventually(t, func() bool { return alerts.createdIn(alert.CategoryDataLoss) }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return alerts.resolvedIn(alert.CategoryDataLoss) }, 2*time.Second, time.Millisecond,
		"the next connection resolves the data loss")
}

func TestGivingUpRaisesCriticalAlert(t *testing.T) {
	var statuses []link.Status
	var mu sync.Mutex
	s := newTestSession(t, testConfig(), &fakeTransport{fail: true},
		WithStatusObserver(func(status link.Status) {
			mu.Lock()
			statuses = append(statuses, status)
			mu.Unlock()
		}))
	require.NoError(t, s.Connect())

	require.Eventually(t, func() bool { return s.Status().Fatal }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		a, ok := findAlert(s.Alerts(), alert.CategorySystemError)
		return ok && a.Severity == alert.SeverityCritical && !a.AutoResolve
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, statuses)
}

func TestUpdateSettings(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, testConfig(), transport)

	invalid := s.Settings()
	invalid.ProximityDistanceNM = 0
	require.ErrorIs(t, s.UpdateSettings(invalid), config.ErrInvalidConfig)

	s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{
		position("OWN", 50, 8, 10000),
		position("TFC", 50.1, 8, 10000), // 6 NM north
	}})
	require.NoError(t, s.Select("OWN"))
	assert.Empty(t, s.Alerts())

	wider := s.Settings()
	wider.ProximityDistanceNM = 10
	require.NoError(t, s.UpdateSettings(wider))
	assert.InDelta(t, 10.0, s.Settings().ProximityDistanceNM, 1e-9)

	_, ok := findAlert(s.Alerts(), alert.CategoryProximity)
	assert.True(t, ok, "new thresholds apply right away")
}

func TestExpireStale(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := newTestSession(t, testConfig(), &fakeTransport{}, WithClock(clock), WithMetrics(m))

	s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{position("OLD", 47, 8, 5000)}})
	mu.Lock()
	now = now.Add(45 * time.Second)
	mu.Unlock()
	s.HandleFrame(frame.AircraftUpdate{Updates: []track.Update{position("NEW", 48, 8, 5000)}})
	assert.Nil(t, s.ExpireStale())

	mu.Lock()
	now = now.Add(30 * time.Second)
	mu.Unlock()

	assert.Equal(t, []string{"OLD"}, s.ExpireStale())
	assert.Len(t, s.Tracks(track.Filter{}), 1)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.TracksExpired), 1e-9)
}

func TestUserAlertsAndAcknowledgement(t *testing.T) {
	s := newTestSession(t, testConfig(), &fakeTransport{})

	first, err := s.AddUserAlert("Check fuel", "", alert.SeverityLow)
	require.NoError(t, err)
	_, err = s.AddUserAlert("Call tower", "", alert.SeverityMedium)
	require.NoError(t, err)

	assert.Equal(t, 2, s.UnacknowledgedAlerts())
	require.NoError(t, s.Acknowledge(first.ID))
	assert.Equal(t, 1, s.UnacknowledgedAlerts())
	assert.Equal(t, 1, s.AcknowledgeAll())
	assert.Equal(t, 0, s.UnacknowledgedAlerts())

	require.NoError(t, s.RemoveAlert(first.ID))
	require.ErrorIs(t, s.RemoveAlert(first.ID), alert.ErrAlertNotFound)
	assert.Len(t, s.Alerts(), 1)
}
