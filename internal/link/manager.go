// Package link keeps the push channel to the data source alive. A single event loop owns the
// connection state machine, the heartbeat watchdog and the backoff scheduler. Commands, transport
// signals and timer expiries are all handled on that loop in arrival order.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/micutio/aerosync/internal/config"
	"github.com/micutio/aerosync/internal/frame"
)

const eventQueueSize = 256

// FrameHandler receives every decoded inbound frame except heartbeat acks, in arrival order.
// It is called from the event loop and must not block on the Manager.
type FrameHandler interface {
	HandleFrame(in frame.Inbound)
}

// FrameHandlerFunc adapts a function to a FrameHandler.
type FrameHandlerFunc func(in frame.Inbound)

func (f FrameHandlerFunc) HandleFrame(in frame.Inbound) { f(in) }

// Recorder receives link level counters. The metrics package provides one.
type Recorder interface {
	FrameReceived(t frame.Type)
	DecodeError()
	ReconnectAttempt()
	HeartbeatTimeout()
	StateChanged(s State)
}

type nopRecorder struct{}

func (nopRecorder) FrameReceived(frame.Type) {}
func (nopRecorder) DecodeError()             {}
func (nopRecorder) ReconnectAttempt()        {}
func (nopRecorder) HeartbeatTimeout()        {}
func (nopRecorder) StateChanged(State)       {}

// Option configures a Manager.
type Option func(*Manager)

// WithStatusObserver registers a callback invoked from the event loop on every status change.
func WithStatusObserver(fn func(Status)) Option {
	return func(m *Manager) { m.onStatus = fn }
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager is the connection resilience manager. Create it with NewManager and release it with
// Shutdown. All exported methods are safe for concurrent use.
type Manager struct {
	cfg       config.Config
	transport Transport
	handler   FrameHandler
	onStatus  func(Status)
	recorder  Recorder
	now       func() time.Time
	logger    *slog.Logger

	events chan event
	done   chan struct{}

	statusMu sync.RWMutex
	status   Status

	// owned by the event loop
	state      State
	epoch      uint64
	attempts   int
	lastError  error
	fatal      bool
	lastBeat   time.Time
	since      time.Time
	settings   config.Settings
	conn       Conn
	dialCancel context.CancelFunc
	backoff    *time.Timer
	ping       *time.Timer
	check      *time.Timer
}

type event interface{}

type (
	connectCmd    struct{}
	disconnectCmd struct{}
	reconnectCmd  struct{}
	shutdownCmd   struct{}
	sendCmd       struct{ msg frame.Outbound }
	settingsCmd   struct{ settings config.Settings }

	dialResult struct {
		epoch uint64
		conn  Conn
		err   error
	}
	frameReceived struct {
		epoch uint64
		in    frame.Inbound
	}
	connClosed struct {
		epoch uint64
		err   error
	}
	backoffFired struct{ epoch uint64 }
	pingDue      struct{ epoch uint64 }
	checkFired   struct{ epoch uint64 }
)

// NewManager starts the event loop in the Disconnected state. Call Connect to open the channel.
func NewManager(cfg config.Config, transport Transport, handler FrameHandler, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		transport:  transport,
		handler:    handler,
		onStatus:   nil,
		recorder:   nopRecorder{},
		now:        time.Now,
		logger:     slog.Default(),
		events:     make(chan event, eventQueueSize),
		done:       make(chan struct{}),
		statusMu:   sync.RWMutex{},
		status:     Status{}, //nolint:exhaustruct // zero status is Disconnected
		state:      StateDisconnected,
		epoch:      0,
		attempts:   0,
		lastError:  nil,
		fatal:      false,
		lastBeat:   time.Time{},
		since:      time.Time{},
		settings:   cfg.Settings,
		conn:       nil,
		dialCancel: nil,
		backoff:    nil,
		ping:       nil,
		check:      nil,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.since = m.now()
	m.status = m.snapshot()

	go m.run()
	return m
}

// Connect starts the state machine unless it is already connecting or connected.
func (m *Manager) Connect() error {
	return m.post(connectCmd{})
}

// Disconnect closes the channel and stops all timers. No reconnection is scheduled.
func (m *Manager) Disconnect() error {
	return m.post(disconnectCmd{})
}

// Reconnect disconnects, resets the attempt counter and connects again.
// It is the way out of the fatal state after the reconnect attempts are exhausted.
func (m *Manager) Reconnect() error {
	return m.post(reconnectCmd{})
}

// Send queues a frame for the remote endpoint. It fails with ErrNotConnected when the channel is
// not up; a frame queued right before the connection drops is discarded with a warning.
func (m *Manager) Send(msg frame.Outbound) error {
	if !m.Status().Connected {
		m.logger.Warn("not connected, dropping frame", "type", msg.Type())
		return ErrNotConnected
	}

	return m.post(sendCmd{msg: msg})
}

// SetSettings stores the settings snapshot. It is forwarded right away if connected and again on
// every successful connection.
func (m *Manager) SetSettings(settings config.Settings) error {
	return m.post(settingsCmd{settings: settings})
}

// Status returns the latest status snapshot.
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()

	return m.status
}

// Shutdown disconnects, releases all timers and stops the event loop. Later calls to any
// command return ErrManagerStopped.
func (m *Manager) Shutdown() error {
	if err := m.post(shutdownCmd{}); err != nil {
		return err
	}

	<-m.done
	return nil
}

func (m *Manager) post(ev event) error {
	select {
	case <-m.done:
		return ErrManagerStopped
	default:
	}

	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return ErrManagerStopped
	}
}

func (m *Manager) run() {
	defer close(m.done)

	for ev := range m.events {
		if _, stop := ev.(shutdownCmd); stop {
			m.teardown()
			m.setState(StateDisconnected)
			m.logger.Info("connection manager stopped")
			return
		}

		m.handle(ev)
	}
}

//nolint:cyclop // one case per event
func (m *Manager) handle(ev event) {
	switch e := ev.(type) {
	case connectCmd:
		m.connect()
	case disconnectCmd:
		m.disconnect()
	case reconnectCmd:
		m.disconnect()
		m.attempts = 0
		m.fatal = false
		m.lastError = nil
		m.connect()
	case sendCmd:
		if m.state != StateConnected {
			m.logger.Warn("connection lost before send, dropping frame", "type", e.msg.Type())
			return
		}
		m.write(e.msg)
	case settingsCmd:
		m.settings = e.settings
		if m.state == StateConnected {
			m.write(frame.NewSettingsUpdate(e.settings))
		}
	case dialResult:
		m.onDialResult(e)
	case frameReceived:
		if e.epoch != m.epoch || m.state != StateConnected {
			return
		}
		m.onFrame(e.in)
	case connClosed:
		if e.epoch != m.epoch || m.state != StateConnected {
			return
		}
		m.fail(fmt.Errorf("%w: %w", ErrConnectionClosed, e.err))
	case backoffFired:
		if e.epoch != m.epoch || m.state != StateReconnecting {
			return
		}
		m.dial()
	case pingDue:
		if e.epoch != m.epoch || m.state != StateConnected {
			return
		}
		m.write(frame.NewHeartbeat(m.now()))
		m.ping = m.schedule(m.cfg.HeartbeatInterval, pingDue{epoch: m.epoch})
	case checkFired:
		if e.epoch != m.epoch || m.state != StateConnected {
			return
		}
		if m.now().Sub(m.lastBeat) > m.cfg.HeartbeatTimeout {
			m.recorder.HeartbeatTimeout()
			m.logger.Warn("no heartbeat acknowledgment", "lastHeartbeat", m.lastBeat, "timeout", m.cfg.HeartbeatTimeout)
			m.fail(ErrHeartbeatTimeout)
			return
		}
		m.check = m.schedule(m.cfg.HeartbeatCheckInterval, checkFired{epoch: m.epoch})
	}
}

func (m *Manager) connect() {
	if m.state == StateConnecting || m.state == StateConnected {
		return
	}

	m.fatal = false
	m.dial()
}

func (m *Manager) disconnect() {
	if m.state == StateDisconnected {
		return
	}

	m.teardown()
	m.logger.Info("disconnected")
	m.setState(StateDisconnected)
}

// dial moves to Connecting and opens a new channel in the background.
func (m *Manager) dial() {
	m.teardown()
	epoch := m.epoch

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	m.dialCancel = cancel
	m.setState(StateConnecting)
	m.logger.Info("connecting", "url", m.cfg.URL, "attempt", m.attempts)

	go func() {
		conn, err := m.transport.Dial(ctx, m.cfg.URL)
		if m.post(dialResult{epoch: epoch, conn: conn, err: err}) != nil && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) onDialResult(res dialResult) {
	if res.epoch != m.epoch || m.state != StateConnecting {
		if res.conn != nil {
			_ = res.conn.Close()
		}
		return
	}

	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	if res.err != nil {
		m.logger.Warn("connection failed", slog.Any("error", res.err))
		m.fail(res.err)
		return
	}

	m.conn = res.conn
	m.attempts = 0
	m.lastError = nil
	m.lastBeat = m.now()
	m.ping = m.schedule(m.cfg.HeartbeatInterval, pingDue{epoch: m.epoch})
	m.check = m.schedule(m.cfg.HeartbeatCheckInterval, checkFired{epoch: m.epoch})
	go m.read(res.conn, m.epoch)

	m.logger.Info("connected", "url", m.cfg.URL)
	m.setState(StateConnected)

	m.write(frame.RequestInitialData{})
	m.write(frame.NewSettingsUpdate(m.settings))
}

func (m *Manager) onFrame(in frame.Inbound) {
	m.recorder.FrameReceived(in.Type())

	if _, ok := in.(frame.HeartbeatAck); ok {
		m.lastBeat = m.now()
		m.publish()
		return
	}

	if m.handler != nil {
		m.handler.HandleFrame(in)
	}
}

// fail handles a transport failure or watchdog timeout: retry with backoff, or give up for good
// once the attempts are exhausted.
func (m *Manager) fail(err error) {
	m.teardown()
	m.lastError = err

	if m.attempts >= m.cfg.MaxAttempts {
		m.attempts = 0
		m.fatal = true
		m.lastError = fmt.Errorf("%w (%d): %w", ErrMaxReconnectAttempts, m.cfg.MaxAttempts, err)
		m.logger.Error("giving up on reconnecting", slog.Any("error", m.lastError))
		m.setState(StateDisconnected)
		return
	}

	m.attempts++
	m.recorder.ReconnectAttempt()
	delay := BackoffDelay(m.attempts, m.cfg.BackoffBase, m.cfg.BackoffCap)
	m.backoff = m.schedule(delay, backoffFired{epoch: m.epoch})
	m.logger.Info("reconnect scheduled", "attempt", m.attempts, "delay", delay, slog.Any("error", err))
	m.setState(StateReconnecting)
}

// teardown stops every timer, cancels a pending dial and closes the channel. It bumps the epoch
// so that anything still in flight for the old connection is ignored.
func (m *Manager) teardown() {
	for _, timer := range []*time.Timer{m.backoff, m.ping, m.check} {
		if timer != nil {
			timer.Stop()
		}
	}
	m.backoff, m.ping, m.check = nil, nil, nil

	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Debug("closing connection", slog.Any("error", err))
		}
		m.conn = nil
	}

	m.epoch++
}

func (m *Manager) write(msg frame.Outbound) {
	if m.conn == nil {
		return
	}

	data, err := frame.Encode(msg)
	if err != nil {
		m.logger.Error("failed to encode frame", "type", msg.Type(), slog.Any("error", err))
		return
	}

	if err := m.conn.WriteFrame(data); err != nil {
		// The reader sees the broken channel and reports it as closed.
		m.logger.Warn("failed to write frame", "type", msg.Type(), slog.Any("error", err))
		_ = m.conn.Close()
	}
}

// read forwards frames of one connection until it fails.
func (m *Manager) read(conn Conn, epoch uint64) {
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			_ = m.post(connClosed{epoch: epoch, err: err})
			return
		}

		in, err := frame.Decode(data)
		if err != nil {
			m.recorder.DecodeError()
			m.logger.Warn("dropping frame", slog.Any("error", err))
			continue
		}

		if m.post(frameReceived{epoch: epoch, in: in}) != nil {
			return
		}
	}
}

func (m *Manager) schedule(delay time.Duration, ev event) *time.Timer {
	return time.AfterFunc(delay, func() { _ = m.post(ev) })
}

func (m *Manager) setState(state State) {
	if state != m.state {
		m.since = m.now()
		m.recorder.StateChanged(state)
	}
	m.state = state
	m.publish()
}

func (m *Manager) snapshot() Status {
	return Status{
		State:             m.state,
		Connected:         m.state == StateConnected,
		LastError:         m.lastError,
		Fatal:             m.fatal,
		ReconnectAttempts: m.attempts,
		LastHeartbeat:     m.lastBeat,
		Since:             m.since,
	}
}

func (m *Manager) publish() {
	status := m.snapshot()

	m.statusMu.Lock()
	m.status = status
	m.statusMu.Unlock()

	if m.onStatus != nil {
		m.onStatus(status)
	}
}

// IsFatal reports whether err means the manager gave up reconnecting.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMaxReconnectAttempts)
}
