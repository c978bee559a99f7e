package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/frame"
)

const writeTimeout = 5 * time.Second

type options struct {
	latitude    float64
	longitude   float64
	interval    time.Duration
	removeEvery int
	proximityNM float64
	// dropHeartbeats leaves heartbeats unanswered so clients hit their watchdog.
	dropHeartbeats bool
	seed           uint64
}

// server pushes simulated traffic to every websocket client. Each client gets its own fleet.
type server struct {
	upgrader websocket.Upgrader
	opts     options
	logger   *slog.Logger
}

func newServer(opts options, logger *slog.Logger) *server {
	return &server{
		upgrader: websocket.Upgrader{ //nolint:exhaustruct // defaults are fine
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		opts:   opts,
		logger: logger,
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	c := &client{
		conn:    conn,
		writeMu: sync.Mutex{},
		logger:  s.logger.With(slog.String("remote", r.RemoteAddr)),
	}
	c.logger.Info("client connected")
	s.serve(r.Context(), c)
	c.logger.Info("client disconnected")
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *slog.Logger
}

func (c *client) send(msg frame.Message) error {
	data, err := frame.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readFrames decodes client frames until the connection is gone. Malformed frames are logged and
// skipped.
func (c *client) readFrames(frames chan<- frame.Outbound, done <-chan struct{}) {
	defer close(frames)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", slog.Any("error", err))
			}
			return
		}

		msg, err := frame.DecodeOutbound(data)
		if err != nil {
			c.logger.Warn("dropping frame", slog.Any("error", err))
			continue
		}
		select {
		case frames <- msg:
		case <-done:
			return
		}
	}
}

// serve streams nothing until the client asks for the initial picture.
func (s *server) serve(ctx context.Context, c *client) {
	frames := make(chan frame.Outbound)
	done := make(chan struct{})
	defer close(done)
	go c.readFrames(frames, done)

	traffic := newFleet(s.opts.latitude, s.opts.longitude, s.opts.seed)
	proximityNM := s.opts.proximityNM

	// A nil channel blocks forever, so the ticker only fires once streaming has started.
	var tick <-chan time.Time

	for {
		var err error

		select {
		case <-ctx.Done():
			return

		case msg, ok := <-frames:
			if !ok {
				return
			}

			switch f := msg.(type) {
			case frame.RequestInitialData:
				err = s.sendInitial(c, traffic)
				if tick == nil {
					ticker := time.NewTicker(s.opts.interval)
					defer ticker.Stop()
					tick = ticker.C
				}
			case frame.Heartbeat:
				if s.opts.dropHeartbeats {
					c.logger.Debug("ignoring heartbeat")
					continue
				}
				err = c.send(frame.HeartbeatAck{})
			case frame.SettingsUpdate:
				c.logger.Info("settings update",
					slog.Int("update_interval_s", f.UpdateIntervalSeconds),
					slog.Float64("proximity_nm", f.ProximityDistanceNM),
					slog.Float64("proximity_ft", f.ProximityAltitudeFt),
					slog.String("search", f.Filter.Search))
				if f.ProximityDistanceNM > 0 {
					proximityNM = f.ProximityDistanceNM
				}
			}

		case <-tick:
			err = s.sendTick(c, traffic.step(s.opts.interval, s.opts.removeEvery, proximityNM), proximityNM)
		}

		if err != nil {
			c.logger.Warn("write failed", slog.Any("error", err))
			return
		}
	}
}

func (s *server) sendInitial(c *client, traffic *fleet) error {
	if err := c.send(frame.AircraftUpdate{Updates: traffic.snapshot()}); err != nil {
		return err
	}

	if err := c.send(frame.SystemStatus{Error: nil}); err != nil {
		return err
	}

	return c.send(frame.AlertNew{Alert: alert.Spec{
		Category:    alert.CategoryWeather,
		Severity:    alert.SeverityMedium,
		Title:       "Thunderstorm cells",
		Message:     "Isolated thunderstorm cells reported within 40 NM",
		AircraftID:  "",
		Position:    &alert.Position{Latitude: s.opts.latitude, Longitude: s.opts.longitude},
		AutoResolve: false,
		Origin:      alert.OriginRemote,
	}})
}

// sendTick sends a removal before the updates of the same tick. Separations below a quarter of
// the proximity distance are reported as collisions.
func (s *server) sendTick(c *client, result tickResult, proximityNM float64) error {
	var errs []error

	if result.removed != "" {
		errs = append(errs, c.send(frame.AircraftRemoved{ID: result.removed}))
	}

	if len(result.updates) > 0 {
		errs = append(errs, c.send(frame.AircraftUpdate{Updates: result.updates}))
	}

	for _, sep := range result.proximity {
		if sep.DistanceNM <= proximityNM/4 { //nolint:mnd // quarter
			errs = append(errs, c.send(frame.CollisionEvent{Separation: sep}))
		} else {
			errs = append(errs, c.send(frame.ProximityEvent{Separation: sep}))
		}
	}

	return errors.Join(errs...)
}
