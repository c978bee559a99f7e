// Package metrics exposes Prometheus collectors for the link, the track registry and the alert
// pipeline.
package metrics

import (
	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/frame"
	"github.com/micutio/aerosync/internal/link"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aerosync"

// Metrics implements link.Recorder and alert.Recorder.
type Metrics struct {
	FramesReceived    *prometheus.CounterVec
	DecodeErrors      prometheus.Counter
	ReconnectAttempts prometheus.Counter
	HeartbeatTimeouts prometheus.Counter
	LinkState         prometheus.Gauge

	TrackCount    prometheus.Gauge
	TracksExpired prometheus.Counter

	AlertsActive     *prometheus.GaugeVec
	AlertsCreated    *prometheus.CounterVec
	AlertsResolved   *prometheus.CounterVec
	NotifierFailures *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "link",
				Name:      "frames_received_total",
				Help:      "Total number of decoded inbound frames by type",
			},
			[]string{"type"},
		),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "decode_errors_total",
			Help:      "Total number of dropped inbound frames",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of scheduled reconnect attempts",
		}),
		HeartbeatTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "heartbeat_timeouts_total",
			Help:      "Total number of connections dropped by the heartbeat watchdog",
		}),
		LinkState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "state",
			Help:      "Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
		}),
		TrackCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "track",
			Name:      "count",
			Help:      "Number of live tracks",
		}),
		TracksExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "track",
			Name:      "expired_total",
			Help:      "Total number of tracks removed for staleness",
		}),
		AlertsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "active",
				Help:      "Number of active alerts by severity",
			},
			[]string{"severity"},
		),
		AlertsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "created_total",
				Help:      "Total number of created alerts by category",
			},
			[]string{"category"},
		),
		AlertsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "resolved_total",
				Help:      "Total number of auto-resolved alerts by category",
			},
			[]string{"category"},
		),
		NotifierFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "failures_total",
				Help:      "Total number of failed audio cues and announcements",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.FramesReceived,
		m.DecodeErrors,
		m.ReconnectAttempts,
		m.HeartbeatTimeouts,
		m.LinkState,
		m.TrackCount,
		m.TracksExpired,
		m.AlertsActive,
		m.AlertsCreated,
		m.AlertsResolved,
		m.NotifierFailures,
	)

	return m
}

func (m *Metrics) FrameReceived(t frame.Type) { m.FramesReceived.WithLabelValues(string(t)).Inc() }
func (m *Metrics) DecodeError()               { m.DecodeErrors.Inc() }
func (m *Metrics) ReconnectAttempt()          { m.ReconnectAttempts.Inc() }
func (m *Metrics) HeartbeatTimeout()          { m.HeartbeatTimeouts.Inc() }
func (m *Metrics) StateChanged(s link.State)  { m.LinkState.Set(float64(s)) }

func (m *Metrics) AlertCreated(c alert.Category)  { m.AlertsCreated.WithLabelValues(string(c)).Inc() }
func (m *Metrics) AlertResolved(c alert.Category) { m.AlertsResolved.WithLabelValues(string(c)).Inc() }
func (m *Metrics) NotifierFailed(kind string)     { m.NotifierFailures.WithLabelValues(kind).Inc() }

func (m *Metrics) ActiveAlerts(counts map[alert.Severity]int) {
	for severity, count := range counts {
		m.AlertsActive.WithLabelValues(severity.String()).Set(float64(count))
	}
}

// Tracks records the size of the registry.
func (m *Metrics) Tracks(count int) { m.TrackCount.Set(float64(count)) }

// Expired counts tracks removed by the staleness sweep.
func (m *Metrics) Expired(count int) { m.TracksExpired.Add(float64(count)) }
