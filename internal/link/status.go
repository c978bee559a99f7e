package link

import (
	"errors"
	"time"
)

var (
	ErrNotConnected         = errors.New("not connected")
	ErrMaxReconnectAttempts = errors.New("maximum reconnect attempts reached")
	ErrHeartbeatTimeout     = errors.New("heartbeat timeout")
	ErrConnectionClosed     = errors.New("connection closed")
	ErrManagerStopped       = errors.New("connection manager stopped")
)

// State of the connection state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}

	return "unknown"
}

// Status is an immutable snapshot of the manager for display.
type Status struct {
	State     State
	Connected bool
	// LastError is the most recent failure. It is cleared by a successful connection.
	LastError error
	// Fatal is set once the reconnect attempts are exhausted. Only Reconnect or Connect clear it.
	Fatal             bool
	ReconnectAttempts int
	LastHeartbeat     time.Time
	// Since is the time of the last state change.
	Since time.Time
}

// HeartbeatTimedOut reports whether the last failure was detected by the watchdog.
func (s Status) HeartbeatTimedOut() bool {
	return errors.Is(s.LastError, ErrHeartbeatTimeout)
}

// ErrorString returns the last error as text, empty if there is none.
func (s Status) ErrorString() string {
	if s.LastError == nil {
		return ""
	}

	return s.LastError.Error()
}
