// Package frame defines the JSON frames exchanged over the push channel. Every frame travels in
// an envelope carrying a type tag, a millisecond timestamp and the type specific payload.
package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/config"
	"github.com/micutio/aerosync/internal/track"
)

var (
	ErrEmptyFrame       = errors.New("empty frame")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnknownFrameType = errors.New("unknown frame type")
)

// Type is the tag of a frame.
type Type string

// Inbound frame types, sent by the data source.
const (
	TypeAircraftUpdate  Type = "aircraft_update"
	TypeAircraftRemoved Type = "aircraft_removed"
	TypeAlert           Type = "alert"
	TypeProximity       Type = "proximity"
	TypeCollision       Type = "collision"
	TypeSystemStatus    Type = "system_status"
	TypeHeartbeatAck    Type = "heartbeat_ack"
)

// Outbound frame types, sent by us.
const (
	TypeRequestInitialData Type = "request_initial_data"
	TypeHeartbeat          Type = "heartbeat"
	TypeSettingsUpdate     Type = "settings_update"
)

// Envelope is the outer shape of every frame.
type Envelope struct {
	Type      Type            `json:"type"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Message is any frame that can be put on the wire.
type Message interface {
	Type() Type
	payload() any
}

// Inbound is one of the frames the data source sends.
type Inbound interface {
	Message
	inbound()
}

// Outbound is one of the frames we send to the data source.
type Outbound interface {
	Message
	outbound()
}

// AircraftUpdate carries sparse updates for one or more tracks.
type AircraftUpdate struct {
	Updates []track.Update `json:"aircraft"`
}

type AircraftRemoved struct {
	ID string `json:"id"`
}

// AlertNew is an alert raised by the data source.
type AlertNew struct {
	Alert alert.Spec
}

// Separation describes where another aircraft is relative to the selected one.
type Separation struct {
	AircraftID         string  `json:"aircraftId"`
	DistanceNM         float64 `json:"distance"`
	Bearing            float64 `json:"bearing"`
	RelativeAltitudeFt float64 `json:"relativeAltitude"`
}

type ProximityEvent struct {
	Separation
}

type CollisionEvent struct {
	Separation
}

// SystemStatus reports the health of the data source. A nil Error means healthy.
type SystemStatus struct {
	Error *string `json:"error,omitempty"`
}

type HeartbeatAck struct{}

// RequestInitialData asks the data source for a full picture after connecting.
type RequestInitialData struct{}

// Heartbeat is the liveness check answered by a HeartbeatAck.
type Heartbeat struct {
	SentAt int64 `json:"sentAt"`
}

// SettingsUpdate forwards the parts of the settings snapshot the data source cares about.
type SettingsUpdate struct {
	UpdateIntervalSeconds int          `json:"updateIntervalSeconds"`
	ProximityDistanceNM   float64      `json:"proximityDistanceNM"`
	ProximityAltitudeFt   float64      `json:"proximityAltitudeFt"`
	Filter                track.Filter `json:"filter"`
}

func NewHeartbeat(sentAt time.Time) Heartbeat {
	return Heartbeat{SentAt: sentAt.UnixMilli()}
}

func NewSettingsUpdate(settings config.Settings) SettingsUpdate {
	return SettingsUpdate{
		UpdateIntervalSeconds: settings.UpdateIntervalSeconds,
		ProximityDistanceNM:   settings.ProximityDistanceNM,
		ProximityAltitudeFt:   settings.ProximityAltitudeFt,
		Filter:                settings.Filter,
	}
}

func (AircraftUpdate) Type() Type     { return TypeAircraftUpdate }
func (AircraftRemoved) Type() Type    { return TypeAircraftRemoved }
func (AlertNew) Type() Type           { return TypeAlert }
func (ProximityEvent) Type() Type     { return TypeProximity }
func (CollisionEvent) Type() Type     { return TypeCollision }
func (SystemStatus) Type() Type       { return TypeSystemStatus }
func (HeartbeatAck) Type() Type       { return TypeHeartbeatAck }
func (RequestInitialData) Type() Type { return TypeRequestInitialData }
func (Heartbeat) Type() Type          { return TypeHeartbeat }
func (SettingsUpdate) Type() Type     { return TypeSettingsUpdate }

func (f AircraftUpdate) payload() any   { return f }
func (f AircraftRemoved) payload() any  { return f }
func (f AlertNew) payload() any         { return f.Alert }
func (f ProximityEvent) payload() any   { return f.Separation }
func (f CollisionEvent) payload() any   { return f.Separation }
func (f SystemStatus) payload() any     { return f }
func (HeartbeatAck) payload() any       { return struct{}{} }
func (RequestInitialData) payload() any { return struct{}{} }
func (f Heartbeat) payload() any        { return f }
func (f SettingsUpdate) payload() any   { return f }

func (AircraftUpdate) inbound()  {}
func (AircraftRemoved) inbound() {}
func (AlertNew) inbound()        {}
func (ProximityEvent) inbound()  {}
func (CollisionEvent) inbound()  {}
func (SystemStatus) inbound()    {}
func (HeartbeatAck) inbound()    {}

func (RequestInitialData) outbound() {}
func (Heartbeat) outbound()          {}
func (SettingsUpdate) outbound()     {}

// Encode wraps the message in an envelope stamped with the current time.
func Encode(msg Message) ([]byte, error) {
	return EncodeAt(msg, time.Now())
}

// EncodeAt wraps the message in an envelope stamped with the given time.
func EncodeAt(msg Message, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(msg.payload())
	if err != nil {
		return nil, fmt.Errorf("Encode: failed to marshal %s payload: %w", msg.Type(), err)
	}

	data, err := json.Marshal(Envelope{Type: msg.Type(), Timestamp: at.UnixMilli(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("Encode: failed to marshal envelope: %w", err)
	}

	return data, nil
}

// Decode parses an inbound frame. Unknown tags and invalid payloads are rejected so that loosely
// typed data never reaches the registry.
func Decode(data []byte) (Inbound, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeAircraftUpdate:
		var f AircraftUpdate
		if err := unmarshalPayload(env, &f); err != nil {
			return nil, err
		}
		return f, nil
	case TypeAircraftRemoved:
		var f AircraftRemoved
		if err := unmarshalPayload(env, &f); err != nil {
			return nil, err
		}
		if f.ID == "" {
			return nil, fmt.Errorf("Decode: %w: %s without id", ErrMalformedFrame, env.Type)
		}
		return f, nil
	case TypeAlert:
		var spec alert.Spec
		if err := unmarshalPayload(env, &spec); err != nil {
			return nil, err
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("Decode: %w: %w", ErrMalformedFrame, err)
		}
		spec.Origin = alert.OriginRemote
		return AlertNew{Alert: spec}, nil
	case TypeProximity, TypeCollision:
		var sep Separation
		if err := unmarshalPayload(env, &sep); err != nil {
			return nil, err
		}
		if sep.AircraftID == "" {
			return nil, fmt.Errorf("Decode: %w: %s without aircraftId", ErrMalformedFrame, env.Type)
		}
		if env.Type == TypeCollision {
			return CollisionEvent{Separation: sep}, nil
		}
		return ProximityEvent{Separation: sep}, nil
	case TypeSystemStatus:
		var f SystemStatus
		if err := unmarshalPayload(env, &f); err != nil {
			return nil, err
		}
		return f, nil
	case TypeHeartbeatAck:
		return HeartbeatAck{}, nil
	case TypeRequestInitialData, TypeHeartbeat, TypeSettingsUpdate:
		return nil, fmt.Errorf("Decode: %w: %q is an outbound frame", ErrUnknownFrameType, env.Type)
	}

	return nil, fmt.Errorf("Decode: %w: %q", ErrUnknownFrameType, env.Type)
}

// DecodeOutbound parses a frame sent by a client. The simulator uses it.
func DecodeOutbound(data []byte) (Outbound, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeRequestInitialData:
		return RequestInitialData{}, nil
	case TypeHeartbeat:
		var f Heartbeat
		if err := unmarshalPayload(env, &f); err != nil {
			return nil, err
		}
		return f, nil
	case TypeSettingsUpdate:
		var f SettingsUpdate
		if err := unmarshalPayload(env, &f); err != nil {
			return nil, err
		}
		return f, nil
	case TypeAircraftUpdate, TypeAircraftRemoved, TypeAlert, TypeProximity, TypeCollision,
		TypeSystemStatus, TypeHeartbeatAck:
		return nil, fmt.Errorf("DecodeOutbound: %w: %q is an inbound frame", ErrUnknownFrameType, env.Type)
	}

	return nil, fmt.Errorf("DecodeOutbound: %w: %q", ErrUnknownFrameType, env.Type)
}

func decodeEnvelope(data []byte) (Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Envelope{}, ErrEmptyFrame
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("Decode: %w: %w", ErrMalformedFrame, err)
	}

	if env.Type == "" {
		return Envelope{}, fmt.Errorf("Decode: %w: missing type", ErrMalformedFrame)
	}

	return env, nil
}

func unmarshalPayload(env Envelope, target any) error {
	payload := env.Payload
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = []byte("{}")
	}

	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("Decode: %w: %s payload: %w", ErrMalformedFrame, env.Type, err)
	}

	return nil
}
