package types

import (
	"errors"
	"fmt"
	"time"
)

var ErrPayloadMismatch = errors.New("payload does not match event type")

// EventType is the closed set of domain events that drive feedback.
type EventType string

const (
	EventUserDistracted      EventType = "USER_DISTRACTED"
	EventCommandSuccess      EventType = "COMMAND_SUCCESS"
	EventCommandFailure      EventType = "COMMAND_FAILURE"
	EventPermissionDenied    EventType = "PERMISSION_DENIED"
	EventGenericInfo         EventType = "GENERIC_INFO"
	EventWarningConfirmed    EventType = "WARNING_CONFIRMED"
	EventWarningRejected     EventType = "WARNING_REJECTED"
	EventWarningUnresponsive EventType = "WARNING_UNRESPONSIVE"
	EventEyesClosed          EventType = "EYES_CLOSED"
)

func EventTypes() []EventType {
	return []EventType{
		EventUserDistracted, EventCommandSuccess, EventCommandFailure, EventPermissionDenied,
		EventGenericInfo, EventWarningConfirmed, EventWarningRejected, EventWarningUnresponsive,
		EventEyesClosed,
	}
}

func (t EventType) Valid() bool {
	for _, k := range EventTypes() {
		if t == k {
			return true
		}
	}
	return false
}

// Payload is implemented only by the payload structs in this package.
type Payload interface {
	payloadFor() []EventType
}

type DistractedPayload struct {
	Direction Gaze          `json:"direction"`
	Duration  time.Duration `json:"gaze_off_duration"`
}

type EyesClosedPayload struct {
	Duration time.Duration `json:"eyes_closed_duration"`
}

// WarningPayload answers an active warning.
type WarningPayload struct {
	Via      Modality      `json:"via"`
	Response string        `json:"response,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

type CommandPayload struct {
	Command   string `json:"command"`
	ActionTag string `json:"action_tag"`
	Reason    string `json:"reason,omitempty"`
	// Message overrides the generated text with a fixed phrase.
	Message string `json:"message,omitempty"`
}

type PermissionDeniedPayload struct {
	ActionTag string `json:"action_tag"`
	Role      string `json:"role"`
}

// InfoPayload carries either a custom message or a passively observed
// condition. GazeArea and HeadPose are empty when not applicable.
type InfoPayload struct {
	Message  string   `json:"message,omitempty"`
	GazeArea Gaze     `json:"gaze_area,omitempty"`
	HeadPose HeadPose `json:"head_pose,omitempty"`
}

func (DistractedPayload) payloadFor() []EventType { return []EventType{EventUserDistracted} }
func (EyesClosedPayload) payloadFor() []EventType { return []EventType{EventEyesClosed} }
func (WarningPayload) payloadFor() []EventType {
	return []EventType{EventWarningConfirmed, EventWarningRejected, EventWarningUnresponsive}
}
func (CommandPayload) payloadFor() []EventType {
	return []EventType{EventCommandSuccess, EventCommandFailure}
}
func (PermissionDeniedPayload) payloadFor() []EventType { return []EventType{EventPermissionDenied} }
func (InfoPayload) payloadFor() []EventType             { return []EventType{EventGenericInfo} }

// Event is a domain event with a payload validated against its type.
type Event struct {
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	Payload Payload   `json:"payload"`
}

// NewEvent validates that p belongs to t.
func NewEvent(t EventType, at time.Time, p Payload) (Event, error) {
	if !t.Valid() {
		return Event{}, fmt.Errorf("event type %q: %w", t, ErrPayloadMismatch)
	}
	if p == nil {
		return Event{}, fmt.Errorf("event %s: nil payload: %w", t, ErrPayloadMismatch)
	}
	for _, allowed := range p.payloadFor() {
		if allowed == t {
			return Event{Type: t, At: at, Payload: p}, nil
		}
	}
	return Event{}, fmt.Errorf("event %s with %T: %w", t, p, ErrPayloadMismatch)
}

// MustEvent is for statically known type/payload pairs.
func MustEvent(t EventType, at time.Time, p Payload) Event {
	e, err := NewEvent(t, at, p)
	if err != nil {
		panic(err)
	}
	return e
}
